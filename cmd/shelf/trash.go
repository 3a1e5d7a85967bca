package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

var trashRestoreTo string

func init() {
	trashRestoreCmd.Flags().StringVar(&trashRestoreTo, "to", "", "Put the documents in this folder first")
	trashCmd.AddCommand(trashListCmd)
	trashCmd.AddCommand(trashRestoreCmd)
	trashCmd.AddCommand(trashEmptyCmd)
	rootCmd.AddCommand(trashCmd)
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect, restore or empty the trash",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents marked for deletion",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, log := openSession()
		var docs []DocSummary
		ss.View(func(lib *library.Library) {
			docs = summaries(lib, lib.FolderScope(docmeta.FolderTrash, false))
		})
		closeSession(ss, log)
		if humanOutput {
			if len(docs) == 0 {
				outputHuman("Trash is empty\n")
				return nil
			}
			printSummariesHuman(docs)
			return nil
		}
		return outputJSON(docs)
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <id>...",
	Short: "Restore documents from the trash",
	Long: `Clear the deletion mark of documents. A document that belongs to no
live folder must be given one with --to.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		ss, log := openSession()
		err = ss.Edit(func(lib *library.Library) error {
			var fid int64
			if trashRestoreTo != "" {
				var err error
				if fid, err = resolveFolder(lib, trashRestoreTo); err != nil {
					return err
				}
			}
			for _, id := range ids {
				var err error
				if trashRestoreTo != "" {
					err = lib.RestoreToFolder(id, fid)
				} else {
					err = lib.RestoreFromTrash(id)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		closeSession(ss, log)
		if err != nil {
			fail(err, "restore")
		}
		if humanOutput {
			outputHuman("Restored %d documents\n", len(ids))
			return nil
		}
		return outputJSON(StatusResponse{Status: "restored"})
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Delete trashed documents, folders and their attachments for good",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, log := openSession()
		var res library.EmptyResult
		err := ss.Edit(func(lib *library.Library) error {
			res = lib.EmptyTrash()
			return nil
		})
		closeSession(ss, log)
		if err != nil {
			fail(err, "empty trash")
		}
		if humanOutput {
			outputHuman("Deleted %d documents and %d folders\n", len(res.Documents), len(res.Folders))
			return nil
		}
		return outputJSON(res)
	},
}
