package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/library"
)

var rmFolder string

func init() {
	rmCmd.Flags().StringVarP(&rmFolder, "folder", "f", "", "Only remove from this folder")
	rootCmd.AddCommand(rmCmd)
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Move documents to the trash",
	Long: `Remove documents from the library, or with --folder only from one
folder. A document left in no folder is marked for deletion and shows up in
the trash until "shelf trash empty".

Examples:
  shelf rm 12 13
  shelf rm --folder Thesis 12`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	ss, log := openSession()
	err = ss.Edit(func(lib *library.Library) error {
		var fid int64
		if rmFolder != "" {
			var err error
			if fid, err = resolveFolder(lib, rmFolder); err != nil {
				return err
			}
		}
		for _, id := range ids {
			var err error
			if rmFolder != "" {
				err = lib.SoftDeleteFromFolder(id, fid)
			} else {
				err = lib.SoftDeleteFromLibrary(id)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	closeSession(ss, log)
	if err != nil {
		fail(err, "remove")
	}

	if humanOutput {
		outputHuman("Removed %d documents\n", len(ids))
		return nil
	}
	return outputJSON(StatusResponse{Status: "removed"})
}
