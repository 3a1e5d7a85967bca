package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

func init() {
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <key=value>...",
	Short: "Change fields of a document",
	Long: `Assign fields of a document. List fields take ";"-separated values
and replace the whole list; an empty value clears the field.

Examples:
  shelf edit 12 year=2021 "publication=Nature Methods"
  shelf edit 12 "authors=Hopper, Grace;Lovelace, Ada"
  shelf edit 12 confirmed=true tags=`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	patch := docmeta.New()
	keys, err := applyAssignments(patch, args[1:])
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	ss, log := openSession()
	err = ss.Edit(func(lib *library.Library) error {
		return lib.UpdateDocument(id, patch, keys)
	})
	closeSession(ss, log)
	if err != nil {
		fail(err, "edit")
	}

	if humanOutput {
		outputHuman("Updated document %d\n", id)
		return nil
	}
	return outputJSON(StatusResponse{Status: "updated", ID: id})
}
