package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attachCmd)
}

var attachCmd = &cobra.Command{
	Use:   "attach <id> <file>",
	Short: "Copy a file into the library and attach it to a document",
	Long: `Copy a file into the library folder and record it on the document.
With saving.rename_files the copy is named from the document's metadata.`,
	Args: cobra.ExactArgs(2),
	RunE: runAttach,
}

func runAttach(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	ss, log := openSession()
	rel, err := ss.AttachFile(id, args[1])
	closeSession(ss, log)
	if err != nil {
		fail(err, "attach")
	}
	if humanOutput {
		outputHuman("Attached %s to document %d\n", rel, id)
		return nil
	}
	return outputJSON(StatusResponse{Status: "attached", Path: rel, ID: id})
}
