package main

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(checkCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show library location and counts",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ss, log := openSession()
	defer closeSession(ss, log)

	info, err := ss.Info()
	if err != nil {
		fail(err, "reading library")
	}
	if humanOutput {
		outputHuman("Library:      %s\n", info.Path)
		outputHuman("Attachments:  %s\n", info.Files)
		outputHuman("Documents:    %d\n", info.Documents)
		outputHuman("Folders:      %d\n", info.Folders)
		outputHuman("Needs review: %d\n", info.Review)
		outputHuman("Trash:        %d\n", info.Trash)
		return nil
	}
	return outputJSON(info)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify library invariants and database integrity",
	Long: `Verify that the in-memory library satisfies its invariants
(memberships, folder tree, reserved folders) and run the SQLite integrity
check on the library file.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

// CheckResponse is the response for the check command.
type CheckResponse struct {
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ss, log := openSession()
	err := ss.Check()
	closeSession(ss, log)

	if err == nil {
		if humanOutput {
			outputHuman("ok\n")
			return nil
		}
		return outputJSON(CheckResponse{Status: "ok"})
	}

	resp := CheckResponse{Status: "failed"}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	} else {
		resp.Errors = []string{err.Error()}
	}
	if humanOutput {
		for _, e := range resp.Errors {
			outputHuman("%s\n", e)
		}
	} else {
		outputJSON(resp)
	}
	code := exitCodeFor(err)
	if code == ExitError {
		code = ExitCorrupt
	}
	os.Exit(code)
	return nil
}
