package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/clipboard"
	"github.com/matsen/bibshelf/internal/export"
	"github.com/matsen/bibshelf/internal/library"
)

var (
	exportFormat    string
	exportFolder    string
	exportDescend   bool
	exportOutput    string
	exportClipboard bool
	exportPersist   bool
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "bibtex", "Output format: bibtex or ris")
	exportCmd.Flags().StringVarP(&exportFolder, "folder", "f", "", "Export a folder instead of ids")
	exportCmd.Flags().BoolVarP(&exportDescend, "descend", "d", false, "Include subfolders")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportClipboard, "clipboard", false, "Copy to the clipboard")
	exportCmd.Flags().BoolVar(&exportPersist, "persist-failures", false, "Put failed documents in a new \"Failed export\" folder")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [id]...",
	Short: "Export documents as BibTeX or RIS",
	Long: `Export documents given by id or by folder. Entries are formatted in
parallel; documents that fail are left out and reported, and with
--persist-failures gathered into a new folder for another try.

Without -o or --clipboard the entries go to stdout and the report to
stderr. Exits with code 9 when some documents failed.

Examples:
  shelf export 1 2 3
  shelf export --folder Thesis -d -o thesis.bib
  shelf export --folder review --format ris --clipboard`,
	RunE: runExport,
}

// ExportResponse reports an export written to a file or the clipboard.
type ExportResponse struct {
	*export.Result
	Path          string `json:"path,omitempty"`
	FailureFolder int64  `json:"failure_folder,omitempty"`
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	ids, err := parseIDs(args)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if len(ids) == 0 && exportFolder == "" {
		exitWithError(ExitError, "give document ids or --folder")
	}

	ss, log := openSession()
	if exportFolder != "" {
		ss.View(func(lib *library.Library) {
			var fid int64
			if fid, err = resolveFolder(lib, exportFolder); err == nil {
				ids = append(ids, lib.FolderScope(fid, exportDescend)...)
			}
		})
		if err != nil {
			closeSession(ss, log)
			fail(err, "export")
		}
	}

	ctx, cancel := batchContext(ss)
	res, err := ss.Export(ctx, ids, format)
	cancel()
	if err != nil {
		closeSession(ss, log)
		fail(err, "export")
	}
	resp := ExportResponse{Result: res, Path: exportOutput}
	if exportPersist && len(res.Failures) > 0 {
		if resp.FailureFolder, err = ss.PersistFailures(res.FailedIDs()); err != nil {
			log.Warn("could not keep failed documents", "error", err)
		}
	}
	closeSession(ss, log)

	switch {
	case exportOutput != "":
		if err := res.WriteFile(exportOutput); err != nil {
			fail(err, "export")
		}
	case exportClipboard:
		if err := clipboard.Copy(string(res.Data)); err != nil {
			exitWithError(ExitIOError, "copying to clipboard: %v", err)
		}
	default:
		os.Stdout.Write(res.Data)
		if len(res.Failures) > 0 {
			os.Stderr.WriteString(res.Summary())
		}
		exitPartial(res)
		return nil
	}

	if humanOutput {
		outputHuman("%s\n", res.Summary())
	} else {
		outputJSON(resp)
	}
	exitPartial(res)
	return nil
}

func exitPartial(res *export.Result) {
	if len(res.Failures) > 0 {
		os.Exit(ExitPartial)
	}
}
