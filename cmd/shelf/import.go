package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

var importFolder string

func init() {
	importCmd.Flags().StringVarP(&importFolder, "folder", "f", "", "Target folder (default: the active folder)")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import BibTeX, RIS or PDF files",
	Long: `Import documents from .bib, .ris and .pdf files. Files are decoded in
parallel; every record that decodes is added, and the rest are reported.
Attachments named in BibTeX or RIS records are copied into the library.
PDFs with a DOI are completed from Crossref.

Exits with code 9 when some records failed. Interrupt to stop the batch;
files already decoded are still added.

Examples:
  shelf import refs.bib
  shelf import --folder Thesis/Intro *.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ss, log := openSession()

	folder := docmeta.FolderAll
	if importFolder != "" {
		var err error
		ss.View(func(lib *library.Library) { folder, err = resolveFolder(lib, importFolder) })
		if err != nil {
			closeSession(ss, log)
			fail(err, "import")
		}
	}

	ctx, cancel := batchContext(ss)
	res, err := ss.Import(ctx, args, folder)
	cancel()
	closeSession(ss, log)
	if err != nil {
		fail(err, "import")
	}

	if humanOutput {
		outputHuman("Imported %d documents\n", len(res.Added))
		for _, f := range res.Failures {
			where := f.Source
			if f.Line > 0 {
				where = fmt.Sprintf("%s:%d", f.Source, f.Line)
			}
			outputHuman("  failed %s %s: %s\n", where, f.Key, f.Message)
		}
	} else {
		outputJSON(res)
	}
	if len(res.Failures) > 0 {
		os.Exit(ExitPartial)
	}
	return nil
}
