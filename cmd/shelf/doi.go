package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

var (
	doiAdd    bool
	doiFolder string
	doiEnrich string
)

func init() {
	doiCmd.Flags().BoolVar(&doiAdd, "add", false, "Add the resolved document to the library")
	doiCmd.Flags().StringVarP(&doiFolder, "folder", "f", "", "Folder for --add (default: the active folder)")
	doiCmd.Flags().StringVar(&doiEnrich, "enrich", "", "Fill empty fields of this document from its DOI")
	rootCmd.AddCommand(doiCmd)
}

var doiCmd = &cobra.Command{
	Use:   "doi [doi]",
	Short: "Look up metadata by DOI",
	Long: `Fetch metadata for a DOI from Crossref. By default the result is
only printed; --add stores it as a new document, and --enrich fills the
empty fields of an existing document from the DOI it records.

Examples:
  shelf doi 10.1093/sysbio/syy032
  shelf doi --add https://doi.org/10.1093/sysbio/syy032
  shelf doi --enrich 12`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDOI,
}

// EnrichResponse lists the fields filled by --enrich.
type EnrichResponse struct {
	ID     int64    `json:"id"`
	Filled []string `json:"filled"`
}

func runDOI(cmd *cobra.Command, args []string) error {
	if doiEnrich != "" {
		return runEnrich()
	}
	if len(args) != 1 {
		exitWithError(ExitError, "give a DOI, or --enrich <id>")
	}

	ss, log := openSession()
	ctx := context.Background()
	if !doiAdd {
		m, err := ss.ResolveDOI(ctx, args[0])
		closeSession(ss, log)
		if err != nil {
			fail(err, "doi")
		}
		if humanOutput {
			printDocHuman(m)
			return nil
		}
		return outputJSON(m)
	}

	folder := docmeta.FolderAll
	var err error
	if doiFolder != "" {
		ss.View(func(lib *library.Library) { folder, err = resolveFolder(lib, doiFolder) })
	}
	var id int64
	if err == nil {
		id, err = ss.AddByDOI(ctx, args[0], folder)
	}
	closeSession(ss, log)
	if err != nil {
		fail(err, "doi")
	}
	if humanOutput {
		outputHuman("Added document %d\n", id)
		return nil
	}
	return outputJSON(StatusResponse{Status: "added", ID: id})
}

func runEnrich() error {
	id, err := parseID(doiEnrich)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	ss, log := openSession()
	filled, err := ss.EnrichFromDOI(context.Background(), id)
	closeSession(ss, log)
	if err != nil {
		fail(err, "enrich")
	}
	if humanOutput {
		if len(filled) == 0 {
			outputHuman("Nothing to fill\n")
		}
		for _, k := range filled {
			outputHuman("filled %s\n", k)
		}
		return nil
	}
	if filled == nil {
		filled = []string{}
	}
	return outputJSON(EnrichResponse{ID: id, Filled: filled})
}
