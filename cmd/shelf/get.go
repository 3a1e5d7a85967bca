package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/bibtex"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/export"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/ris"
)

var getFormat string

func init() {
	getCmd.Flags().StringVar(&getFormat, "format", "", "Print as bibtex or ris instead")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	var format export.Format
	if getFormat != "" {
		if format, err = export.ParseFormat(getFormat); err != nil {
			exitWithError(ExitError, "%v", err)
		}
	}

	ss, log := openSession()
	var m *docmeta.Meta
	ss.View(func(lib *library.Library) { m, _ = lib.Document(id) })
	omit := ss.Settings().Export.Bib.OmitFields
	closeSession(ss, log)
	if m == nil {
		fail(liberr.New(liberr.ErrNotFound, "get", fmt.Sprintf("document %d", id), nil), "get")
	}

	switch format {
	case export.FormatBibTeX:
		data, err := bibtex.Format(m, bibtex.NewOptions(omit))
		if err != nil {
			fail(err, "format")
		}
		os.Stdout.Write(data)
		return nil
	case export.FormatRIS:
		data, err := ris.Format(m)
		if err != nil {
			fail(err, "format")
		}
		os.Stdout.Write(data)
		return nil
	}

	if humanOutput {
		printDocHuman(m)
		return nil
	}
	return outputJSON(m)
}
