package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/pdf"
)

var (
	openFile   int
	openReader string
)

func init() {
	openCmd.Flags().IntVar(&openFile, "file", 1, "Which attachment to open, counting from 1")
	openCmd.Flags().StringVar(&openReader, "reader", "", "Viewer: "+strings.Join(pdf.Readers, ", "))
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a document's attachment in a viewer",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if openReader != "" && !slices.Contains(pdf.Readers, openReader) {
		exitWithError(ExitError, "unknown reader %q", openReader)
	}

	ss, log := openSession()
	var m *docmeta.Meta
	ss.View(func(lib *library.Library) { m, _ = lib.Document(id) })
	files := ss.Files()
	closeSession(ss, log)

	switch {
	case m == nil:
		fail(liberr.New(liberr.ErrNotFound, "open", fmt.Sprintf("document %d", id), nil), "open")
	case openFile < 1 || openFile > len(m.Files):
		fail(liberr.New(liberr.ErrNotFound, "open", fmt.Sprintf("document %d file %d", id, openFile), nil), "open")
	}
	path, err := files.Resolve(m.Files[openFile-1])
	if err != nil {
		fail(err, "open")
	}
	if err := pdf.NewOpener(openReader).Open(path); err != nil {
		fail(err, "open")
	}
	if humanOutput {
		outputHuman("Opened %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "opened", Path: path, ID: id})
}
