package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/library"
)

var (
	listFolder  string
	listDescend bool
	listFilter  string
	listLimit   int
)

func init() {
	listCmd.Flags().StringVarP(&listFolder, "folder", "f", "all", "Folder id, path, or all/review/trash")
	listCmd.Flags().BoolVarP(&listDescend, "descend", "d", false, "Include documents of subfolders")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Keep documents with field=value (author, keyword, tag, publication)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of documents (0 for all)")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the documents of a folder",
	Long: `List the documents of a folder, ascending by id.

Examples:
  shelf list
  shelf list --folder Thesis --descend
  shelf list --folder review
  shelf list --filter "author=Hopper, Grace"`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// parsePredicate parses a field=value filter.
func parsePredicate(s string) (library.Predicate, error) {
	field, value, ok := strings.Cut(s, "=")
	if !ok {
		return library.Predicate{}, fmt.Errorf("expected field=value, got %q", s)
	}
	kind, err := library.ParsePredicateKind(field)
	if err != nil {
		return library.Predicate{}, err
	}
	return library.Predicate{Kind: kind, Value: strings.TrimSpace(value)}, nil
}

func runList(cmd *cobra.Command, args []string) error {
	var pred *library.Predicate
	if listFilter != "" {
		p, err := parsePredicate(listFilter)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		pred = &p
	}

	ss, log := openSession()
	var docs []DocSummary
	var err error
	ss.View(func(lib *library.Library) {
		var fid int64
		if fid, err = resolveFolder(lib, listFolder); err != nil {
			return
		}
		var ids []int64
		if pred != nil {
			ids = lib.FilterInFolder(fid, listDescend, *pred)
		} else {
			ids = lib.FolderScope(fid, listDescend)
		}
		if listLimit > 0 && len(ids) > listLimit {
			ids = ids[:listLimit]
		}
		docs = summaries(lib, ids)
	})
	closeSession(ss, log)
	if err != nil {
		fail(err, "list")
	}

	if humanOutput {
		if len(docs) == 0 {
			outputHuman("No documents\n")
			return nil
		}
		printSummariesHuman(docs)
		return nil
	}
	return outputJSON(docs)
}
