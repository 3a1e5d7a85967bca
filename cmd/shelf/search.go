package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/search"
)

var (
	searchFields  []string
	searchFolder  string
	searchDescend bool
	searchLimit   int
)

func init() {
	searchCmd.Flags().StringSliceVar(&searchFields, "field", nil, "Restrict to fields: authors, title, abstract, keywords, tags, notes, publication")
	searchCmd.Flags().StringVarP(&searchFolder, "folder", "f", "all", "Folder id, path, or all/review/trash")
	searchCmd.Flags().BoolVarP(&searchDescend, "descend", "d", false, "Include subfolders (default: search.descend_folder)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "Maximum number of results (0 for all)")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <term>...",
	Short: "Full-text search",
	Long: `Search document fields by word prefix, best match first. Documents
added since the library was last saved are not indexed yet.

Examples:
  shelf search phylogen
  shelf search --field title,abstract "bayesian tree"
  shelf search --folder Thesis -d mcmc`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

// SearchHit is one search result.
type SearchHit struct {
	DocSummary
	Matched []string `json:"matched_fields"`
	Rank    float64  `json:"rank"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	fields, err := search.ParseFields(searchFields)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	ss, log := openSession()
	descend := ss.Settings().Search.DescendFolder
	if cmd.Flags().Changed("descend") {
		descend = searchDescend
	}
	var fid int64
	ss.View(func(lib *library.Library) { fid, err = resolveFolder(lib, searchFolder) })
	if err != nil {
		closeSession(ss, log)
		fail(err, "search")
	}

	hits, err := ss.Search(search.Query{
		Term:     strings.Join(args, " "),
		Fields:   fields,
		FolderID: fid,
		Descend:  descend,
		Limit:    searchLimit,
	})
	results := make([]SearchHit, 0, len(hits))
	if err == nil {
		ss.View(func(lib *library.Library) {
			for _, h := range hits {
				m, ok := lib.Document(h.DocID)
				if !ok {
					continue
				}
				r := SearchHit{DocSummary: summarize(m), Rank: h.Rank}
				for _, f := range h.MatchedFields {
					r.Matched = append(r.Matched, string(f))
				}
				results = append(results, r)
			}
		})
	}
	closeSession(ss, log)
	if err != nil {
		fail(err, "search")
	}

	if humanOutput {
		if len(results) == 0 {
			outputHuman("No matches\n")
			return nil
		}
		for _, r := range results {
			printSummariesHuman([]DocSummary{r.DocSummary})
			outputHuman("         matched: %s\n", strings.Join(r.Matched, ", "))
		}
		return nil
	}
	return outputJSON(results)
}
