package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
)

// Output formatting widths.
const (
	ListTitleMaxLen   = 60 // Used in list and search output
	DetailTextWrapLen = 70 // Used in get command detail view
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

// DocSummary is the list form of a document.
type DocSummary struct {
	ID       int64    `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     string   `json:"year,omitempty"`
	Key      string   `json:"citation_key,omitempty"`
	HasFile  bool     `json:"has_file"`
	Folders  []string `json:"folders,omitempty"`
	Pending  bool     `json:"deletion_pending,omitempty"`
	Reviewed bool     `json:"confirmed"`
}

func summarize(m *docmeta.Meta) DocSummary {
	s := DocSummary{
		ID:       m.ID,
		Type:     string(m.Type),
		Title:    m.Title,
		Authors:  m.Authors(),
		Year:     m.Year,
		Key:      m.CitationKey,
		HasFile:  m.HasFile(),
		Pending:  m.DeletionPending,
		Reviewed: m.Confirmed,
	}
	for _, f := range m.Folders {
		s.Folders = append(s.Folders, f.Name)
	}
	return s
}

// summaries collects the documents with ids.
func summaries(lib *library.Library, ids []int64) []DocSummary {
	out := make([]DocSummary, 0, len(ids))
	for _, id := range ids {
		if m, ok := lib.Document(id); ok {
			out = append(out, summarize(m))
		}
	}
	return out
}

// printSummariesHuman prints one line per document.
func printSummariesHuman(docs []DocSummary) {
	for _, d := range docs {
		flags := ""
		if d.HasFile {
			flags += "F"
		}
		if d.Pending {
			flags += "D"
		}
		fmt.Printf("%5d %-2s %s\n", d.ID, flags, truncateString(d.Title, ListTitleMaxLen))
		if authors := formatAuthorsShort(d.Authors, 3); authors != "" || d.Year != "" {
			fmt.Printf("         %s (%s)\n", authors, d.Year)
		}
	}
}

// printDocHuman prints every set field of a document.
func printDocHuman(m *docmeta.Meta) {
	fmt.Printf("[%d] %s\n", m.ID, wrapText(m.Title, DetailTextWrapLen, "     "))
	if authors := m.Authors(); len(authors) > 0 {
		fmt.Printf("     %s\n", strings.Join(authors, "; "))
	}
	fmt.Println()
	for _, key := range docmeta.Fields() {
		kind, _ := docmeta.KindOf(key)
		switch key {
		case docmeta.FieldTitle, docmeta.FieldAbstract,
			docmeta.FieldFirstNames, docmeta.FieldLastNames, docmeta.FieldAuthors:
			continue
		}
		if kind == docmeta.KindList {
			if v, _ := m.List(key); len(v) > 0 {
				fmt.Printf("  %-16s %s\n", key+":", strings.Join(v, "; "))
			}
			continue
		}
		v, _ := m.Scalar(key)
		if v == "" || (kind != docmeta.KindScalar && (v == "false" || v == "0")) {
			continue
		}
		fmt.Printf("  %-16s %s\n", key+":", v)
	}
	if m.Abstract != "" {
		fmt.Printf("\n  %s\n", wrapText(m.Abstract, DetailTextWrapLen, "  "))
	}
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case current.Len()+1+len(word) <= width:
			current.WriteString(" ")
			current.WriteString(word)
		default:
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n"+indent)
}

// formatAuthorsShort keeps the last names of the first maxCount authors,
// adding "et al." when there are more.
func formatAuthorsShort(authors []string, maxCount int) string {
	var names []string
	for i, a := range authors {
		if i == maxCount {
			names = append(names, "et al.")
			break
		}
		last, _, _ := strings.Cut(a, ",")
		names = append(names, last)
	}
	return strings.Join(names, ", ")
}

// parseID parses a document id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

// parseIDs parses document ids given as separate or comma-separated args.
func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// reservedFolders maps the names accepted for the reserved folders.
var reservedFolders = map[string]int64{
	"all":    docmeta.FolderAll,
	"review": docmeta.FolderReview,
	"trash":  docmeta.FolderTrash,
}

// resolveFolder accepts a folder id, a reserved name (all, review, trash)
// or a slash-separated path of folder names.
func resolveFolder(lib *library.Library, s string) (int64, error) {
	if id, ok := reservedFolders[strings.ToLower(s)]; ok {
		return id, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if _, ok := lib.Folder(id); ok {
			return id, nil
		}
		return 0, liberr.New(liberr.ErrNotFound, "resolve folder", s, nil)
	}
	if id, ok := lib.FolderByPath(s); ok {
		return id, nil
	}
	return 0, liberr.New(liberr.ErrNotFound, "resolve folder", s, nil)
}
