package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

var (
	addTitle   string
	addAuthors []string
	addYear    string
	addType    string
	addDOI     string
	addJournal string
	addSet     []string
	addFolder  string
	addFile    string
)

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "Title")
	addCmd.Flags().StringArrayVarP(&addAuthors, "author", "a", nil, "Author as \"Last, First\" (repeatable)")
	addCmd.Flags().StringVarP(&addYear, "year", "y", "", "Publication year")
	addCmd.Flags().StringVar(&addType, "type", "", "Document type (article, book, ...)")
	addCmd.Flags().StringVar(&addDOI, "doi", "", "DOI")
	addCmd.Flags().StringVarP(&addJournal, "journal", "j", "", "Journal or proceedings")
	addCmd.Flags().StringArrayVar(&addSet, "set", nil, "Any other field as key=value (repeatable)")
	addCmd.Flags().StringVarP(&addFolder, "folder", "f", "", "Target folder (default: the active folder)")
	addCmd.Flags().StringVar(&addFile, "file", "", "Attach this file after adding")
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a document by hand",
	Long: `Add a document from flags. Fields without a dedicated flag are set
with --set key=value; list fields take ";"-separated values.

Examples:
  shelf add -t "Phylogenetic trees" -a "Felsenstein, Joseph" -y 2004 --type book
  shelf add -t "Notes" --set tags=todo;draft --file notes.pdf`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	m := docmeta.New()
	m.Title = addTitle
	m.Year = addYear
	m.DOI = addDOI
	m.Publication = addJournal
	if addType != "" {
		m.Type = docmeta.ParseType(addType)
	}
	if len(addAuthors) > 0 {
		if err := m.SetList(docmeta.FieldAuthors, addAuthors); err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	}
	if _, err := applyAssignments(m, addSet); err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if m.Title == "" {
		exitWithError(ExitError, "a title is required")
	}

	ss, log := openSession()
	var id int64
	err := ss.Edit(func(lib *library.Library) error {
		folder := docmeta.FolderAll
		if addFolder != "" {
			var err error
			if folder, err = resolveFolder(lib, addFolder); err != nil {
				return err
			}
		}
		var err error
		id, err = lib.AddDocument(m, folder)
		return err
	})
	if err == nil && addFile != "" {
		_, err = ss.AttachFile(id, addFile)
	}
	closeSession(ss, log)
	if err != nil {
		fail(err, "add")
	}

	if humanOutput {
		outputHuman("Added document %d\n", id)
		return nil
	}
	return outputJSON(StatusResponse{Status: "added", ID: id})
}
