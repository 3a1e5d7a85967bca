package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/library"
)

var (
	dupesFolder  string
	dupesDescend bool
	dupesID      string
)

func init() {
	dupesCmd.Flags().StringVarP(&dupesFolder, "folder", "f", "all", "Folder id, path, or all/review/trash")
	dupesCmd.Flags().BoolVarP(&dupesDescend, "descend", "d", false, "Include subfolders")
	dupesCmd.Flags().StringVar(&dupesID, "id", "", "Only list likely duplicates of this document")
	rootCmd.AddCommand(dupesCmd)
}

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find likely duplicate documents",
	Long: `Group documents whose title, authors and year are similar enough
(duplicate.min_score, 0 to 100). Each group is headed by its lowest id.

Examples:
  shelf dupes
  shelf dupes --folder Thesis -d
  shelf dupes --id 12`,
	Args: cobra.NoArgs,
	RunE: runDupes,
}

func runDupes(cmd *cobra.Command, args []string) error {
	var target int64
	if dupesID != "" {
		var err error
		if target, err = parseID(dupesID); err != nil {
			exitWithError(ExitError, "%v", err)
		}
	}

	ss, log := openSession()
	var fid int64
	var err error
	ss.View(func(lib *library.Library) { fid, err = resolveFolder(lib, dupesFolder) })
	if err != nil {
		closeSession(ss, log)
		fail(err, "dupes")
	}

	ctx, cancel := batchContext(ss)
	defer cancel()
	if target != 0 {
		members, err := ss.Similar(ctx, target, fid, dupesDescend)
		closeSession(ss, log)
		if err != nil {
			fail(err, "dupes")
		}
		if humanOutput {
			for _, m := range members {
				outputHuman("%5d  %3.0f\n", m.ID, m.Score)
			}
			return nil
		}
		return outputJSON(members)
	}

	groups, err := ss.Duplicates(ctx, fid, dupesDescend)
	if err != nil {
		closeSession(ss, log)
		fail(err, "dupes")
	}
	if humanOutput {
		ss.View(func(lib *library.Library) {
			for i, g := range groups {
				if i > 0 {
					outputHuman("\n")
				}
				printSummariesHuman(summaries(lib, g.IDs()))
			}
		})
		closeSession(ss, log)
		return nil
	}
	closeSession(ss, log)
	return outputJSON(groups)
}
