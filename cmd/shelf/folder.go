package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/library"
)

var folderParent string

func init() {
	folderAddCmd.Flags().StringVarP(&folderParent, "parent", "p", "", "Parent folder (default: top level)")
	folderRestoreCmd.Flags().StringVar(&folderParent, "to", "", "New parent folder (default: top level)")

	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderMoveCmd)
	folderCmd.AddCommand(folderTrashCmd)
	folderCmd.AddCommand(folderRestoreCmd)
	folderCmd.AddCommand(folderTreeCmd)
	folderCmd.AddCommand(folderPutCmd)
	folderCmd.AddCommand(folderMirrorCmd)
	rootCmd.AddCommand(folderCmd)
}

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
	Long: `Manage the folder tree. Folders are named by id or by a slash-separated
path such as "Thesis/Intro".`,
}

// editFolders resolves the folder arguments and runs fn under the editor
// lock, then flushes.
func editFolders(what string, names []string, fn func(lib *library.Library, fids []int64) error) {
	ss, log := openSession()
	err := ss.Edit(func(lib *library.Library) error {
		fids := make([]int64, len(names))
		for i, n := range names {
			var err error
			if fids[i], err = resolveFolder(lib, n); err != nil {
				return err
			}
		}
		return fn(lib, fids)
	})
	closeSession(ss, log)
	if err != nil {
		fail(err, what)
	}
}

func parentFolder() []string {
	if folderParent == "" {
		return []string{"all"}
	}
	return []string{folderParent}
}

func folderDone(status string, id int64) error {
	if humanOutput {
		outputHuman("%s folder %d\n", strings.ToUpper(status[:1])+status[1:], id)
		return nil
	}
	return outputJSON(StatusResponse{Status: status, ID: id})
}

var folderAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		editFolders("create folder", parentFolder(), func(lib *library.Library, fids []int64) error {
			var err error
			id, err = lib.CreateFolder(args[0], fids[0])
			return err
		})
		return folderDone("created", id)
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <folder> <name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		editFolders("rename folder", args[:1], func(lib *library.Library, fids []int64) error {
			id = fids[0]
			return lib.RenameFolder(id, args[1])
		})
		return folderDone("renamed", id)
	},
}

var folderMoveCmd = &cobra.Command{
	Use:   "move <folder> <parent>",
	Short: "Move a folder under another (\"all\" for the top level)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		editFolders("move folder", args, func(lib *library.Library, fids []int64) error {
			id = fids[0]
			return lib.MoveFolder(id, fids[1])
		})
		return folderDone("moved", id)
	},
}

var folderTrashCmd = &cobra.Command{
	Use:   "trash <folder>",
	Short: "Move a folder and its subfolders to the trash",
	Long: `Move a folder under the trash. Documents left without a live folder
are marked for deletion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		editFolders("trash folder", args, func(lib *library.Library, fids []int64) error {
			id = fids[0]
			return lib.TrashFolder(id)
		})
		return folderDone("trashed", id)
	},
}

var folderRestoreCmd = &cobra.Command{
	Use:   "restore <folder>",
	Short: "Move a trashed folder back into the tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		editFolders("restore folder", append(args, parentFolder()...), func(lib *library.Library, fids []int64) error {
			id = fids[0]
			return lib.MoveFolder(id, fids[1])
		})
		return folderDone("restored", id)
	},
}

var folderPutCmd = &cobra.Command{
	Use:   "put <folder> <id>...",
	Short: "Add documents to a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		var fid int64
		editFolders("add to folder", args[:1], func(lib *library.Library, fids []int64) error {
			fid = fids[0]
			for _, id := range ids {
				if err := lib.AddToFolder(id, fid); err != nil {
					return err
				}
			}
			return nil
		})
		return folderDone("updated", fid)
	},
}

var folderTreeCmd = &cobra.Command{
	Use:   "tree [folder]",
	Short: "Show the folder tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := "all"
		if len(args) == 1 {
			from = args[0]
		}
		ss, log := openSession()
		var nodes []library.TreeNode
		var counts map[int64]int
		var err error
		ss.View(func(lib *library.Library) {
			var fid int64
			if fid, err = resolveFolder(lib, from); err != nil {
				return
			}
			nodes = lib.ListFolderTree(fid)
			counts = make(map[int64]int, len(nodes))
			for _, n := range nodes {
				counts[n.ID] = len(lib.FolderDocs(n.ID))
			}
		})
		closeSession(ss, log)
		if err != nil {
			fail(err, "folder tree")
		}

		if humanOutput {
			for _, n := range nodes {
				outputHuman("%s%s (%d) [%d]\n", strings.Repeat("  ", n.Depth), n.Name, counts[n.ID], n.ID)
			}
			return nil
		}
		if nodes == nil {
			nodes = []library.TreeNode{}
		}
		return outputJSON(nodes)
	},
}

// MirrorResponse lists the files copied by folder mirror.
type MirrorResponse struct {
	Folder int64    `json:"folder"`
	Files  []string `json:"files"`
}

var folderMirrorCmd = &cobra.Command{
	Use:   "mirror <folder>",
	Short: "Copy a folder's attachments into a directory named after it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ss, log := openSession()
		var fid int64
		var err error
		ss.View(func(lib *library.Library) { fid, err = resolveFolder(lib, args[0]) })
		var files []string
		if err == nil {
			if docmeta.IsReserved(fid) {
				err = library.ErrReservedFolder
			} else {
				files, err = ss.Mirror(fid)
			}
		}
		closeSession(ss, log)
		if err != nil {
			fail(err, "mirror")
		}
		if humanOutput {
			for _, f := range files {
				outputHuman("%s\n", f)
			}
			return nil
		}
		if files == nil {
			files = []string{}
		}
		return outputJSON(MirrorResponse{Folder: fid, Files: files})
	},
}
