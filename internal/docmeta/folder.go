package docmeta

// Reserved folder ids. User folders use non-negative ids.
const (
	FolderAll     int64 = -1 // root of the tree; parent of top-level folders
	FolderReview  int64 = -2 // documents with Confirmed == false
	FolderTrash   int64 = -3 // documents with DeletionPending == true
	FolderDefault int64 = 0  // created with every library
)

// DefaultFolderName is the name of the folder created with every library.
const DefaultFolderName = "Default"

// Folder is one node of the folder tree.
type Folder struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id"`
}

// IsReserved reports whether id is one of the virtual folders.
func IsReserved(id int64) bool {
	return id == FolderAll || id == FolderReview || id == FolderTrash
}

// ReservedName returns the display name of a reserved folder.
func ReservedName(id int64) string {
	switch id {
	case FolderAll:
		return "All"
	case FolderReview:
		return "Needs Review"
	case FolderTrash:
		return "Trash"
	}
	return ""
}
