package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// WriteFolder upserts a folder row. It fails with ErrNameConflict when a
// different folder with the same parent already uses name. The stored path
// of the folder and of all its descendants is recomputed.
func (d *DB) WriteFolder(id int64, name string, parentID int64) error {
	err := d.withTx(func(tx *sql.Tx) error {
		var other int64
		err := tx.QueryRow(`SELECT id FROM folders WHERE name = ? AND parent_id = ? AND id <> ?`,
			name, parentID, id).Scan(&other)
		switch {
		case err == nil:
			return liberr.New(liberr.ErrNameConflict, "write folder", name,
				fmt.Errorf("folder %d already uses this name under parent %d", other, parentID))
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking sibling names: %w", err)
		}

		path, err := childPath(tx, parentID, name)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO folders (id, name, parent_id, path) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id, path = excluded.path`,
			id, name, parentID, path)
		if err != nil {
			return fmt.Errorf("upserting folder: %w", err)
		}
		if err := refreshDescendantPaths(tx, id, path); err != nil {
			return err
		}
		return bumpMetaMax(tx, metaMaxFolderID, id)
	})
	return d.classify(fmt.Sprintf("write folder %d", id), err)
}

// childPath returns the slash-separated path of a folder named name under parentID.
func childPath(tx *sql.Tx, parentID int64, name string) (string, error) {
	if parentID < 0 {
		return name, nil
	}
	var parentPath string
	err := tx.QueryRow(`SELECT path FROM folders WHERE id = ?`, parentID).Scan(&parentPath)
	if errors.Is(err, sql.ErrNoRows) {
		// Parent not written yet; its own write will refresh this path.
		return name, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading parent path: %w", err)
	}
	return parentPath + "/" + name, nil
}

func refreshDescendantPaths(tx *sql.Tx, id int64, path string) error {
	type child struct {
		id   int64
		name string
	}
	queue := []struct {
		id   int64
		path string
	}{{id, path}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		rows, err := tx.Query(`SELECT id, name FROM folders WHERE parent_id = ?`, cur.id)
		if err != nil {
			return fmt.Errorf("listing child folders: %w", err)
		}
		var children []child
		for rows.Next() {
			var c child
			if err := rows.Scan(&c.id, &c.name); err != nil {
				rows.Close()
				return err
			}
			children = append(children, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, c := range children {
			p := cur.path + "/" + c.name
			if _, err := tx.Exec(`UPDATE folders SET path = ? WHERE id = ?`, p, c.id); err != nil {
				return fmt.Errorf("updating folder path: %w", err)
			}
			queue = append(queue, struct {
				id   int64
				path string
			}{c.id, p})
		}
	}
	return nil
}

// DeleteFolder removes the folder row only. Membership of documents is the
// caller's responsibility.
func (d *DB) DeleteFolder(id int64) error {
	_, err := d.db.Exec(`DELETE FROM folders WHERE id = ?`, id)
	return d.classify(fmt.Sprintf("delete folder %d", id), err)
}

// FolderPath returns the stored slash-separated path of a folder.
func (d *DB) FolderPath(id int64) (string, error) {
	var path string
	err := d.db.QueryRow(`SELECT path FROM folders WHERE id = ?`, id).Scan(&path)
	if err != nil {
		return "", d.classify(fmt.Sprintf("read folder %d", id), err)
	}
	return path, nil
}

func (d *DB) readFolders() (map[int64]docmeta.Folder, error) {
	rows, err := d.db.Query(`SELECT id, name, parent_id FROM folders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	folders := make(map[int64]docmeta.Folder)
	err = eachRow(rows, func() error {
		var f docmeta.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID); err != nil {
			return err
		}
		folders[f.ID] = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}
