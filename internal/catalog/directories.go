package catalog

import (
	"database/sql"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// UpsertDirectory records (or refreshes) a directory discovered during a
// scan walk (spec.md §3 Directory).
func (db *DB) UpsertDirectory(d *models.Directory) error {
	_, err := db.conn.Exec(`
		INSERT INTO directories (id, path, parent_id, last_modified)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET parent_id=excluded.parent_id, last_modified=excluded.last_modified
	`, d.ID, d.Path, nullString(d.ParentID), nullTime(d.LastModified))
	return wrap("upsert_directory", err)
}

// ListDirectories returns every known directory.
func (db *DB) ListDirectories() ([]*models.Directory, error) {
	rows, err := db.conn.Query(`SELECT id, path, parent_id, last_modified FROM directories ORDER BY path`)
	if err != nil {
		return nil, wrap("list_directories", err)
	}
	defer rows.Close()

	var out []*models.Directory
	for rows.Next() {
		d := &models.Directory{}
		var parentID sql.NullString
		var lastModified sql.NullTime
		if err := rows.Scan(&d.ID, &d.Path, &parentID, &lastModified); err != nil {
			return nil, wrap("list_directories scan", err)
		}
		if parentID.Valid {
			d.ParentID = &parentID.String
		}
		if lastModified.Valid {
			d.LastModified = &lastModified.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDirectoriesMissing removes directory rows whose path no longer
// appears in existingPaths — mirrors DeleteMissing's NOT-IN-via-temp-table
// approach (spec.md §4.1/§3).
func (db *DB) DeleteDirectoriesMissing(existingPaths []string) (int64, error) {
	var affected int64
	err := db.withExistingPaths(existingPaths, func(tableReady bool) error {
		var query string
		if tableReady {
			query = `DELETE FROM directories WHERE path NOT IN (SELECT path FROM temp_existing_paths)`
		} else {
			query = `DELETE FROM directories`
		}
		res, err := db.conn.Exec(query)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, wrap("delete_directories_missing", err)
	}
	return affected, nil
}
