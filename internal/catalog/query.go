package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// SortField selects which stored time column backs an ordering or
// date-prefix match (spec.md §4.1).
type SortField string

const (
	SortExifTimestamp SortField = "exif_timestamp"
	SortCreateTime    SortField = "create_time"
	SortModifyTime    SortField = "modify_time"
	// SortEffective orders by the generated sort_time column, which
	// approximates EffectiveSortTime (COALESCE over the three columns) at
	// the SQL layer for indexed ordering; models.MediaRecord.EffectiveSortTime
	// remains the authoritative per-record definition used by neighbor lookup.
	SortEffective SortField = "sort_time"
)

func (s SortField) column() string {
	switch s {
	case SortExifTimestamp, SortCreateTime, SortModifyTime:
		return string(s)
	default:
		return string(SortEffective)
	}
}

// Order is ascending or descending.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

func (o Order) sql() string {
	if o == OrderAsc {
		return "ASC"
	}
	return "DESC"
}

// ListFilter narrows FindAll and Count.
type ListFilter struct {
	Path        string // prefix match against file_path's directory
	FileType    string // "image", "video", or "" for all
	CameraModel string
	DatePrefix  string // "YYYY-MM-DD" matched against any of the three time columns
	SortField   SortField
	Order       Order
	Page        int
	Size        int
}

func (f ListFilter) whereClause() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Path != "" {
		clauses = append(clauses, "file_path LIKE ? ESCAPE '\\'")
		args = append(args, likePrefix(f.Path)+"%")
	}
	if f.FileType != "" {
		clauses = append(clauses, "file_type = ?")
		args = append(args, f.FileType)
	}
	if f.CameraModel != "" {
		clauses = append(clauses, "camera_model = ?")
		args = append(args, f.CameraModel)
	}
	if f.DatePrefix != "" {
		clauses = append(clauses, `(substr(exif_timestamp,1,10) = ? OR substr(create_time,1,10) = ? OR substr(modify_time,1,10) = ?)`)
		args = append(args, f.DatePrefix, f.DatePrefix, f.DatePrefix)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func likePrefix(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

// FindAll returns a page of records ordered with nulls-last semantics:
// "(column IS NULL, column order)" per spec.md §4.1.
func (db *DB) FindAll(f ListFilter) ([]*models.MediaRecord, error) {
	where, args := f.whereClause()
	col := f.SortField.column()

	page := f.Page
	if page < 0 {
		page = 0
	}
	size := f.Size
	if size <= 0 {
		size = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM media_records%s ORDER BY (%s IS NULL), %s %s, id %s LIMIT ? OFFSET ?`,
		recordColumns, where, col, col, f.Order.sql(), f.Order.sql())
	args = append(args, size, page*size)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, wrap("find_all", err)
	}
	defer rows.Close()

	var out []*models.MediaRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrap("find_all scan", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindByID returns a single record by id, or ErrNotFound.
func (db *DB) FindByID(id string) (*models.MediaRecord, error) {
	row := db.conn.QueryRow(fmt.Sprintf(`SELECT %s FROM media_records WHERE id = ?`, recordColumns), id)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, wrap("find_by_id", err)
	}
	return rec, nil
}

// FindByPath returns a single record by its unique file_path, or ErrNotFound.
func (db *DB) FindByPath(path string) (*models.MediaRecord, error) {
	row := db.conn.QueryRow(fmt.Sprintf(`SELECT %s FROM media_records WHERE file_path = ?`, recordColumns), path)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, wrap("find_by_path", err)
	}
	return rec, nil
}

// Count returns the number of records matching the (optional) path/type filter.
func (db *DB) Count(pathPrefix, fileType string) (int, error) {
	f := ListFilter{Path: pathPrefix, FileType: fileType}
	where, args := f.whereClause()
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM media_records`+where, args...).Scan(&count)
	if err != nil {
		return 0, wrap("count", err)
	}
	return count, nil
}

// MaxLastScanned returns the most recent last_scanned value across the
// catalog, or nil if no record has been scanned yet (spec.md §6's
// GET /api/system/status "last_scan_time").
func (db *DB) MaxLastScanned() (*time.Time, error) {
	var t sql.NullTime
	err := db.conn.QueryRow(`SELECT MAX(last_scanned) FROM media_records`).Scan(&t)
	if err != nil {
		return nil, wrap("max_last_scanned", err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// FindNeighbors returns the nearest record strictly before/after the given
// reference instant by effective sort time (spec.md §4.1).
func (db *DB) FindNeighbors(id string, sortTime *string, before bool) (*models.MediaRecord, error) {
	op := ">"
	order := "ASC"
	if before {
		op = "<"
		order = "DESC"
	}

	var ref interface{}
	if sortTime != nil {
		ref = *sortTime
	}

	query := fmt.Sprintf(`SELECT %s FROM media_records WHERE id != ? AND sort_time IS NOT NULL AND sort_time %s ? ORDER BY sort_time %s LIMIT 1`,
		recordColumns, op, order)
	row := db.conn.QueryRow(query, id, ref)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, wrap("find_neighbors", err)
	}
	return rec, nil
}

// FindDatesWithFiles returns per-date counts, EXIF-then-create-then-modify
// precedence per spec.md §4.1.
func (db *DB) FindDatesWithFiles(pathPrefix, fileType string) ([]models.DateCount, error) {
	f := ListFilter{Path: pathPrefix, FileType: fileType}
	where, args := f.whereClause()

	inner := `SELECT COALESCE(substr(exif_timestamp,1,10), substr(create_time,1,10), substr(modify_time,1,10)) AS d FROM media_records` + where
	query := fmt.Sprintf(`SELECT d, COUNT(*) FROM (%s) WHERE d IS NOT NULL GROUP BY d ORDER BY d DESC`, inner)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, wrap("find_dates_with_files", err)
	}
	defer rows.Close()

	var out []models.DateCount
	for rows.Next() {
		var dc models.DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, wrap("find_dates_with_files scan", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
