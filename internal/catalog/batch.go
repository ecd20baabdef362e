package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// chunkStrings splits paths into groups no larger than size.
func chunkStrings(paths []string, size int) [][]string {
	if size <= 0 {
		size = len(paths)
	}
	var chunks [][]string
	for i := 0; i < len(paths); i += size {
		end := i + size
		if end > len(paths) {
			end = len(paths)
		}
		chunks = append(chunks, paths[i:end])
	}
	return chunks
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// BatchFindByPaths returns the catalog records whose file_path is among
// paths, chunked so each statement's bound-parameter count stays under
// the ceiling (spec.md §4.1, invariant #12).
func (db *DB) BatchFindByPaths(paths []string) ([]*models.MediaRecord, error) {
	var out []*models.MediaRecord
	for _, chunk := range chunkStrings(paths, db.batchCheckSize) {
		if len(chunk) == 0 {
			continue
		}
		query := fmt.Sprintf(`SELECT %s FROM media_records WHERE file_path IN (%s)`, recordColumns, placeholders(len(chunk)))
		args := make([]interface{}, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		rows, err := db.conn.Query(query, args...)
		if err != nil {
			return nil, wrap("batch_find_by_paths", err)
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, wrap("batch_find_by_paths scan", err)
			}
			out = append(out, rec)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrap("batch_find_by_paths", err)
		}
	}
	return out, nil
}

const upsertSQL = `
INSERT INTO media_records (
	id, file_path, file_name, file_type, mime_type, file_size, width, height,
	exif_timestamp, exif_timezone_offset, create_time, modify_time, last_scanned,
	camera_make, camera_model, lens_model, exposure_time, aperture, iso, focal_length,
	duration, video_codec, thumbnail_generated
) VALUES (%s)
ON CONFLICT(file_path) DO UPDATE SET
	file_name=excluded.file_name, file_type=excluded.file_type, mime_type=excluded.mime_type,
	file_size=excluded.file_size, width=excluded.width, height=excluded.height,
	exif_timestamp=excluded.exif_timestamp, exif_timezone_offset=excluded.exif_timezone_offset,
	create_time=excluded.create_time, modify_time=excluded.modify_time, last_scanned=excluded.last_scanned,
	camera_make=excluded.camera_make, camera_model=excluded.camera_model, lens_model=excluded.lens_model,
	exposure_time=excluded.exposure_time, aperture=excluded.aperture, iso=excluded.iso,
	focal_length=excluded.focal_length, duration=excluded.duration, video_codec=excluded.video_codec,
	thumbnail_generated=excluded.thumbnail_generated
`

// BatchUpsert inserts or replaces records by file_path match, in chunked
// transactions sized so chunkSize*fieldsPerRecord stays under the
// parameter ceiling (spec.md §4.1).
func (db *DB) BatchUpsert(records []*models.MediaRecord) error {
	if len(records) == 0 {
		return nil
	}

	chunkSize := db.batchWriteSize
	for i := 0; i < len(records); i += chunkSize {
		end := i + chunkSize
		if end > len(records) {
			end = len(records)
		}
		if err := db.upsertChunk(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) upsertChunk(records []*models.MediaRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return wrap("batch_upsert begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(upsertSQL, placeholders(fieldsPerRecord)))
	if err != nil {
		return wrap("batch_upsert prepare", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return wrap("batch_upsert", fmt.Errorf("record for %q missing id", r.FilePath))
		}
		_, err := stmt.Exec(
			r.ID, r.FilePath, r.FileName, string(r.FileType), nullableString(r.MimeType),
			r.FileSize, r.Width, r.Height,
			nullTime(r.ExifTimestamp), nullString(r.ExifTimezoneOffset), nullTime(r.CreateTime),
			nullTime(r.ModifyTime), nullTime(r.LastScanned),
			nullString(r.CameraMake), nullString(r.CameraModel), nullString(r.LensModel),
			nullString(r.ExposureTime), nullFloat(r.Aperture), nullInt(r.ISO), nullFloat(r.FocalLength),
			nullFloat(r.Duration), nullString(r.VideoCodec), boolToInt(r.ThumbnailGenerated),
		)
		if err != nil {
			return wrap("batch_upsert exec", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("batch_upsert commit", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BatchTouch updates last_scanned to now for every matching path — the
// "touch" operation from the GLOSSARY, used to keep skip-list files fresh
// without re-extracting their metadata.
func (db *DB) BatchTouch(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	now := time.Now()
	for _, chunk := range chunkStrings(paths, db.batchCheckSize) {
		if len(chunk) == 0 {
			continue
		}
		query := fmt.Sprintf(`UPDATE media_records SET last_scanned = ? WHERE file_path IN (%s)`, placeholders(len(chunk)))
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, now)
		for _, p := range chunk {
			args = append(args, p)
		}
		if _, err := db.conn.Exec(query, args...); err != nil {
			return wrap("batch_touch", err)
		}
	}
	return nil
}

// withExistingPaths populates a session-scoped temp table with paths so
// count_missing/delete_missing can evaluate NOT IN against an arbitrarily
// large set without building one giant parameter list — the IN-chunking
// discipline still applies to populating the temp table.
func (db *DB) withExistingPaths(paths []string, fn func(tableReady bool) error) error {
	if _, err := db.conn.Exec(`CREATE TEMP TABLE IF NOT EXISTS temp_existing_paths (path TEXT PRIMARY KEY)`); err != nil {
		return wrap("temp table create", err)
	}
	defer db.conn.Exec(`DELETE FROM temp_existing_paths`)

	for _, chunk := range chunkStrings(paths, db.batchCheckSize) {
		if len(chunk) == 0 {
			continue
		}
		query := fmt.Sprintf(`INSERT OR IGNORE INTO temp_existing_paths(path) VALUES %s`,
			strings.TrimSuffix(strings.Repeat("(?),", len(chunk)), ","))
		args := make([]interface{}, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		if _, err := db.conn.Exec(query, args...); err != nil {
			return wrap("temp table populate", err)
		}
	}

	return fn(len(paths) > 0)
}

// CountMissing estimates the number of rows that DeleteMissing would remove
// (spec.md §4.1) — used for progress reporting before the destructive pass.
func (db *DB) CountMissing(existingPaths []string) (int, error) {
	var count int
	err := db.withExistingPaths(existingPaths, func(tableReady bool) error {
		var query string
		if tableReady {
			query = `SELECT COUNT(*) FROM media_records WHERE last_scanned IS NOT NULL AND file_path NOT IN (SELECT path FROM temp_existing_paths)`
		} else {
			query = `SELECT COUNT(*) FROM media_records WHERE last_scanned IS NOT NULL`
		}
		return db.conn.QueryRow(query).Scan(&count)
	})
	if err != nil {
		return 0, wrap("count_missing", err)
	}
	return count, nil
}

// DeleteMissing deletes rows whose file_path is absent from existingPaths
// AND whose last_scanned is set — never touching rows from an in-progress
// insert window that have no last_scanned yet (spec.md §4.1 invariant).
func (db *DB) DeleteMissing(existingPaths []string) (int64, error) {
	var affected int64
	err := db.withExistingPaths(existingPaths, func(tableReady bool) error {
		var query string
		if tableReady {
			query = `DELETE FROM media_records WHERE last_scanned IS NOT NULL AND file_path NOT IN (SELECT path FROM temp_existing_paths)`
		} else {
			query = `DELETE FROM media_records WHERE last_scanned IS NOT NULL`
		}
		res, err := db.conn.Exec(query)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, wrap("delete_missing", err)
	}
	return affected, nil
}
