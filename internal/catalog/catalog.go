// Package catalog is the durable catalog of media records and directories
// (C1 in spec.md §4.1): batch upsert/touch/prune, filtered listing,
// neighbor navigation, and the date histogram, all backed by SQLite.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// maxSQLiteParams is the conservative per-statement bound-parameter ceiling
// used for chunking discipline (spec.md §4.1). Modern SQLite raised the
// default from 999 to 32766; this uses 32766 as the upper bound.
const maxSQLiteParams = 32766

// fieldsPerRecord is the column count of one media_records row — used to
// size the batch_upsert chunk so that chunkSize*fieldsPerRecord stays under
// maxSQLiteParams.
const fieldsPerRecord = 23

// DB wraps the SQLite connection backing the catalog.
type DB struct {
	conn *sql.DB

	batchCheckSize int
	batchWriteSize int
}

// New opens (or creates) the catalog database at dbPath.
func New(dbPath string, batchCheckSize, batchWriteSize int) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite works best with a single writer; §5 requires short transactions
	// rather than a wide connection pool.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if batchCheckSize <= 0 {
		batchCheckSize = 500
	}
	if batchWriteSize <= 0 {
		batchWriteSize = 100
	}
	// Never let a configured chunk size exceed the parameter-ceiling-derived
	// maximum for its statement shape.
	if batchCheckSize > maxSQLiteParams {
		batchCheckSize = maxSQLiteParams
	}
	if max := maxSQLiteParams / fieldsPerRecord; batchWriteSize > max {
		batchWriteSize = max
	}

	db := &DB{conn: conn, batchCheckSize: batchCheckSize, batchWriteSize: batchWriteSize}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS media_records (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL UNIQUE,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	mime_type TEXT,
	file_size INTEGER NOT NULL DEFAULT 0,
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	exif_timestamp DATETIME,
	exif_timezone_offset TEXT,
	create_time DATETIME,
	modify_time DATETIME,
	last_scanned DATETIME,
	camera_make TEXT,
	camera_model TEXT,
	lens_model TEXT,
	exposure_time TEXT,
	aperture REAL,
	iso INTEGER,
	focal_length REAL,
	duration REAL,
	video_codec TEXT,
	thumbnail_generated INTEGER NOT NULL DEFAULT 0,
	sort_time DATETIME GENERATED ALWAYS AS (COALESCE(exif_timestamp, create_time, modify_time)) VIRTUAL
);

CREATE INDEX IF NOT EXISTS idx_media_records_sort_time ON media_records(sort_time, id);
CREATE INDEX IF NOT EXISTS idx_media_records_file_path ON media_records(file_path);
CREATE INDEX IF NOT EXISTS idx_media_records_file_type ON media_records(file_type);
CREATE INDEX IF NOT EXISTS idx_media_records_last_scanned ON media_records(last_scanned);
CREATE INDEX IF NOT EXISTS idx_media_records_camera_model ON media_records(camera_model);

CREATE TABLE IF NOT EXISTS directories (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	parent_id TEXT,
	last_modified DATETIME
);
`

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// IsEmpty reports whether the catalog has no media records yet — used for
// first-run detection.
func (db *DB) IsEmpty() (bool, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM media_records LIMIT 1`).Scan(&count); err != nil {
		return false, wrap("is_empty", err)
	}
	return count == 0, nil
}
