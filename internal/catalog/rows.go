package catalog

import (
	"database/sql"
	"time"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// recordColumns is the column list shared by every SELECT that returns a
// full MediaRecord, keeping column order in lock-step with scanRecord.
const recordColumns = `id, file_path, file_name, file_type, mime_type, file_size, width, height,
	exif_timestamp, exif_timezone_offset, create_time, modify_time, last_scanned,
	camera_make, camera_model, lens_model, exposure_time, aperture, iso, focal_length,
	duration, video_codec, thumbnail_generated`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.MediaRecord, error) {
	r := &models.MediaRecord{}
	var (
		mimeType      sql.NullString
		exifTimestamp sql.NullTime
		exifTZ        sql.NullString
		createTime    sql.NullTime
		modifyTime    sql.NullTime
		lastScanned   sql.NullTime
		cameraMake    sql.NullString
		cameraModel   sql.NullString
		lensModel     sql.NullString
		exposureTime  sql.NullString
		aperture      sql.NullFloat64
		iso           sql.NullInt64
		focalLength   sql.NullFloat64
		duration      sql.NullFloat64
		videoCodec    sql.NullString
		thumbGen      int
	)

	err := row.Scan(
		&r.ID, &r.FilePath, &r.FileName, &r.FileType, &mimeType, &r.FileSize, &r.Width, &r.Height,
		&exifTimestamp, &exifTZ, &createTime, &modifyTime, &lastScanned,
		&cameraMake, &cameraModel, &lensModel, &exposureTime, &aperture, &iso, &focalLength,
		&duration, &videoCodec, &thumbGen,
	)
	if err != nil {
		return nil, err
	}

	if mimeType.Valid {
		r.MimeType = mimeType.String
	}
	if exifTimestamp.Valid {
		t := exifTimestamp.Time
		r.ExifTimestamp = &t
	}
	if exifTZ.Valid {
		s := exifTZ.String
		r.ExifTimezoneOffset = &s
	}
	if createTime.Valid {
		t := createTime.Time
		r.CreateTime = &t
	}
	if modifyTime.Valid {
		t := modifyTime.Time
		r.ModifyTime = &t
	}
	if lastScanned.Valid {
		t := lastScanned.Time
		r.LastScanned = &t
	}
	if cameraMake.Valid {
		s := cameraMake.String
		r.CameraMake = &s
	}
	if cameraModel.Valid {
		s := cameraModel.String
		r.CameraModel = &s
	}
	if lensModel.Valid {
		s := lensModel.String
		r.LensModel = &s
	}
	if exposureTime.Valid {
		s := exposureTime.String
		r.ExposureTime = &s
	}
	if aperture.Valid {
		v := aperture.Float64
		r.Aperture = &v
	}
	if iso.Valid {
		v := int(iso.Int64)
		r.ISO = &v
	}
	if focalLength.Valid {
		v := focalLength.Float64
		r.FocalLength = &v
	}
	if duration.Valid {
		v := duration.Float64
		r.Duration = &v
	}
	if videoCodec.Valid {
		s := videoCodec.String
		r.VideoCodec = &s
	}
	r.ThumbnailGenerated = thumbGen != 0

	return r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
