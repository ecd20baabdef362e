// Package fileservice implements C7 from spec.md §4.7: thumbnail retrieval
// (cache-then-generate-then-passthrough) and Range-aware original-file
// streaming, grounded on the teacher's internal/thumbnail/thumbnail.go
// (cache-or-generate flow) and internal/httpapi's original-file handler for
// the Range-parsing shape.
package fileservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hysonger/LatteAlbum/internal/cache"
	"github.com/hysonger/LatteAlbum/internal/catalog"
	"github.com/hysonger/LatteAlbum/internal/models"
	"github.com/hysonger/LatteAlbum/internal/processors"
	"github.com/hysonger/LatteAlbum/internal/transcode"
)

// ErrNotFound indicates the record or its underlying file is gone.
var ErrNotFound = errors.New("fileservice: not found")

// ErrInvalidRange indicates a Range header that cannot be satisfied.
var ErrInvalidRange = errors.New("fileservice: invalid range")

// streamThreshold is spec.md §4.7's 50 MiB line: above it, get_original
// always streams rather than buffering a single read.
const streamThreshold = 50 * 1024 * 1024

// Sizes carries the configured pixel targets for the three non-full
// thumbnail presets (spec.md §6 THUMBNAIL_SMALL|MEDIUM|LARGE).
type Sizes struct {
	Small  int
	Medium int
	Large  int
}

func (s Sizes) target(label models.SizeLabel) int {
	switch label {
	case models.SizeSmall:
		return s.Small
	case models.SizeMedium:
		return s.Medium
	case models.SizeLarge:
		return s.Large
	default:
		return 0
	}
}

// Service is C7.
type Service struct {
	db       *catalog.DB
	cache    *cache.Cache
	registry *processors.Registry
	pool     *transcode.Pool
	sizes    Sizes
	quality  float64
}

func New(db *catalog.DB, c *cache.Cache, registry *processors.Registry, pool *transcode.Pool, sizes Sizes, quality float64) *Service {
	return &Service{db: db, cache: c, registry: registry, pool: pool, sizes: sizes, quality: quality}
}

// CacheSizeMB reports the thumbnail disk cache's current size in
// megabytes, for the system status endpoint (spec.md §6 "cache_size_mb").
func (s *Service) CacheSizeMB() (float64, error) {
	return s.cache.SizeMB()
}

// Thumbnail is the result of GetThumbnail: raw bytes plus the MIME type
// they should be served under.
type Thumbnail struct {
	Data []byte
	Mime string
}

// GetThumbnail implements spec.md §4.7's get_thumbnail: cache lookup, then
// passthrough for browser-native full-size originals, then processor
// generation through the transcoding pool, then a magic-byte fallback.
// Returns (nil, ErrNotFound) when the record or its file doesn't exist.
func (s *Service) GetThumbnail(ctx context.Context, id string, size models.SizeLabel, fitToHeight bool) (*Thumbnail, error) {
	if data, ok := s.cache.Get(id, size); ok {
		return &Thumbnail{Data: data, Mime: mimeForCacheHit(id, size, s.db)}, nil
	}

	rec, err := s.db.FindByID(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := os.Stat(rec.FilePath); err != nil {
		return nil, ErrNotFound
	}

	ext := extOf(rec.FilePath)

	if size == models.SizeFull && processors.IsBrowserNative(ext) {
		data, err := os.ReadFile(rec.FilePath)
		if err != nil {
			return nil, fmt.Errorf("read original: %w", err)
		}
		if err := s.cache.Put(id, models.SizeFull, data); err != nil {
			return nil, fmt.Errorf("cache put: %w", err)
		}
		mime := rec.MimeType
		if mime == "" {
			mime = mimeForExt(ext)
		}
		return &Thumbnail{Data: data, Mime: mime}, nil
	}

	proc := s.registry.Find(rec.FilePath)
	if proc != nil {
		targetSize := s.sizes.target(size)
		var data []byte
		genErr := s.pool.Scope(ctx, func() error {
			var err error
			data, err = proc.GenerateThumbnail(rec.FilePath, targetSize, s.quality, fitToHeight)
			return err
		})
		if genErr == nil {
			if err := s.cache.Put(id, size, data); err != nil {
				return nil, fmt.Errorf("cache put: %w", err)
			}
			return &Thumbnail{Data: data, Mime: "image/jpeg"}, nil
		}
		s.cache.RecordFailure(rec.FilePath)
	}

	if size != models.SizeFull {
		if data, mime, ok := magicByteFallback(rec.FilePath); ok {
			return &Thumbnail{Data: data, Mime: mime}, nil
		}
	}

	return nil, ErrNotFound
}

func mimeForCacheHit(id string, size models.SizeLabel, db *catalog.DB) string {
	if size != models.SizeFull {
		return "image/jpeg"
	}
	rec, err := db.FindByID(id)
	if err != nil || rec.MimeType == "" {
		return "application/octet-stream"
	}
	return rec.MimeType
}

// magicByteFallback returns raw file bytes when the file starts with a
// recognized image signature (JPEG SOI or PNG), spec.md §4.7's
// "better than nothing" best effort for an unthumbnailable file.
func magicByteFallback(path string) ([]byte, string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false
	}
	defer f.Close()

	header := make([]byte, 8)
	n, _ := io.ReadFull(f, header)
	header = header[:n]

	var mime string
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8}):
		mime = "image/jpeg"
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		mime = "image/png"
	default:
		return nil, "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", false
	}
	return data, mime, true
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

func mimeForExt(ext string) string {
	return processors.MimeForExtension(ext)
}

// Range is a parsed, already-clamped byte range: [Start, End] inclusive.
type Range struct {
	Start, End int64
}

// Original is a streamable response for get_original: either the full file
// or a clamped byte range, along with the total file size and MIME type.
type Original struct {
	Reader      io.ReadCloser
	Size        int64
	Range       *Range // nil for a full (200) response
	ContentType string
}

// GetOriginal implements spec.md §4.7's get_original: always served from
// the filesystem, never cached. rangeHeader is the raw "Range:" header
// value, or "" for a full read.
func (s *Service) GetOriginal(id string, rangeHeader string) (*Original, error) {
	rec, err := s.db.FindByID(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	info, err := os.Stat(rec.FilePath)
	if err != nil {
		return nil, ErrNotFound
	}
	size := info.Size()

	mime := rec.MimeType
	if mime == "" {
		mime = mimeForExt(extOf(rec.FilePath))
	}

	f, err := os.Open(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open original: %w", err)
	}

	if rangeHeader == "" {
		return &Original{Reader: f, Size: size, ContentType: mime}, nil
	}

	rng, err := parseRange(rangeHeader, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek original: %w", err)
	}

	length := rng.End - rng.Start + 1
	return &Original{
		Reader:      &limitedReadCloser{r: io.LimitReader(f, length), c: f},
		Size:        size,
		Range:       &rng,
		ContentType: mime,
	}, nil
}

// parseRange parses a single "bytes=start-end" range header and clamps it
// to [0, size-1], per spec.md §4.7. Open-ended forms ("bytes=500-" and
// "bytes=-500") are both supported.
func parseRange(header string, size int64) (Range, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, ErrInvalidRange
	}
	spec := strings.TrimPrefix(header, prefix)
	// Only the first range of a (possibly multi-range) header is honored.
	spec = strings.Split(spec, ",")[0]

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return Range{}, ErrInvalidRange
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// Suffix form: last N bytes.
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil || n <= 0 {
			return Range{}, ErrInvalidRange
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil || start < 0 {
			return Range{}, ErrInvalidRange
		}
		if parts[1] == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return Range{}, ErrInvalidRange
			}
		}
	}

	if end >= size {
		end = size - 1
	}
	if start > end || start >= size {
		return Range{}, ErrInvalidRange
	}

	return Range{Start: start, End: end}, nil
}

// limitedReadCloser pairs an io.Reader view (the range slice) with the
// underlying file so the caller can still Close it.
type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

// StreamingRequired reports whether size exceeds the threshold at which
// get_original must stream rather than buffer.
func StreamingRequired(size int64) bool { return size > streamThreshold }
