package scan

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hysonger/LatteAlbum/internal/cache"
	"github.com/hysonger/LatteAlbum/internal/catalog"
	"github.com/hysonger/LatteAlbum/internal/models"
	"github.com/hysonger/LatteAlbum/internal/processors"
)

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "webp": true, "tiff": true, "heic": true, "heif": true,
}

var videoExts = map[string]bool{
	"mp4": true, "avi": true, "mov": true, "mkv": true,
	"wmv": true, "flv": true, "webm": true,
}

// Engine is C5: the five-phase incremental scan, grounded on
// original_source's scan_service.rs (perform_scan_parallel), translated
// from tokio tasks + a semaphore into goroutines bounded by a buffered
// channel acting as the same semaphore.
type Engine struct {
	basePath     string
	concurrency  int
	dbBatchWrite int
	registry     *processors.Registry
	db           *catalog.DB
	cache        *cache.Cache
	state        *StateManager

	mu         sync.Mutex
	scanning   bool
	cancelFlag atomic.Bool
}

// New builds a scan engine. concurrency <= 0 defaults to runtime.NumCPU()*2
// per spec.md §4.5.
func New(basePath string, concurrency, dbBatchWrite int, registry *processors.Registry, db *catalog.DB, c *cache.Cache, state *StateManager) *Engine {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() * 2
	}
	return &Engine{
		basePath:     basePath,
		concurrency:  concurrency,
		dbBatchWrite: dbBatchWrite,
		registry:     registry,
		db:           db,
		cache:        c,
		state:        state,
	}
}

// Cancel requests cancellation of an in-progress scan. Returns true if a
// scan was actually running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.scanning {
		return false
	}
	e.cancelFlag.Store(true)
	return true
}

// Scanning reports whether a scan is currently running.
func (e *Engine) Scanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanning
}

// Scan runs one full scan to completion. It is a no-op (returns
// immediately) if a scan is already in progress.
func (e *Engine) Scan(ctx context.Context) {
	e.mu.Lock()
	if e.scanning {
		e.mu.Unlock()
		log.Printf("scan: already in progress, skipping")
		return
	}
	e.scanning = true
	e.cancelFlag.Store(false)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.scanning = false
		e.mu.Unlock()
	}()

	e.state.ResetCounters()
	e.state.Started()

	start := time.Now()

	// Phase 1: Collecting.
	e.state.SetPhase(models.PhaseCollecting)
	paths, dirs, err := e.collectPaths()
	if err != nil {
		log.Printf("scan: collecting failed: %v", err)
		e.state.Error()
		return
	}
	e.writeDirectories(dirs)
	dirPaths := make([]string, len(dirs))
	for i, d := range dirs {
		dirPaths[i] = d.Path
	}

	total := uint64(len(paths))
	e.state.SetTotal(total)

	if total == 0 {
		e.state.SetPhase(models.PhaseCompleted)
		e.state.Completed()
		log.Printf("scan: complete (no files) in %s", time.Since(start))
		return
	}

	// Phase 2: Counting/diffing.
	e.state.SetPhase(models.PhaseCounting)
	toAdd, toUpdate, skipList := e.batchCheckExists(paths)

	filesToDelete, err := e.db.CountMissing(paths)
	if err != nil {
		log.Printf("scan: count missing failed: %v", err)
		filesToDelete = 0
	}
	e.state.SetFileCounts(uint64(toAdd), uint64(toUpdate), uint64(filesToDelete))

	processingCount := toAdd + toUpdate
	var toProcess []string
	if processingCount > 0 {
		skipSet := make(map[string]bool, len(skipList))
		for _, p := range skipList {
			skipSet[p] = true
		}
		for _, p := range paths {
			if !skipSet[p] {
				toProcess = append(toProcess, p)
			}
		}
	}

	if len(toProcess) > 0 {
		e.state.SetPhase(models.PhaseProcessing)
		e.state.SetTotal(uint64(len(toProcess)))

		// Phase 3: Processing.
		records := e.extractMetadata(toProcess)

		// Deterministic write order.
		sort.Slice(records, func(i, j int) bool { return records[i].FilePath < records[j].FilePath })

		// Phase 4: Writing.
		e.state.SetPhase(models.PhaseWriting)
		cancelledDuringWrite := e.writeResults(records, skipList)

		if cancelledDuringWrite || e.cancelFlag.Load() {
			e.state.SetPhase(models.PhaseDeleting)
			e.deleteMissing(paths, dirPaths)
			e.state.Cancelled()
			log.Printf("scan: cancelled after writing %d files", len(records))
			return
		}
	} else {
		e.state.SetPhase(models.PhaseWriting)
		e.state.SetFileCounts(0, 0, uint64(filesToDelete))
		e.writeResults(nil, skipList)

		if e.cancelFlag.Load() {
			e.state.SetPhase(models.PhaseDeleting)
			e.deleteMissing(paths, dirPaths)
			e.state.Cancelled()
			log.Printf("scan: cancelled during touch phase")
			return
		}
	}

	// Phase 5: Deleting.
	e.state.SetPhase(models.PhaseDeleting)
	e.deleteMissing(paths, dirPaths)

	e.state.Completed()
	log.Printf("scan: complete in %s", time.Since(start))
}

// directoryNamespace seeds the deterministic v5 UUIDs assigned to
// directories, so a directory's id (and its parent's) can be computed from
// its path alone without a prior lookup.
var directoryNamespace = uuid.NameSpaceURL

func directoryID(path string) string {
	return uuid.NewSHA1(directoryNamespace, []byte(path)).String()
}

// collectPaths performs the Phase 1 depth-first walk with the fixed
// extension allowlist, bailing out early if cancellation is requested. It
// also materializes every directory the walk descends into (spec.md §3
// Directory), for UpsertDirectory/DeleteDirectoriesMissing in Scan.
func (e *Engine) collectPaths() ([]string, []*models.Directory, error) {
	info, err := os.Stat(e.basePath)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, &os.PathError{Op: "scan", Path: e.basePath, Err: os.ErrInvalid}
	}

	var paths []string
	var dirs []*models.Directory
	stack := []string{e.basePath}

	for len(stack) > 0 {
		if e.cancelFlag.Load() {
			break
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := &models.Directory{ID: directoryID(dir), Path: dir}
		if dir != e.basePath {
			parent := directoryID(filepath.Dir(dir))
			d.ParentID = &parent
		}
		if dirInfo, err := os.Stat(dir); err == nil {
			modTime := dirInfo.ModTime()
			d.LastModified = &modTime
		}
		dirs = append(dirs, d)

		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("scan: read dir %s: %v", dir, err)
			continue
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, full)
				continue
			}
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name()), "."))
			if imageExts[ext] || videoExts[ext] {
				paths = append(paths, full)
			}
		}
	}
	return paths, dirs, nil
}

// writeDirectories upserts every directory the walk visited. Failures are
// logged, not fatal - a stale directories table is recoverable on the next
// scan, unlike a lost media record.
func (e *Engine) writeDirectories(dirs []*models.Directory) {
	for _, d := range dirs {
		if err := e.db.UpsertDirectory(d); err != nil {
			log.Printf("scan: upsert directory %s: %v", d.Path, err)
		}
	}
}

// batchCheckExists is Phase 2: for each chunk of paths, batch-query the
// catalog and classify every path as add/update/skip by comparing
// filesystem modify_time (second precision) against the stored value.
func (e *Engine) batchCheckExists(paths []string) (toAdd, toUpdate int, skipList []string) {
	existing, err := e.db.BatchFindByPaths(paths)
	if err != nil {
		log.Printf("scan: batch check failed: %v, treating all as new", err)
		return len(paths), 0, nil
	}

	byPath := make(map[string]*models.MediaRecord, len(existing))
	for _, r := range existing {
		byPath[r.FilePath] = r
	}

	for _, p := range paths {
		rec, ok := byPath[p]
		if !ok {
			toAdd++
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			toUpdate++
			continue
		}
		fsTime := info.ModTime().Unix()
		dbTime := int64(0)
		if rec.ModifyTime != nil {
			dbTime = rec.ModifyTime.Unix()
		}
		if fsTime == dbTime {
			skipList = append(skipList, p)
		} else {
			toUpdate++
		}
	}
	return toAdd, toUpdate, skipList
}

// extractMetadata is Phase 3: bounded-concurrency metadata extraction.
// Cancelled-mid-flight paths are dropped silently (not counted).
func (e *Engine) extractMetadata(paths []string) []*models.MediaRecord {
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []*models.MediaRecord

	for _, p := range paths {
		if e.cancelFlag.Load() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			if e.cancelFlag.Load() {
				return
			}

			if e.cache.HasFailed(path) {
				e.state.IncrementFailure()
				return
			}

			rec, err := e.processOne(path)
			if err != nil {
				e.state.IncrementFailure()
				e.cache.RecordFailure(path)
				log.Printf("scan: failed to process %s: %v", path, err)
				return
			}
			e.cache.ClearFailure(path)
			e.state.IncrementSuccess()

			mu.Lock()
			results = append(results, rec)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

func (e *Engine) processOne(path string) (*models.MediaRecord, error) {
	fileMeta, err := processors.ExtractFileMetadata(path)
	if err != nil {
		return nil, err
	}

	proc := e.registry.Find(path)
	if proc == nil {
		return nil, &processors.ProcessingError{Kind: processors.ErrUnsupportedFormat, Path: path}
	}

	formatMeta, err := proc.Process(path)
	if err != nil {
		return nil, err
	}

	fileType := models.FileTypeImage
	if proc.MediaType() == processors.MediaVideo {
		fileType = models.FileTypeVideo
	}

	now := time.Now()
	rec := &models.MediaRecord{
		ID:                 uuid.NewString(),
		FilePath:           path,
		FileName:           filepath.Base(path),
		FileType:           fileType,
		MimeType:           formatMeta.MimeType,
		FileSize:           fileMeta.FileSize,
		Width:              formatMeta.Width,
		Height:             formatMeta.Height,
		ExifTimestamp:      formatMeta.ExifTimestamp,
		ExifTimezoneOffset: formatMeta.ExifTimezoneOffset,
		CreateTime:         &fileMeta.CreateTime,
		ModifyTime:         &fileMeta.ModifyTime,
		LastScanned:        &now,
		CameraMake:         formatMeta.CameraMake,
		CameraModel:        formatMeta.CameraModel,
		LensModel:          formatMeta.LensModel,
		ExposureTime:       formatMeta.ExposureTime,
		Aperture:           formatMeta.Aperture,
		ISO:                formatMeta.ISO,
		FocalLength:        formatMeta.FocalLength,
		Duration:           formatMeta.Duration,
		VideoCodec:         formatMeta.VideoCodec,
		ThumbnailGenerated: false,
	}
	return rec, nil
}

// writeResults is Phase 4: chunked batch-upsert with a cancellation check
// after each chunk, followed by an unconditional batch_touch of skipList
// when not cancelled mid-write.
func (e *Engine) writeResults(records []*models.MediaRecord, skipList []string) bool {
	batchSize := e.dbBatchWrite
	if batchSize <= 0 {
		batchSize = 100
	}

	cancelledMidWrite := false
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		if err := e.db.BatchUpsert(chunk); err != nil {
			log.Printf("scan: batch upsert failed: %v", err)
		}
		if e.cancelFlag.Load() {
			cancelledMidWrite = true
			break
		}
	}

	// Per spec.md §4.5 Phase 4: touch skip_list unconditionally once the
	// writing phase completes without mid-chunk cancellation.
	if !cancelledMidWrite && len(skipList) > 0 {
		if err := e.db.BatchTouch(skipList); err != nil {
			log.Printf("scan: batch touch failed: %v", err)
		}
	}
	return cancelledMidWrite
}

// deleteMissing is Phase 5: never runs if cancellation was requested, so
// partial processing never orphans records against an incomplete
// existing_paths view. It prunes both file records and directory rows no
// longer present under existingPaths/existingDirPaths.
func (e *Engine) deleteMissing(existingPaths, existingDirPaths []string) {
	if e.cancelFlag.Load() {
		log.Printf("scan: skipping delete phase - scan was cancelled")
		return
	}
	count, err := e.db.DeleteMissing(existingPaths)
	if err != nil {
		log.Printf("scan: delete missing failed: %v", err)
	} else if count > 0 {
		log.Printf("scan: deleted %d missing files", count)
	}

	dirCount, err := e.db.DeleteDirectoriesMissing(existingDirPaths)
	if err != nil {
		log.Printf("scan: delete missing directories failed: %v", err)
		return
	}
	if dirCount > 0 {
		log.Printf("scan: deleted %d missing directories", dirCount)
	}
}
