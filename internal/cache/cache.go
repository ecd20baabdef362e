// Package cache implements C3 from spec.md §4.3: a two-tier thumbnail
// cache backed by an in-memory capacity+TTL tier and a disk tier with no
// expiry. Grounded on the teacher's internal/thumbnail/thumbnail.go disk
// cache-file layout and failure-cache persistence, with the memory tier
// adapted from original_source's moka-based cache_service.rs (capacity +
// time-to-live eviction) expressed via hashicorp/golang-lru's expirable
// LRU, the same dependency perkeep-perkeep carries.
package cache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// Cache is the two-tier thumbnail store: a bounded, TTL-expiring memory
// tier in front of a disk tier with no expiry. Entries are addressed by
// record ID and size label (spec.md §3 SizeLabel), and are raw bytes with
// no embedded content-type — spec.md §6's cache file layout carries no
// headers, so callers (C7) derive Content-Type from the record/size
// themselves.
type Cache struct {
	diskDir string
	mem     *lru.LRU[string, []byte]

	failMu    sync.RWMutex
	failCache map[string]bool
}

// New creates a cache rooted at diskDir (spec.md §6 CACHE_DIR), with a
// memory tier capped at capacity entries and ttl time-to-live (defaults
// 1000 / 3600s per spec.md §6).
func New(diskDir string, capacity int, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(diskDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		diskDir:   diskDir,
		mem:       lru.NewLRU[string, []byte](capacity, nil, ttl),
		failCache: make(map[string]bool),
	}
	c.loadFailCache()
	return c, nil
}

func cacheKey(recordID string, size models.SizeLabel) string {
	return recordID + "_" + string(size)
}

// diskFileName follows spec.md §6's cache file layout literally:
// {record_id}_{size_label}, no extension, no headers.
func diskFileName(recordID string, size models.SizeLabel) string {
	return cacheKey(recordID, size)
}

func (c *Cache) diskPathFor(recordID string, size models.SizeLabel) string {
	return filepath.Join(c.diskDir, diskFileName(recordID, size))
}

// DiskPath returns the on-disk path a thumbnail for (recordID, size) would
// occupy, whether or not it currently exists.
func (c *Cache) DiskPath(recordID string, size models.SizeLabel) string {
	return c.diskPathFor(recordID, size)
}

// Get returns a cached thumbnail, checking the memory tier first and
// falling back to disk (populating memory on a disk hit). ok is false on
// a full miss.
func (c *Cache) Get(recordID string, size models.SizeLabel) ([]byte, bool) {
	key := cacheKey(recordID, size)
	if data, ok := c.mem.Get(key); ok {
		return data, true
	}

	data, err := os.ReadFile(c.diskPathFor(recordID, size))
	if err != nil {
		return nil, false
	}
	c.mem.Add(key, data)
	return data, true
}

// Put writes a thumbnail to both tiers.
func (c *Cache) Put(recordID string, size models.SizeLabel, data []byte) error {
	key := cacheKey(recordID, size)
	c.mem.Add(key, data)

	path := c.diskPathFor(recordID, size)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return os.Rename(tmp, path)
}

// Delete removes a cached thumbnail for one size, or every size when size
// is empty.
func (c *Cache) Delete(recordID string, size models.SizeLabel) error {
	sizes := []models.SizeLabel{size}
	if size == "" {
		sizes = []models.SizeLabel{models.SizeSmall, models.SizeMedium, models.SizeLarge, models.SizeFull}
	}
	for _, s := range sizes {
		c.mem.Remove(cacheKey(recordID, s))
		if err := os.Remove(c.diskPathFor(recordID, s)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ClearAll empties both cache tiers entirely.
func (c *Cache) ClearAll() error {
	c.mem.Purge()
	entries, err := os.ReadDir(c.diskDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == failCacheFileName {
			continue
		}
		if err := os.Remove(filepath.Join(c.diskDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// SizeMB returns the disk tier's total size in megabytes.
func (c *Cache) SizeMB() (float64, error) {
	entries, err := os.ReadDir(c.diskDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return float64(total) / (1024 * 1024), nil
}

const failCacheFileName = "fail_cache.txt"

func (c *Cache) failCachePath() string {
	return filepath.Join(c.diskDir, failCacheFileName)
}

func (c *Cache) loadFailCache() {
	f, err := os.Open(c.failCachePath())
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			c.failCache[line] = true
		}
	}
}

// RecordFailure marks a source file path as having failed thumbnail
// generation, so the scan engine doesn't retry it on every run.
func (c *Cache) RecordFailure(path string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	if c.failCache[path] {
		return
	}
	c.failCache[path] = true

	f, err := os.OpenFile(c.failCachePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, path)
}

// HasFailed reports whether path is in the failure cache.
func (c *Cache) HasFailed(path string) bool {
	c.failMu.RLock()
	defer c.failMu.RUnlock()
	return c.failCache[path]
}

// ClearFailure removes path from the failure cache, e.g. after the
// underlying file changes.
func (c *Cache) ClearFailure(path string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	delete(c.failCache, path)
}
