package cache

import (
	"os"
	"testing"
	"time"

	"github.com/hysonger/LatteAlbum/internal/models"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), 10, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("thumbnail bytes")
	if err := c.Put("abc", models.SizeMedium, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("abc", models.SizeMedium)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}

	if _, ok := c.Get("abc", models.SizeLarge); ok {
		t.Error("expected miss for a different size label")
	}
}

func TestGetFallsBackToDiskWhenMemoryEvicted(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("on disk only")
	if err := c.Put("xyz", models.SizeSmall, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.mem.Purge()

	got, ok := c.Get("xyz", models.SizeSmall)
	if !ok {
		t.Fatal("expected disk-tier hit after memory purge")
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestDeleteRemovesSingleSize(t *testing.T) {
	c, err := New(t.TempDir(), 10, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("id1", models.SizeSmall, []byte("a"))
	c.Put("id1", models.SizeMedium, []byte("b"))

	if err := c.Delete("id1", models.SizeSmall); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok := c.Get("id1", models.SizeSmall); ok {
		t.Error("expected small size to be deleted")
	}
	if _, ok := c.Get("id1", models.SizeMedium); !ok {
		t.Error("expected medium size to remain")
	}
}

func TestFailureCachePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c1.RecordFailure("/photos/broken.jpg")

	if !c1.HasFailed("/photos/broken.jpg") {
		t.Fatal("expected HasFailed true immediately after RecordFailure")
	}

	c2, err := New(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if !c2.HasFailed("/photos/broken.jpg") {
		t.Error("expected failure cache to persist across instances")
	}

	c2.ClearFailure("/photos/broken.jpg")
	if c2.HasFailed("/photos/broken.jpg") {
		t.Error("expected ClearFailure to remove the entry")
	}
}

func TestClearAllPreservesFailCacheFile(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 10, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("id", models.SizeFull, []byte("data"))
	c.RecordFailure("/photos/broken.jpg")

	if err := c.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if _, ok := c.Get("id", models.SizeFull); ok {
		t.Error("expected thumbnail to be cleared")
	}
	if !c.HasFailed("/photos/broken.jpg") {
		t.Error("expected failure cache file to survive ClearAll")
	}
	if _, err := os.Stat(c.failCachePath()); err != nil {
		t.Errorf("expected fail cache file to still exist: %v", err)
	}
}
