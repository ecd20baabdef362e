package scan

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hysonger/LatteAlbum/internal/models"
)

func TestCollectPathsFiltersByExtensionAndRecurses(t *testing.T) {
	dir := t.TempDir()

	mustWrite := func(rel string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("photo.jpg")
	mustWrite("clip.MP4")
	mustWrite("notes.txt")
	mustWrite("sub/deep/nested.png")
	mustWrite("sub/ignored.pdf")

	e := New(dir, 4, 100, nil, nil, nil, nil)
	paths, dirs, err := e.collectPaths()
	if err != nil {
		t.Fatalf("collectPaths: %v", err)
	}
	if len(dirs) == 0 {
		t.Error("expected at least the base directory to be collected")
	}

	var rels []string
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			t.Fatal(err)
		}
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	want := []string{"clip.MP4", filepath.Join("sub", "deep", "nested.png"), "photo.jpg"}
	sort.Strings(want)

	if len(rels) != len(want) {
		t.Fatalf("collected %v, want %v", rels, want)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Errorf("collected %v, want %v", rels, want)
			break
		}
	}
}

func TestCollectPathsCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "sub"+string(rune('a'+i)))
		if err := os.MkdirAll(name, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(name, "a.jpg"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	e := New(dir, 4, 100, nil, nil, nil, nil)
	e.cancelFlag.Store(true)

	paths, _, err := e.collectPaths()
	if err != nil {
		t.Fatalf("collectPaths: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths collected once cancelled, got %v", paths)
	}
}

func TestDirectoryIDIsDeterministicAndPathScoped(t *testing.T) {
	a := directoryID("/photos/2025")
	b := directoryID("/photos/2025")
	if a != b {
		t.Errorf("expected same path to produce the same id, got %q and %q", a, b)
	}
	if c := directoryID("/photos/2026"); c == a {
		t.Errorf("expected different paths to produce different ids")
	}
}

func TestCollectPathsRecordsDirectoryHierarchy(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(dir, 4, 100, nil, nil, nil, nil)
	_, dirs, err := e.collectPaths()
	if err != nil {
		t.Fatalf("collectPaths: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected base dir and sub dir to be collected, got %d", len(dirs))
	}

	var base, child *models.Directory
	for _, d := range dirs {
		if d.Path == dir {
			base = d
		} else if d.Path == sub {
			child = d
		}
	}
	if base == nil || child == nil {
		t.Fatalf("expected both %q and %q among collected directories: %v", dir, sub, dirs)
	}
	if base.ParentID != nil {
		t.Errorf("expected base directory to have no parent, got %q", *base.ParentID)
	}
	if child.ParentID == nil || *child.ParentID != base.ID {
		t.Errorf("expected sub directory's parent id to match base directory's id")
	}
}

func TestNewDefaultsConcurrency(t *testing.T) {
	e := New("/tmp", 0, 0, nil, nil, nil, nil)
	if e.concurrency <= 0 {
		t.Errorf("expected positive default concurrency, got %d", e.concurrency)
	}
}
