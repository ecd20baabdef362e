package fileservice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRange(t *testing.T) {
	const size = int64(1000)

	cases := []struct {
		header    string
		wantStart int64
		wantEnd   int64
		wantErr   bool
	}{
		{"bytes=0-499", 0, 499, false},
		{"bytes=500-999", 500, 999, false},
		{"bytes=500-", 500, 999, false},
		{"bytes=-200", 800, 999, false},
		{"bytes=900-2000", 900, 999, false}, // end clamped
		{"bytes=1000-1100", 0, 0, true},     // start beyond size
		{"bytes=500-100", 0, 0, true},       // start > end
		{"500-999", 0, 0, true},             // missing "bytes=" prefix
		{"bytes=abc-def", 0, 0, true},
	}

	for _, c := range cases {
		rng, err := parseRange(c.header, size)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseRange(%q): expected error, got %+v", c.header, rng)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRange(%q): unexpected error: %v", c.header, err)
			continue
		}
		if rng.Start != c.wantStart || rng.End != c.wantEnd {
			t.Errorf("parseRange(%q) = [%d,%d], want [%d,%d]", c.header, rng.Start, rng.End, c.wantStart, c.wantEnd)
		}
	}
}

func TestParseRangeMultiRangeUsesFirst(t *testing.T) {
	rng, err := parseRange("bytes=0-99,200-299", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Start != 0 || rng.End != 99 {
		t.Errorf("got [%d,%d], want [0,99]", rng.Start, rng.End)
	}
}

func TestStreamingRequired(t *testing.T) {
	if StreamingRequired(10) {
		t.Error("small file should not require streaming")
	}
	if !StreamingRequired(streamThreshold + 1) {
		t.Error("file past threshold should require streaming")
	}
}

func TestExtOf(t *testing.T) {
	cases := map[string]string{
		"/a/b/photo.JPG": "jpg",
		"/a/b/clip.mp4":  "mp4",
		"/a/b/noext":     "",
	}
	for path, want := range cases {
		if got := extOf(path); got != want {
			t.Errorf("extOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMagicByteFallback(t *testing.T) {
	dir := t.TempDir()

	jpeg := filepath.Join(dir, "fake.dat")
	if err := os.WriteFile(jpeg, append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...), 0o644); err != nil {
		t.Fatal(err)
	}
	data, mime, ok := magicByteFallback(jpeg)
	if !ok || mime != "image/jpeg" || len(data) == 0 {
		t.Errorf("expected jpeg recognition, got ok=%v mime=%q len=%d", ok, mime, len(data))
	}

	png := filepath.Join(dir, "fake2.dat")
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	if err := os.WriteFile(png, append(pngHeader, make([]byte, 16)...), 0o644); err != nil {
		t.Fatal(err)
	}
	_, mime, ok = magicByteFallback(png)
	if !ok || mime != "image/png" {
		t.Errorf("expected png recognition, got ok=%v mime=%q", ok, mime)
	}

	garbage := filepath.Join(dir, "fake3.dat")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := magicByteFallback(garbage); ok {
		t.Error("expected no recognition for garbage bytes")
	}
}
