package processors

import "testing"

func TestMimeForExtension(t *testing.T) {
	cases := map[string]string{
		"jpg":  "image/jpeg",
		".JPG": "image/jpeg",
		"png":  "image/png",
		"mp4":  "video/mp4",
		"xyz":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := MimeForExtension(ext); got != want {
			t.Errorf("MimeForExtension(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestIsBrowserNative(t *testing.T) {
	native := []string{"jpg", "jpeg", "png", "gif", "webp", "avif", "svg", ".PNG"}
	for _, ext := range native {
		if !IsBrowserNative(ext) {
			t.Errorf("IsBrowserNative(%q) = false, want true", ext)
		}
	}

	notNative := []string{"heic", "tiff", "mp4", "bmp"}
	for _, ext := range notNative {
		if IsBrowserNative(ext) {
			t.Errorf("IsBrowserNative(%q) = true, want false", ext)
		}
	}
}
