package processors

import "strings"

var extMime = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png",
	"gif": "image/gif", "webp": "image/webp", "bmp": "image/bmp",
	"tiff": "image/tiff", "tif": "image/tiff",
	"heic": "image/heic", "heif": "image/heif", "avif": "image/avif", "svg": "image/svg+xml",
	"mp4": "video/mp4", "mov": "video/quicktime", "avi": "video/x-msvideo",
	"mkv": "video/x-matroska", "webm": "video/webm", "wmv": "video/x-ms-wmv", "flv": "video/x-flv",
}

// mimeForExt falls back to extension when a processor can't determine the
// MIME type from decoded content (spec.md §4.7).
func mimeForExt(ext string) string {
	if m, ok := extMime[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// MimeForExtension is mimeForExt's exported form, for callers outside this
// package (the file service's MIME-inference fallback, spec.md §4.7).
func MimeForExtension(ext string) string {
	return mimeForExt(extLowerNoDot(ext))
}

// BrowserNativeFormats is the GLOSSARY's "browser-native format" set used
// by the passthrough rule in spec.md §4.7.
var BrowserNativeFormats = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "avif": true, "svg": true,
}

// IsBrowserNative reports whether ext (no leading dot) is in the
// browser-native set.
func IsBrowserNative(ext string) bool {
	return BrowserNativeFormats[extLowerNoDot(ext)]
}

func extLowerNoDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return strings.ToLower(ext)
}
