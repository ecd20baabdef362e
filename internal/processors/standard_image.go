package processors

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "github.com/chai2010/webp" // registers "webp" with image.Decode
	_ "golang.org/x/image/bmp"   // registers "bmp"
	_ "golang.org/x/image/tiff"  // registers "tiff"
)

var standardImageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "webp": true, "tiff": true, "tif": true,
}

// StandardImageProcessor handles every browser-familiar and common raster
// format that isn't HEIF. Grounded on the teacher's thumbnail.go
// (imaging.Open/imaging.Fit/imaging.Box) and indexer.go (goexif extraction).
type StandardImageProcessor struct{}

func NewStandardImageProcessor() *StandardImageProcessor { return &StandardImageProcessor{} }

func (p *StandardImageProcessor) Supports(path string) bool { return extMatches(path, standardImageExts) }
func (p *StandardImageProcessor) Priority() int             { return 10 }
func (p *StandardImageProcessor) MediaType() MediaType      { return MediaImage }

func (p *StandardImageProcessor) Process(path string) (*MediaMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, path, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, newErr(ErrDecode, path, err)
	}

	md := &MediaMetadata{
		Width:    cfg.Width,
		Height:   cfg.Height,
		MimeType: mimeForFormat(format, path),
	}

	extractExif(path, md)

	return md, nil
}

func (p *StandardImageProcessor) GenerateThumbnail(path string, targetSize int, quality float64, fitToHeight bool) ([]byte, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, newErr(ErrDecode, path, err)
	}

	thumb := resizeForTarget(src, targetSize, fitToHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: qualityToJPEG(quality)}); err != nil {
		return nil, newErr(ErrDecode, path, err)
	}
	return buf.Bytes(), nil
}

// resizeForTarget applies the spec.md §4.2 fast box-filter resize. A
// targetSize of 0 means "no resize, full size"; fitToHeight constrains the
// output to exactly targetSize tall with proportional width, otherwise the
// image is fit within a targetSize x targetSize bounding box.
func resizeForTarget(src image.Image, targetSize int, fitToHeight bool) image.Image {
	if targetSize <= 0 {
		return src
	}
	if fitToHeight {
		return imaging.Resize(src, 0, targetSize, imaging.Box)
	}
	b := src.Bounds()
	if b.Dx() <= targetSize && b.Dy() <= targetSize {
		return src
	}
	return imaging.Fit(src, targetSize, targetSize, imaging.Box)
}

func qualityToJPEG(q float64) int {
	v := int(q * 100)
	if v < 1 {
		v = 1
	}
	if v > 100 {
		v = 100
	}
	return v
}

func mimeForFormat(format, path string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return mimeForExt(extLower(path))
	}
}

// extractExif fills in EXIF-derived fields when present; absence of EXIF
// data is not an error (most PNG/GIF/WebP sources have none).
func extractExif(path string, md *MediaMetadata) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return
	}

	if dt, err := x.DateTime(); err == nil {
		md.ExifTimestamp = &dt
	}
	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			md.Width = v
		}
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			md.Height = v
		}
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			md.CameraMake = &s
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			md.CameraModel = &s
		}
	}
	if tag, err := x.Get(exif.LensModel); err == nil {
		if s, err := tag.StringVal(); err == nil {
			md.LensModel = &s
		}
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if s := tag.String(); s != "" {
			md.ExposureTime = &s
		}
	}
	if tag, err := x.Get(exif.FNumber); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			v := float64(num) / float64(den)
			md.Aperture = &v
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			md.ISO = &v
		}
	}
	if tag, err := x.Get(exif.FocalLength); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			v := float64(num) / float64(den)
			md.FocalLength = &v
		}
	}
	// EXIF 2.31 OffsetTimeOriginal ("+09:00" style); absent on most cameras.
	if tag, err := x.Get(exif.FieldName("OffsetTimeOriginal")); err == nil {
		if s, err := tag.StringVal(); err == nil && s != "" {
			md.ExifTimezoneOffset = &s
		}
	}
}
