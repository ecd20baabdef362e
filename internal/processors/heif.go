package processors

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
)

var heifExts = map[string]bool{
	"heic": true, "heif": true,
}

// HeifProcessor decodes HEIC/HEIF stills. Priority 100 so it's tried before
// StandardImageProcessor when both could technically match an extension
// (spec.md §4.2's processor priority rule), grounded on original_source's
// heif_processor.rs (same "decode once, reuse dimensions/thumbnail" shape)
// adapted to Go's goheif decoder, the pure-Go HEIC library the ecosystem
// actually uses since no pack repo wires libheif cgo bindings.
type HeifProcessor struct{}

func NewHeifProcessor() *HeifProcessor { return &HeifProcessor{} }

func (p *HeifProcessor) Supports(path string) bool { return extMatches(path, heifExts) }
func (p *HeifProcessor) Priority() int             { return 100 }
func (p *HeifProcessor) MediaType() MediaType      { return MediaHeif }

func (p *HeifProcessor) Process(path string) (*MediaMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, path, err)
	}
	defer f.Close()

	img, err := goheif.Decode(f)
	if err != nil {
		return nil, newErr(ErrDecode, path, err)
	}
	b := img.Bounds()

	md := &MediaMetadata{
		Width:    b.Dx(),
		Height:   b.Dy(),
		MimeType: "image/heic",
	}

	if _, err := f.Seek(0, 0); err == nil {
		extractHeifExif(f, md)
	}

	return md, nil
}

func (p *HeifProcessor) GenerateThumbnail(path string, targetSize int, quality float64, fitToHeight bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, path, err)
	}
	defer f.Close()

	img, err := goheif.Decode(f)
	if err != nil {
		return nil, newErr(ErrDecode, path, err)
	}

	// goheif hands back the raw decoded frame with stride padding collapsed
	// into a standard image.Image; imaging.Clone normalizes it onto a tight
	// NRGBA buffer (mirrors original_source's row-copy model for discarding
	// HEIF stride padding). Downscaling uses a bilinear filter and only
	// happens when the frame exceeds targetSize; otherwise the native size
	// is kept.
	src := imaging.Clone(img)
	var thumb image.Image = src
	switch b := src.Bounds(); {
	case targetSize <= 0:
	case fitToHeight:
		thumb = imaging.Resize(src, 0, targetSize, imaging.Linear)
	case b.Dx() > targetSize || b.Dy() > targetSize:
		thumb = imaging.Fit(src, targetSize, targetSize, imaging.Linear)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: qualityToJPEG(quality)}); err != nil {
		return nil, newErr(ErrDecode, path, err)
	}
	return buf.Bytes(), nil
}

func extractHeifExif(f *os.File, md *MediaMetadata) {
	raw, err := goheif.ExtractExif(f)
	if err != nil || len(raw) == 0 {
		return
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return
	}

	if dt, err := x.DateTime(); err == nil {
		md.ExifTimestamp = &dt
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
	if tag, err := x.Get(exif.FieldName("OffsetTimeOriginal")); err == nil {
		if s, err := tag.StringVal(); err == nil && s != "" {
			md.ExifTimezoneOffset = &s
		}
	}
}
