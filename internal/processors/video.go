package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

var videoExts = map[string]bool{
	"mp4": true, "mov": true, "avi": true, "mkv": true,
	"webm": true, "m4v": true, "3gp": true, "wmv": true,
}

const (
	probeTimeout      = 30 * time.Second
	extractTimeout    = 60 * time.Second
	defaultFFprobeBin = "ffprobe"
)

// VideoProcessor probes and extracts thumbnail frames from video files by
// shelling out to ffprobe/ffmpeg, grounded on link270-shrinkray's
// internal/ffmpeg/probe.go JSON-parsing shape and the teacher's
// thumbnail.go seek-then-retry-at-zero ffmpeg invocation pattern, with
// rotation handling adapted from original_source's
// video_thumbnail_with_rotation.rs DisplayMatrix derivation.
type VideoProcessor struct {
	ffmpegPath      string
	ffprobePath     string
	thumbnailOffset float64
}

// NewVideoProcessor builds a processor. ffmpegPath is the configured
// binary (spec.md §6 VIDEO_FFMPEG_PATH); ffprobe is resolved by swapping the
// binary name in the same directory, falling back to PATH lookup.
func NewVideoProcessor(ffmpegPath string, thumbnailOffset float64) *VideoProcessor {
	return &VideoProcessor{
		ffmpegPath:      ffmpegPath,
		ffprobePath:     deriveFFprobePath(ffmpegPath),
		thumbnailOffset: thumbnailOffset,
	}
}

func deriveFFprobePath(ffmpegPath string) string {
	if ffmpegPath == "" {
		return defaultFFprobeBin
	}
	if strings.HasSuffix(ffmpegPath, "ffmpeg") {
		candidate := strings.TrimSuffix(ffmpegPath, "ffmpeg") + "ffprobe"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return defaultFFprobeBin
}

func (p *VideoProcessor) Supports(path string) bool { return extMatches(path, videoExts) }
func (p *VideoProcessor) Priority() int             { return 10 }
func (p *VideoProcessor) MediaType() MediaType      { return MediaVideo }

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Tags         map[string]string `json:"tags"`
	SideDataList []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string   `json:"side_data_type"`
	Rotation     *float64 `json:"rotation"`
	Matrix       []int64  `json:"matrix"`
}

func (p *VideoProcessor) probe(path string) (*ffprobeOutput, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, newErrExternal(path, fmt.Errorf("ffprobe: %w", err))
	}

	var result ffprobeOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, newErrExternal(path, fmt.Errorf("parse ffprobe output: %w", err))
	}
	return &result, nil
}

func (p *VideoProcessor) Process(path string) (*MediaMetadata, error) {
	probed, err := p.probe(path)
	if err != nil {
		return nil, err
	}

	md := &MediaMetadata{MimeType: mimeForExt(extLower(path))}

	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		md.Duration = &d
	}

	for i := range probed.Streams {
		s := &probed.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		md.Width = s.Width
		md.Height = s.Height
		codec := s.CodecName
		md.VideoCodec = &codec
		break
	}

	return md, nil
}

// rotationDegrees returns the display rotation of the first video stream's
// side data, normalized to [0, 360). Returns 0 when no rotation metadata
// exists.
func (p *VideoProcessor) rotationDegrees(probed *ffprobeOutput) int {
	for i := range probed.Streams {
		s := &probed.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		for _, sd := range s.SideDataList {
			if !strings.EqualFold(sd.SideDataType, "Display Matrix") {
				continue
			}
			if len(sd.Matrix) >= 9 {
				return normalizeRotation(rotationFromMatrix(sd.Matrix))
			}
			if sd.Rotation != nil {
				return normalizeRotation(int(math.Round(*sd.Rotation)))
			}
		}
		if rot, ok := s.Tags["rotate"]; ok {
			if v, err := strconv.Atoi(rot); err == nil {
				return normalizeRotation(v)
			}
		}
	}
	return 0
}

// rotationFromMatrix derives the rotation angle in degrees from a raw
// DisplayMatrix side-data payload (3x3, 16.16 fixed-point, row-major
// [a b u; c d v; x y w]), matching original_source's
// video_thumbnail_with_rotation.rs: normalize the first two columns by
// magnitude, then rotation = -atan2(b, a) in degrees.
func rotationFromMatrix(matrix []int64) int {
	toFixed := func(x int64) float64 { return float64(x) / float64(int64(1)<<16) }

	a := toFixed(matrix[0])
	b := toFixed(matrix[1])
	c := toFixed(matrix[3])
	d := toFixed(matrix[4])

	scale0 := math.Sqrt(a*a + c*c)
	scale1 := math.Sqrt(b*b + d*d)
	if scale0 > 0 {
		a /= scale0
	}
	if scale1 > 0 {
		b /= scale1
	}

	rotation := -math.Atan2(b, a) * 180.0 / math.Pi
	return int(math.Round(rotation))
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func (p *VideoProcessor) GenerateThumbnail(path string, targetSize int, quality float64, fitToHeight bool) ([]byte, error) {
	probed, err := p.probe(path)
	if err != nil {
		return nil, err
	}
	rotation := p.rotationDegrees(probed)
	swapsAspect := rotation == 90 || rotation == 270

	var width, height int
	for i := range probed.Streams {
		if probed.Streams[i].CodecType == "video" {
			width, height = probed.Streams[i].Width, probed.Streams[i].Height
			break
		}
	}

	scaleW, scaleH := targetSize, 0
	if targetSize > 0 && width > 0 && height > 0 {
		effW, effH := width, height
		if swapsAspect {
			effW, effH = height, width
		}
		aspect := float64(effH) / float64(effW)
		scaleW = targetSize
		scaleH = int(float64(targetSize) * aspect)
	}

	frame, err := p.extractFrame(path, scaleW, scaleH)
	if err != nil {
		return nil, err
	}

	rotated := applyPixelRotation(frame, rotation)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rotated, &jpeg.Options{Quality: qualityToJPEG(quality)}); err != nil {
		return nil, newErr(ErrDecode, path, err)
	}
	return buf.Bytes(), nil
}

// applyPixelRotation rotates the decoded (unrotated) frame to match the
// display rotation: 90 degrees of display rotation requires rotating the
// pixels by 270 to land upright, and vice versa, since the scaler above
// operated on the raw decoder dimensions.
func applyPixelRotation(src image.Image, rotation int) image.Image {
	switch rotation {
	case 90:
		return imaging.Rotate270(src)
	case 270:
		return imaging.Rotate90(src)
	case 180:
		return imaging.Rotate180(src)
	default:
		return src
	}
}

func (p *VideoProcessor) extractFrame(path string, scaleW, scaleH int) (image.Image, error) {
	tmp, err := os.CreateTemp("", "latte-video-frame-*.jpg")
	if err != nil {
		return nil, newErr(ErrIO, path, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	scaleFilter := "scale=iw:ih"
	if scaleW > 0 && scaleH > 0 {
		scaleFilter = fmt.Sprintf("scale=%d:%d", scaleW, scaleH)
	}

	offset := p.thumbnailOffset
	if offset <= 0 {
		offset = 1.0
	}

	run := func(seek string) error {
		ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
		defer cancel()
		args := []string{"-i", path}
		if seek != "" {
			args = append(args, "-ss", seek)
		}
		args = append(args, "-frames:v", "1", "-vf", scaleFilter, "-y", tmpPath)
		cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("ffmpeg timed out after %s", extractTimeout)
			}
			return fmt.Errorf("ffmpeg: %v: %s", err, string(out))
		}
		return nil
	}

	seekStr := strconv.FormatFloat(offset, 'f', 2, 64)
	if err := run(seekStr); err != nil {
		// Retry from the start: the video may be shorter than the offset.
		if err2 := run(""); err2 != nil {
			return nil, newErrExternal(path, fmt.Errorf("%v; retry: %v", err, err2))
		}
	}

	src, err := imaging.Open(tmpPath)
	if err != nil {
		return nil, newErr(ErrDecode, path, err)
	}
	return src, nil
}

func newErrExternal(path string, err error) error {
	return newErr(ErrExternalTool, path, err)
}
