package media

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// Extractor reads dimensions and EXIF fields from image bytes.
type Extractor struct {
	log *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{log: logger}
}

// Dimensions decodes only the image header and reports the size as displayed,
// matching the auto-oriented thumbnail: orientations 5-8 swap width and height.
func (e *Extractor) Dimensions(data []byte) (int, int, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if o := orientation(data); o >= 5 && o <= 8 {
		return config.Height, config.Width, nil
	}
	return config.Width, config.Height, nil
}

// orientation returns the EXIF orientation, or 0 when absent or unreadable.
func orientation(data []byte) (o int) {
	defer func() {
		if recover() != nil {
			o = 0
		}
	}()
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err = tag.Int(0)
	if err != nil {
		return 0
	}
	return o
}

// Extract never fails: missing or corrupt EXIF yields an empty Metadata.
func (e *Extractor) Extract(data []byte) (meta Metadata) {
	defer func() {
		// goexif can panic on truncated TIFF structures
		if r := recover(); r != nil {
			e.log.Warn("recovered from EXIF parser panic", "panic", r)
			meta = Metadata{}
		}
	}()

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// not necessarily a problem, the file might just lack EXIF data
		e.log.Debug("no EXIF data decoded", "error", err)
		return Metadata{}
	}

	meta = Metadata{
		CameraModel:  getString(exifData, exif.Model),
		Make:         getString(exifData, exif.Make),
		FocalLength:  getRational(exifData, exif.FocalLength),
		Aperture:     getRational(exifData, exif.FNumber),
		ShutterSpeed: getShutterSpeed(exifData),
		ISO:          getInt(exifData, exif.ISOSpeedRatings),
	}

	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}
	return meta
}

// helper to safely get and convert a rational tag (like Aperture, FocalLength)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// sometimes stored as Int instead
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators and quotes
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = strings.Trim(tag.String(), `"`)
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

// getShutterSpeed renders ExposureTime as "1/250" or "2.5s".
func getShutterSpeed(exifData *exif.Exif) *string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 || num <= 0 {
		return nil
	}

	var s string
	switch val := float64(num) / float64(den); {
	case num == 1 && den > 1:
		s = fmt.Sprintf("1/%d", den)
	case val < 1:
		s = fmt.Sprintf("1/%.0f", 1/val)
	default:
		s = fmt.Sprintf("%.1fs", val)
	}
	return &s
}
