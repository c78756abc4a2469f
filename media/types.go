// media/types.go
package media

import "errors"

// ErrUndecodable marks bytes that are not a readable image.
var ErrUndecodable = errors.New("image could not be decoded")

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeThumbnail AssetType = "thumbnail"
)

// Metadata holds the camera and capture fields read from EXIF. Every field is
// independently optional; an image without EXIF yields the zero value.
type Metadata struct {
	CameraModel  *string  `json:"cameraModel,omitempty"`
	Make         *string  `json:"make,omitempty"`
	FocalLength  *float64 `json:"focalLength,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ShutterSpeed *string  `json:"shutterSpeed,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	TakenAt      *int64   `json:"takenAt,omitempty"` // unix seconds
}

// IsEmpty reports whether no EXIF field was found.
func (m Metadata) IsEmpty() bool {
	return m.CameraModel == nil && m.Make == nil && m.FocalLength == nil &&
		m.Aperture == nil && m.ShutterSpeed == nil && m.ISO == nil && m.TakenAt == nil
}
