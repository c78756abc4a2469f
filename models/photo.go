package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/hyxhhh1013/Myproject-sub000/media"
)

// Photo represents a cataloged portfolio image and its two artifacts.
// It corresponds to the 'photos' table.
type Photo struct {
	ID            uint                               `gorm:"primaryKey;autoIncrement" json:"id"`
	Title         string                             `gorm:"not null;size:255" json:"title"`
	Description   *string                            `gorm:"type:text" json:"description"` // Nullable
	ImagePath     string                             `gorm:"not null;size:512" json:"imagePath"`     // original artifact ref
	ThumbnailPath string                             `gorm:"not null;size:512" json:"thumbnailPath"` // derived artifact ref, same lifecycle
	Width         int                                `gorm:"not null" json:"width"`
	Height        int                                `gorm:"not null" json:"height"`
	Size          int64                              `gorm:"not null;index" json:"size"` // bytes
	TakenAt       time.Time                          `gorm:"not null;index" json:"takenAt"`
	ExifData      datatypes.JSONType[media.Metadata] `json:"exifData"`
	CategoryID    uint                               `gorm:"not null;index" json:"categoryId"`
	Category      *PhotoCategory                     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category,omitempty"`
	Tags          []Tag                              `gorm:"many2many:photo_tags;constraint:OnDelete:CASCADE" json:"tags"`
	IsFeatured    bool                               `gorm:"not null;index" json:"isFeatured"`
	IsVisible     bool                               `gorm:"not null;index" json:"isVisible"`
	OrderIndex    int64                              `gorm:"not null;index" json:"orderIndex"`
	CreatedAt     time.Time                          `json:"createdAt"`
	UpdatedAt     time.Time                          `json:"updatedAt"`

	// filled by the URL builder before responding
	ImageURL     string `gorm:"-" json:"imageUrl,omitempty"`
	ThumbnailURL string `gorm:"-" json:"thumbnailUrl,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}

// Refs returns the artifact references owned by the photo.
func (p Photo) Refs() []string {
	refs := make([]string, 0, 2)
	if p.ImagePath != "" {
		refs = append(refs, p.ImagePath)
	}
	if p.ThumbnailPath != "" {
		refs = append(refs, p.ThumbnailPath)
	}
	return refs
}

// PhotoUpdate carries a partial update; nil fields are left untouched.
type PhotoUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	CategoryID  *uint      `json:"categoryId"`
	IsFeatured  *bool      `json:"isFeatured"`
	IsVisible   *bool      `json:"isVisible"`
	OrderIndex  *int64     `json:"orderIndex"`
	TakenAt     *time.Time `json:"takenAt"`
	Tags        *[]string  `json:"tags"` // replaces the tag set when present
}

// IsEmpty reports whether the update changes nothing.
func (u PhotoUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.CategoryID == nil && u.IsFeatured == nil &&
		u.IsVisible == nil && u.OrderIndex == nil && u.TakenAt == nil && u.Tags == nil
}
