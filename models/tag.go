package models

import "time"

// Tag is shared vocabulary linked to photos through 'photo_tags'. Names are
// matched exactly, so "Sunset" and "sunset" are two tags.
type Tag struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex;size:191" json:"name"`
	CreatedAt time.Time `json:"createdAt"`

	PhotoCount int64 `gorm:"-" json:"photoCount,omitempty"`
}

func (Tag) TableName() string {
	return "tags"
}

// Sequence is a named counter. The "photo_order" row hands out display
// order ranges for bulk uploads.
type Sequence struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null"`
}

func (Sequence) TableName() string {
	return "sequences"
}
