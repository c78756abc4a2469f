package models

import "time"

// PhotoCategory groups photos in the gallery. Every photo belongs to exactly one.
// It corresponds to the 'photo_categories' table.
type PhotoCategory struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null;uniqueIndex;size:191" json:"name"`
	Slug        string    `gorm:"not null;uniqueIndex;size:191" json:"slug"`
	Description *string   `gorm:"type:text" json:"description"` // Nullable
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	PhotoCount int64 `gorm:"-" json:"photoCount"` // computed by query
}

// TableName explicitly sets the table name for GORM.
func (PhotoCategory) TableName() string {
	return "photo_categories"
}

// CategoryInput is the create/update payload. Update treats nil as unchanged.
type CategoryInput struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}
