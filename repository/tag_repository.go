package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/facette/natsort"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hyxhhh1013/Myproject-sub000/database"
	"github.com/hyxhhh1013/Myproject-sub000/models"
)

// TagRepository handles the shared tag vocabulary
type TagRepository struct {
	DB *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{DB: db}
}

// Resolve finds or creates a tag for every name. Safe under concurrent
// callers: the unique index on tags.name decides, not a prior lookup.
func (r *TagRepository) Resolve(ctx context.Context, names []string) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tags, err = resolveTags(tx, names)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// ListWithCounts returns the vocabulary in natural name order with usage counts.
func (r *TagRepository) ListWithCounts(ctx context.Context) ([]models.Tag, error) {
	db := r.DB.WithContext(ctx)

	var tags []models.Tag
	if err := db.Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	counts, err := database.CountsByKey(db, "photo_tags", "tag_id")
	if err != nil {
		return nil, err
	}
	for i := range tags {
		tags[i].PhotoCount = counts[tags[i].ID]
	}

	sort.SliceStable(tags, func(i, j int) bool {
		return natsort.Compare(tags[i].Name, tags[j].Name)
	})
	return tags, nil
}

// NormalizeTagNames trims, drops empties and de-duplicates while keeping
// first-seen order. Case is preserved.
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func resolveTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	names = NormalizeTagNames(names)
	if len(names) == 0 {
		return []models.Tag{}, nil
	}

	// ids from a batch insert that skipped conflicts are unreliable, so the
	// inserted rows are discarded and the tags re-read by name
	rows := make([]models.Tag, len(names))
	for i, name := range names {
		rows[i] = models.Tag{Name: name}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tags: %w", err)
	}

	var tags []models.Tag
	if err := tx.Where("name IN ?", names).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to load resolved tags: %w", err)
	}
	if len(tags) != len(names) {
		return nil, fmt.Errorf("resolved %d of %d tags", len(tags), len(names))
	}
	return tags, nil
}
