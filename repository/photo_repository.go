package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
	"github.com/hyxhhh1013/Myproject-sub000/database"
	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/pagination"
)

// likeEscaper escapes LIKE wildcards with '!', which needs no quoting in
// either SQLite or MySQL string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// PhotoRepository handles database operations for catalog entries
type PhotoRepository struct {
	DB *gorm.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Category").Preload("Tags", func(db *gorm.DB) *gorm.DB {
		return db.Order("tags.name ASC")
	})
}

// Create persists the photo and its tag links in one transaction. The
// category must exist.
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo, tags []models.Tag) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCategory(tx, photo.CategoryID); err != nil {
			return err
		}
		photo.Tags = tags
		if err := tx.Omit("Category", "Tags.*").Create(photo).Error; err != nil {
			return translate(err, "create photo "+photo.Title, "photo")
		}
		var category models.PhotoCategory
		if err := tx.First(&category, photo.CategoryID).Error; err != nil {
			return translate(err, "load category", "category")
		}
		photo.Category = &category
		return nil
	})
	if err != nil {
		return err
	}
	if photo.Tags == nil {
		photo.Tags = []models.Tag{}
	}
	return nil
}

// GetByID retrieves a photo with its category and tags, hidden or not
func (r *PhotoRepository) GetByID(ctx context.Context, id uint) (*models.Photo, error) {
	var photo models.Photo
	if err := withRelations(r.DB.WithContext(ctx)).First(&photo, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("get photo by ID %d", id), "photo")
	}
	return &photo, nil
}

// Update applies the non-nil fields of update. A new category is re-validated
// and a non-nil tag list replaces the current links.
func (r *PhotoRepository) Update(ctx context.Context, id uint, update models.PhotoUpdate) (*models.Photo, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var photo models.Photo
		if err := tx.First(&photo, id).Error; err != nil {
			return translate(err, fmt.Sprintf("get photo by ID %d", id), "photo")
		}

		updates := make(map[string]interface{})
		if update.Title != nil {
			title := strings.TrimSpace(*update.Title)
			if title == "" {
				return apperr.Validation("title cannot be empty")
			}
			updates["title"] = title
		}
		if update.Description != nil {
			if *update.Description == "" {
				updates["description"] = nil
			} else {
				updates["description"] = *update.Description
			}
		}
		if update.CategoryID != nil {
			if err := ensureCategory(tx, *update.CategoryID); err != nil {
				return err
			}
			updates["category_id"] = *update.CategoryID
		}
		if update.IsFeatured != nil {
			updates["is_featured"] = *update.IsFeatured
		}
		if update.IsVisible != nil {
			updates["is_visible"] = *update.IsVisible
		}
		if update.OrderIndex != nil {
			if *update.OrderIndex < 0 {
				return apperr.Validation("orderIndex must not be negative")
			}
			updates["order_index"] = *update.OrderIndex
		}
		if update.TakenAt != nil {
			updates["taken_at"] = *update.TakenAt
		}

		if len(updates) > 0 {
			if err := tx.Model(&photo).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update photo %d: %w", id, err)
			}
		}

		if update.Tags != nil {
			tags, err := resolveTags(tx, *update.Tags)
			if err != nil {
				return err
			}
			assoc := tx.Model(&photo).Association("Tags")
			if len(tags) == 0 {
				err = assoc.Clear()
			} else {
				err = assoc.Replace(tags)
			}
			if err != nil {
				return fmt.Errorf("failed to replace tags of photo %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes the row and its tag links and returns the deleted photo so
// the caller can reclaim its artifacts. Tags themselves are kept.
func (r *PhotoRepository) Delete(ctx context.Context, id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&photo, id).Error; err != nil {
			return translate(err, fmt.Sprintf("get photo by ID %d", id), "photo")
		}
		if err := tx.Model(&photo).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("failed to unlink tags of photo %d: %w", id, err)
		}
		if err := tx.Delete(&photo).Error; err != nil {
			return fmt.Errorf("failed to delete photo %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

func (r *PhotoRepository) filtered(ctx context.Context, filter PhotoFilter) *gorm.DB {
	q := r.DB.WithContext(ctx).Model(&models.Photo{})
	if filter.VisibleOnly {
		q = q.Where("photos.is_visible = ?", true)
	}
	if filter.CategoryID != nil {
		q = q.Where("photos.category_id = ?", *filter.CategoryID)
	}
	if filter.FeaturedOnly {
		q = q.Where("photos.is_featured = ?", true)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		// both sides go through the database's LOWER so the folding matches
		pattern := "%" + likeEscaper.Replace(search) + "%"
		q = q.Where(`(LOWER(photos.title) LIKE LOWER(?) ESCAPE '!'
			OR LOWER(COALESCE(photos.description, '')) LIKE LOWER(?) ESCAPE '!'
			OR EXISTS (SELECT 1 FROM photo_tags pt JOIN tags t ON t.id = pt.tag_id
				WHERE pt.photo_id = photos.id AND LOWER(t.name) LIKE LOWER(?) ESCAPE '!'))`,
			pattern, pattern, pattern)
	}
	return q
}

// List returns one page of photos matching filter plus the total match count.
// Both queries share the same filter scope.
func (r *PhotoRepository) List(ctx context.Context, filter PhotoFilter, page pagination.Params) ([]models.Photo, int64, error) {
	page = page.Normalize()

	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count photos: %w", err)
	}

	photos := []models.Photo{}
	if total == 0 {
		return photos, 0, nil
	}

	q := withRelations(r.filtered(ctx, filter))
	for _, term := range database.PhotoOrderBy(filter.Sort) {
		q = q.Order(term)
	}
	if err := q.Offset(page.Offset()).Limit(page.Limit).Find(&photos).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, total, nil
}

// BatchDelete deletes every existing photo among ids in one transaction and
// returns the deleted rows. Unknown ids are ignored.
func (r *PhotoRepository) BatchDelete(ctx context.Context, ids []uint) ([]models.Photo, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("no photo ids provided")
	}

	var photos []models.Photo
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id IN ?", ids).Find(&photos).Error; err != nil {
			return fmt.Errorf("failed to load photos for batch delete: %w", err)
		}
		if len(photos) == 0 {
			return nil
		}

		found := make([]uint, len(photos))
		for i, p := range photos {
			found[i] = p.ID
		}
		if err := tx.Exec("DELETE FROM photo_tags WHERE photo_id IN ?", found).Error; err != nil {
			return fmt.Errorf("failed to unlink tags for batch delete: %w", err)
		}
		if err := tx.Where("id IN ?", found).Delete(&models.Photo{}).Error; err != nil {
			return fmt.Errorf("failed to batch delete photos: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return photos, nil
}

// BatchRecategorize moves the photos to categoryID and returns how many rows matched.
func (r *PhotoRepository) BatchRecategorize(ctx context.Context, ids []uint, categoryID uint) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("no photo ids provided")
	}

	var affected int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCategory(tx, categoryID); err != nil {
			return err
		}
		res := tx.Model(&models.Photo{}).Where("id IN ?", ids).Update("category_id", categoryID)
		if res.Error != nil {
			return fmt.Errorf("failed to recategorize photos: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

// Reorder gives orderedIDs the display orders 0..n-1 in sequence. All rows
// change or none do.
func (r *PhotoRepository) Reorder(ctx context.Context, orderedIDs []uint) error {
	if len(orderedIDs) == 0 {
		return apperr.Validation("no photo ids provided")
	}
	seen := make(map[uint]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return apperr.Validation("photo %d appears more than once", id)
		}
		seen[id] = true
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Photo{}).Where("id IN ?", orderedIDs).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check photos for reorder: %w", err)
		}
		if n != int64(len(orderedIDs)) {
			return apperr.NotFound("photo")
		}
		for position, id := range orderedIDs {
			err := tx.Model(&models.Photo{}).Where("id = ?", id).Update("order_index", position).Error
			if err != nil {
				return fmt.Errorf("failed to set order of photo %d: %w", id, err)
			}
		}
		return nil
	})
}

// AllocateOrders reserves n consecutive display orders and returns the first.
func (r *PhotoRepository) AllocateOrders(ctx context.Context, n int) (int64, error) {
	var first int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = database.AllocateRange(tx, database.PhotoOrderSequence, int64(n))
		return err
	})
	return first, err
}

// ArtifactRefs returns every artifact reference the catalog points at.
func (r *PhotoRepository) ArtifactRefs(ctx context.Context) (map[string]bool, error) {
	var rows []struct {
		ImagePath     string
		ThumbnailPath string
	}
	err := r.DB.WithContext(ctx).Model(&models.Photo{}).
		Select("image_path", "thumbnail_path").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact references: %w", err)
	}

	refs := make(map[string]bool, len(rows)*2)
	for _, row := range rows {
		refs[row.ImagePath] = true
		refs[row.ThumbnailPath] = true
	}
	return refs, nil
}
