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
	"github.com/hyxhhh1013/Myproject-sub000/utils"
)

// CategoryRepository handles database operations for photo categories
type CategoryRepository struct {
	DB *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{DB: db}
}

// List returns all categories ordered by name, each with its photo count.
func (r *CategoryRepository) List(ctx context.Context) ([]models.PhotoCategory, error) {
	db := r.DB.WithContext(ctx)

	categories := []models.PhotoCategory{}
	if err := db.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	counts, err := database.CountsByKey(db, "photos", "category_id")
	if err != nil {
		return nil, err
	}
	for i := range categories {
		categories[i].PhotoCount = counts[categories[i].ID]
	}
	return categories, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*models.PhotoCategory, error) {
	db := r.DB.WithContext(ctx)

	var category models.PhotoCategory
	if err := db.First(&category, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("get category by ID %d", id), "category")
	}
	if err := db.Model(&models.Photo{}).Where("category_id = ?", id).Count(&category.PhotoCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count photos of category %d: %w", id, err)
	}
	return &category, nil
}

// GetWithPhotos returns the category and one page of its visible photos in
// gallery order, plus the visible total.
func (r *CategoryRepository) GetWithPhotos(ctx context.Context, id uint, page pagination.Params) (*models.PhotoCategory, []models.Photo, int64, error) {
	category, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	page = page.Normalize()

	db := r.DB.WithContext(ctx)
	scope := db.Model(&models.Photo{}).Where("category_id = ? AND is_visible = ?", id, true)

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, nil, 0, fmt.Errorf("failed to count visible photos of category %d: %w", id, err)
	}

	photos := []models.Photo{}
	q := withRelations(db.Model(&models.Photo{}).Where("photos.category_id = ? AND photos.is_visible = ?", id, true))
	for _, term := range database.PhotoOrderBy(database.SortDefault) {
		q = q.Order(term)
	}
	err = q.Offset(page.Offset()).Limit(page.Limit).Find(&photos).Error
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to list photos of category %d: %w", id, err)
	}
	return category, photos, total, nil
}

func (r *CategoryRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.PhotoCategory{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check category %d: %w", id, err)
	}
	return n > 0, nil
}

// Create inserts a category. The slug defaults to one derived from the name.
func (r *CategoryRepository) Create(ctx context.Context, input models.CategoryInput) (*models.PhotoCategory, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperr.Validation("name is required")
	}

	category := models.PhotoCategory{Name: strings.TrimSpace(*input.Name)}
	if input.Slug != nil {
		category.Slug = utils.Slugify(*input.Slug)
	}
	if category.Slug == "" {
		category.Slug = utils.Slugify(category.Name)
	}
	if category.Slug == "" {
		return nil, apperr.Validation("a slug cannot be derived from '%s'", category.Name)
	}
	if input.Description != nil && *input.Description != "" {
		category.Description = input.Description
	}

	if err := r.DB.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, translate(err, "create category "+category.Name, "category")
	}
	return &category, nil
}

// Update changes the non-nil fields of input.
func (r *CategoryRepository) Update(ctx context.Context, id uint, input models.CategoryInput) (*models.PhotoCategory, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.PhotoCategory
		if err := tx.First(&category, id).Error; err != nil {
			return translate(err, fmt.Sprintf("get category by ID %d", id), "category")
		}

		updates := make(map[string]interface{})
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return apperr.Validation("name cannot be empty")
			}
			updates["name"] = name
		}
		if input.Slug != nil {
			slug := utils.Slugify(*input.Slug)
			if slug == "" {
				return apperr.Validation("slug cannot be empty")
			}
			updates["slug"] = slug
		}
		if input.Description != nil {
			if *input.Description == "" {
				updates["description"] = nil
			} else {
				updates["description"] = *input.Description
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&category).Updates(updates).Error; err != nil {
			return translate(err, fmt.Sprintf("update category %d", id), "category")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes an empty category. Categories that still hold photos are
// rejected with a conflict.
func (r *CategoryRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.PhotoCategory
		if err := tx.First(&category, id).Error; err != nil {
			return translate(err, fmt.Sprintf("get category by ID %d", id), "category")
		}

		var n int64
		if err := tx.Model(&models.Photo{}).Where("category_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to count photos of category %d: %w", id, err)
		}
		if n > 0 {
			return apperr.Conflict("category '%s' still contains %d photos", category.Name, n)
		}

		if err := tx.Delete(&category).Error; err != nil {
			return translate(err, fmt.Sprintf("delete category %d", id), "category")
		}
		return nil
	})
}
