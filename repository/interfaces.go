package repository

import (
	"context"

	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/pagination"
)

// PhotoFilter narrows a catalog listing. Search matches title, description
// or any tag name, case-insensitively.
type PhotoFilter struct {
	CategoryID   *uint
	FeaturedOnly bool
	VisibleOnly  bool
	Search       string
	Sort         string
}

// PhotoRepositoryInterface defines the methods for catalog data operations
type PhotoRepositoryInterface interface {
	Create(ctx context.Context, photo *models.Photo, tags []models.Tag) error
	GetByID(ctx context.Context, id uint) (*models.Photo, error)
	Update(ctx context.Context, id uint, update models.PhotoUpdate) (*models.Photo, error)
	Delete(ctx context.Context, id uint) (*models.Photo, error)
	List(ctx context.Context, filter PhotoFilter, page pagination.Params) ([]models.Photo, int64, error)
	BatchDelete(ctx context.Context, ids []uint) ([]models.Photo, error)
	BatchRecategorize(ctx context.Context, ids []uint, categoryID uint) (int64, error)
	Reorder(ctx context.Context, orderedIDs []uint) error
	AllocateOrders(ctx context.Context, n int) (int64, error)
	ArtifactRefs(ctx context.Context) (map[string]bool, error)
}

// CategoryRepositoryInterface defines the methods for category data operations
type CategoryRepositoryInterface interface {
	List(ctx context.Context) ([]models.PhotoCategory, error)
	GetByID(ctx context.Context, id uint) (*models.PhotoCategory, error)
	GetWithPhotos(ctx context.Context, id uint, page pagination.Params) (*models.PhotoCategory, []models.Photo, int64, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, input models.CategoryInput) (*models.PhotoCategory, error)
	Update(ctx context.Context, id uint, input models.CategoryInput) (*models.PhotoCategory, error)
	Delete(ctx context.Context, id uint) error
}

// TagRepositoryInterface defines the methods for tag vocabulary operations
type TagRepositoryInterface interface {
	Resolve(ctx context.Context, names []string) ([]models.Tag, error)
	ListWithCounts(ctx context.Context) ([]models.Tag, error)
}
