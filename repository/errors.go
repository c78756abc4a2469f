package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
	"github.com/hyxhhh1013/Myproject-sub000/models"
)

// translate maps driver errors onto apperr kinds; anything else is wrapped
// with the operation name.
func translate(err error, op, resource string) error {
	switch {
	case err == nil:
		return nil
	case apperr.As(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", resource)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Conflict("%s is still referenced", resource)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// ensureCategory fails with a validation error when the category is missing.
func ensureCategory(tx *gorm.DB, categoryID uint) error {
	var n int64
	if err := tx.Model(&models.PhotoCategory{}).Where("id = ?", categoryID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check category %d: %w", categoryID, err)
	}
	if n == 0 {
		return apperr.Validation("category %d does not exist", categoryID)
	}
	return nil
}
