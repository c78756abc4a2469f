package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/pagination"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
	"github.com/hyxhhh1013/Myproject-sub000/services"
)

type CategoryHandler struct {
	Categories repository.CategoryRepositoryInterface
	URLs       services.URLBuilder
	Invalidate Invalidator
	Errors     ErrorWriter
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Categories.List(r.Context())
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type categoryDetailResponse struct {
	*models.PhotoCategory
	Photos      []models.Photo `json:"photos"`
	TotalPhotos int64          `json:"totalPhotos"`
	Page        int            `json:"page"`
	Limit       int            `json:"limit"`
	TotalPages  int64          `json:"totalPages"`
}

// GetCategory returns the category with one page of its visible photos.
func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "category")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	page := pagination.FromRequest(r)
	category, photos, total, err := h.Categories.GetWithPhotos(r.Context(), id, page)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.URLs.DecorateAll(photos)

	meta := pagination.NewMeta(page, total)
	writeJSON(w, http.StatusOK, categoryDetailResponse{
		PhotoCategory: category,
		Photos:        photos,
		TotalPhotos:   total,
		Page:          meta.Page,
		Limit:         meta.Limit,
		TotalPages:    meta.TotalPages,
	})
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input models.CategoryInput
	if err := decodeJSON(r, &input); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	category, err := h.Categories.Create(r.Context(), input)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.CategoriesChanged(r.Context(), category.ID)
	writeJSON(w, http.StatusCreated, category)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "category")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	var input models.CategoryInput
	if err := decodeJSON(r, &input); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	category, err := h.Categories.Update(r.Context(), id, input)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.CategoriesChanged(r.Context(), id)
	writeJSON(w, http.StatusOK, category)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "category")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if err := h.Categories.Delete(r.Context(), id); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.CategoriesChanged(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"message": "category deleted", "id": id})
}

type TagHandler struct {
	Tags   repository.TagRepositoryInterface
	Errors ErrorWriter
}

// ListTags returns the tag vocabulary with usage counts in natural order.
func (h *TagHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Tags.ListWithCounts(r.Context())
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
