package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
	"github.com/hyxhhh1013/Myproject-sub000/database"
	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/pagination"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
	"github.com/hyxhhh1013/Myproject-sub000/services"
)

type PhotoHandler struct {
	Photos       repository.PhotoRepositoryInterface
	Ingestion    *services.IngestionService
	Service      *services.PhotoService
	URLs         services.URLBuilder
	Invalidate   Invalidator
	Errors       ErrorWriter
	MaxFileBytes int64
	MaxBulkFiles int
}

type photoListResponse struct {
	Photos []models.Photo `json:"photos"`
	pagination.Meta
}

// ListPhotos serves the public gallery: visible photos only, filtered by
// category, featured flag and search text.
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PhotoFilter{
		VisibleOnly:  true,
		FeaturedOnly: q.Get("isFeatured") == "true",
		Search:       q.Get("search"),
		Sort:         q.Get("sort"),
	}
	if !database.IsValidSortOrder(filter.Sort) {
		filter.Sort = database.DefaultSortOrder
	}
	if raw := q.Get("categoryId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.Errors.Write(w, r, apperr.Validation("categoryId must be a number"))
			return
		}
		categoryID := uint(id)
		filter.CategoryID = &categoryID
	}

	page := pagination.FromRequest(r)
	photos, total, err := h.Photos.List(r.Context(), filter, page)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.URLs.DecorateAll(photos)
	writeJSON(w, http.StatusOK, photoListResponse{Photos: photos, Meta: pagination.NewMeta(page, total)})
}

func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "photo")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	photo, err := h.Photos.GetByID(r.Context(), id)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.URLs.Decorate(photo)
	writeJSON(w, http.StatusOK, photo)
}

// CreatePhoto ingests the multipart field "image".
func (h *PhotoHandler) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	form, err := readUploadForm(w, r, "image", 1, h.MaxFileBytes)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	opts, err := form.options(true)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	photo, err := h.Ingestion.IngestOne(r.Context(), form.files[0], opts)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.PhotosChanged(r.Context(), photo.ID)

	h.URLs.Decorate(photo)
	writeJSON(w, http.StatusCreated, photo)
}

// BulkUpload ingests every "images" part with shared metadata. Per-file
// failures are reported in the body, not as the status.
func (h *PhotoHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	form, err := readUploadForm(w, r, "images", h.MaxBulkFiles, h.MaxFileBytes)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	opts, err := form.options(false)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	report, err := h.Ingestion.IngestBatch(r.Context(), form.files, opts)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if report.SuccessCount > 0 {
		ids := make([]uint, len(report.Photos))
		for i := range report.Photos {
			ids[i] = report.Photos[i].ID
		}
		h.Invalidate.PhotosChanged(r.Context(), ids...)
	}

	h.URLs.DecorateAll(report.Photos)
	writeJSON(w, http.StatusOK, report)
}

func (h *PhotoHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "photo")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	var update models.PhotoUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if update.IsEmpty() {
		h.Errors.Write(w, r, apperr.Validation("no fields to update"))
		return
	}

	photo, err := h.Photos.Update(r.Context(), id, update)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.PhotosChanged(r.Context(), id)

	h.URLs.Decorate(photo)
	writeJSON(w, http.StatusOK, photo)
}

func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "photo")
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if _, err := h.Service.Delete(r.Context(), id); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.PhotosChanged(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"message": "photo deleted", "id": id})
}

type reorderRequest struct {
	IDs    []uint `json:"ids"`
	Photos []struct {
		ID         uint  `json:"id"`
		OrderIndex int64 `json:"orderIndex"`
	} `json:"photos"`
}

// orderedIDs accepts either an explicit id sequence or {id, orderIndex}
// pairs, which are ranked by orderIndex and then renumbered from zero.
func (req reorderRequest) orderedIDs() []uint {
	if len(req.IDs) > 0 {
		return req.IDs
	}
	pairs := req.Photos
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].OrderIndex < pairs[j].OrderIndex })
	ids := make([]uint, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ID
	}
	return ids
}

func (h *PhotoHandler) ReorderPhotos(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	ids := req.orderedIDs()
	if err := h.Photos.Reorder(r.Context(), ids); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.PhotosChanged(r.Context(), ids...)

	orders := make(map[string]int, len(ids))
	for i, id := range ids {
		orders[strconv.FormatUint(uint64(id), 10)] = i
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "photo order updated", "orders": orders})
}

type idsRequest struct {
	IDs        []uint `json:"ids"`
	CategoryID uint   `json:"categoryId"`
}

func (h *PhotoHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	deleted, err := h.Service.BatchDelete(r.Context(), req.IDs)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if len(deleted) > 0 {
		h.Invalidate.PhotosChanged(r.Context(), deleted...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "photos deleted", "count": len(deleted), "ids": deleted})
}

func (h *PhotoHandler) BatchCategory(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	if req.CategoryID == 0 {
		h.Errors.Write(w, r, apperr.Validation("categoryId is required"))
		return
	}
	count, err := h.Photos.BatchRecategorize(r.Context(), req.IDs, req.CategoryID)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}
	h.Invalidate.PhotosChanged(r.Context(), req.IDs...)
	writeJSON(w, http.StatusOK, map[string]any{"message": "photos recategorized", "count": count})
}
