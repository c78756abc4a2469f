package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
)

// PhotoService deletes catalog entries together with their artifacts. Artifact
// removal follows the committed row deletion and never rolls it back.
type PhotoService struct {
	photos    repository.PhotoRepositoryInterface
	reclaimer ArtifactReclaimer
	log       *slog.Logger
}

func NewPhotoService(photos repository.PhotoRepositoryInterface, reclaimer ArtifactReclaimer, logger *slog.Logger) *PhotoService {
	return &PhotoService{photos: photos, reclaimer: reclaimer, log: logger.With("component", "photo_service")}
}

func (s *PhotoService) Delete(ctx context.Context, id uint) (*models.Photo, error) {
	photo, err := s.photos.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.reclaimer.Reclaim(context.WithoutCancel(ctx), "photo_delete", photo.Refs()...)
	s.log.Info("photo deleted", "photo_id", id)
	return photo, nil
}

// BatchDelete removes every existing photo among ids and returns the deleted ids.
func (s *PhotoService) BatchDelete(ctx context.Context, ids []uint) ([]uint, error) {
	photos, err := s.photos.BatchDelete(ctx, ids)
	if err != nil {
		return nil, err
	}

	deleted := make([]uint, 0, len(photos))
	refs := make([]string, 0, len(photos)*2)
	for _, p := range photos {
		deleted = append(deleted, p.ID)
		refs = append(refs, p.Refs()...)
	}
	s.reclaimer.Reclaim(context.WithoutCancel(ctx), "photo_batch_delete", refs...)
	s.log.Info("photos batch deleted", "requested", len(ids), "deleted", len(deleted))
	return deleted, nil
}

// URLBuilder turns artifact references into public URLs.
type URLBuilder struct {
	base string
}

// NewURLBuilder serves refs under base, or under /uploads on this host when
// base is empty.
func NewURLBuilder(base string) URLBuilder {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = "/uploads"
	}
	return URLBuilder{base: base}
}

func (b URLBuilder) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return b.base + "/" + strings.TrimLeft(ref, "/")
}

// Decorate fills the URL fields of photo.
func (b URLBuilder) Decorate(photo *models.Photo) {
	photo.ImageURL = b.URL(photo.ImagePath)
	photo.ThumbnailURL = b.URL(photo.ThumbnailPath)
}

func (b URLBuilder) DecorateAll(photos []models.Photo) {
	for i := range photos {
		b.Decorate(&photos[i])
	}
}
