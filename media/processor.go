package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

const (
	ThumbnailJpegQuality   = 90
	ThumbnailFileExtension = ".jpg"
)

// Processor stores originals and derives their square thumbnails. It relies
// on a Store implementation for saving the results.
type Processor struct {
	store Store
	size  int
	now   func() time.Time
	log   *slog.Logger
}

func NewProcessor(store Store, thumbnailSize int, logger *slog.Logger) *Processor {
	return &Processor{store: store, size: thumbnailSize, now: time.Now, log: logger}
}

// Store exposes the backing artifact store.
func (p *Processor) Store() Store {
	return p.store
}

// StoreOriginal saves an upload under a freshly generated name.
func (p *Processor) StoreOriginal(ctx context.Context, originalFilename string, data []byte) (string, error) {
	name := ArtifactName(originalFilename, p.now())
	ref, err := p.store.Save(ctx, AssetTypeOriginal, name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to save original via store: %w", err)
	}
	return ref, nil
}

// Thumbnail decodes the original (honouring EXIF orientation) and returns a
// size×size centre crop, whatever the source aspect ratio.
func (p *Processor) Thumbnail(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid original image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}
	return imaging.Fill(img, p.size, p.size, imaging.Center, imaging.Lanczos), nil
}

// GenerateThumbnail crops the original and saves the result next to it as
// "<stem>-thumbnail<ext>". The thumbnail keeps the original's format when it
// can be encoded, JPEG otherwise. Returns the thumbnail reference.
func (p *Processor) GenerateThumbnail(ctx context.Context, data []byte, originalRef string) (string, error) {
	thumb, err := p.Thumbnail(data)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(originalRef)
	format, err := imaging.FormatFromFilename(originalRef)
	if err != nil {
		format, ext = imaging.JPEG, ThumbnailFileExtension
	}

	reader, writer := io.Pipe()
	defer reader.Close()

	go func() {
		err := imaging.Encode(writer, thumb, format, imaging.JPEGQuality(ThumbnailJpegQuality))
		if err != nil {
			p.log.Error("failed to encode thumbnail", "ref", originalRef, "error", err)
			writer.CloseWithError(fmt.Errorf("thumbnail encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	thumbRef, err := p.store.Save(ctx, AssetTypeThumbnail, ThumbnailName(originalRef, ext), reader)
	if err != nil {
		return "", fmt.Errorf("failed to save thumbnail via store: %w", err)
	}

	p.log.Debug("generated thumbnail", "original", originalRef, "thumbnail", thumbRef)
	return thumbRef, nil
}
