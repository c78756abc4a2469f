package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/metrics"
	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/realtime"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
)

// IngestState is the stage a single uploaded file has reached.
type IngestState string

const (
	StateReceived          IngestState = "received"
	StateArtifactsStored   IngestState = "artifacts_stored"
	StateMetadataExtracted IngestState = "metadata_extracted"
	StateTagsResolved      IngestState = "tags_resolved"
	StateCataloged         IngestState = "cataloged"
	StateFailed            IngestState = "failed"
)

const defaultIngestConcurrency = 4

// Upload is one received file.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IngestOptions are the metadata fields shared by every file of a request.
type IngestOptions struct {
	Title       string // empty: derived from each filename
	Description *string
	CategoryID  uint
	Tags        []string
	IsFeatured  bool
	IsVisible   bool
	OrderIndex  *int64 // single uploads only; allocated when nil
}

type IngestFailure struct {
	Filename string      `json:"filename"`
	State    IngestState `json:"state"` // last stage reached before failing
	Error    string      `json:"error"`
}

type BatchReport struct {
	BatchID      string          `json:"batchId"`
	SuccessCount int             `json:"successCount"`
	FailureCount int             `json:"failureCount"`
	Photos       []models.Photo  `json:"photos"`
	Failures     []IngestFailure `json:"failures"`
}

// ArtifactReclaimer removes stored artifacts, retrying in the background when
// an inline delete fails.
type ArtifactReclaimer interface {
	Reclaim(ctx context.Context, reason string, refs ...string)
}

type IngestionConfig struct {
	Photos      repository.PhotoRepositoryInterface
	Categories  repository.CategoryRepositoryInterface
	Tags        repository.TagRepositoryInterface
	Processor   *media.Processor
	Extractor   *media.Extractor
	Reclaimer   ArtifactReclaimer
	Events      realtime.Publisher // optional
	Metrics     *metrics.Metrics   // optional
	Concurrency int
	MaxFiles    int // 0: unlimited
	Logger      *slog.Logger
}

// IngestionService turns uploaded files into catalog entries: original and
// thumbnail artifacts, EXIF metadata, resolved tags and the photo row.
type IngestionService struct {
	photos      repository.PhotoRepositoryInterface
	categories  repository.CategoryRepositoryInterface
	tags        repository.TagRepositoryInterface
	processor   *media.Processor
	extractor   *media.Extractor
	reclaimer   ArtifactReclaimer
	events      realtime.Publisher
	metrics     *metrics.Metrics
	concurrency int
	maxFiles    int
	log         *slog.Logger
	now         func() time.Time
}

func NewIngestionService(cfg IngestionConfig) *IngestionService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultIngestConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &IngestionService{
		photos:      cfg.Photos,
		categories:  cfg.Categories,
		tags:        cfg.Tags,
		processor:   cfg.Processor,
		extractor:   cfg.Extractor,
		reclaimer:   cfg.Reclaimer,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		maxFiles:    cfg.MaxFiles,
		log:         cfg.Logger.With("component", "ingestion"),
		now:         time.Now,
	}
}

// IngestOne catalogs a single upload and returns the first error encountered.
func (s *IngestionService) IngestOne(ctx context.Context, up Upload, opts IngestOptions) (*models.Photo, error) {
	if err := s.checkCategory(ctx, opts.CategoryID); err != nil {
		return nil, err
	}

	var order int64
	if opts.OrderIndex != nil {
		if *opts.OrderIndex < 0 {
			return nil, apperr.Validation("orderIndex must not be negative")
		}
		order = *opts.OrderIndex
	} else {
		first, err := s.photos.AllocateOrders(ctx, 1)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		order = first
	}

	photo, _, err := s.ingest(ctx, uuid.NewString(), up, opts, order)
	return photo, err
}

// IngestBatch catalogs every upload with consecutive display orders. A failed
// file is reported and never affects its siblings; only an empty batch, an
// oversized batch or an unknown category fail the call itself.
func (s *IngestionService) IngestBatch(ctx context.Context, uploads []Upload, opts IngestOptions) (*BatchReport, error) {
	if len(uploads) == 0 {
		return nil, apperr.Validation("at least one image is required")
	}
	if s.maxFiles > 0 && len(uploads) > s.maxFiles {
		return nil, apperr.Validation("at most %d images can be uploaded at once", s.maxFiles)
	}
	if err := s.checkCategory(ctx, opts.CategoryID); err != nil {
		return nil, err
	}

	first, err := s.photos.AllocateOrders(ctx, len(uploads))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	type outcome struct {
		photo *models.Photo
		state IngestState
		err   error
	}

	batchID := uuid.NewString()
	results := make([]outcome, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, up := range uploads {
		g.Go(func() error {
			photo, state, err := s.ingest(ctx, batchID, up, opts, first+int64(i))
			results[i] = outcome{photo: photo, state: state, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{
		BatchID:  batchID,
		Photos:   make([]models.Photo, 0, len(uploads)),
		Failures: []IngestFailure{},
	}
	for i, res := range results {
		if res.err != nil {
			report.Failures = append(report.Failures, IngestFailure{
				Filename: uploads[i].Filename,
				State:    res.state,
				Error:    failureMessage(res.err),
			})
			continue
		}
		report.Photos = append(report.Photos, *res.photo)
	}
	report.SuccessCount = len(report.Photos)
	report.FailureCount = len(report.Failures)

	s.log.Info("batch ingestion finished",
		"batch_id", batchID, "files", len(uploads), "succeeded", report.SuccessCount, "failed", report.FailureCount)
	s.publish(realtime.Event{
		Type:    realtime.EventIngestBatch,
		BatchID: batchID,
		Extra:   map[string]any{"successCount": report.SuccessCount, "failureCount": report.FailureCount},
	})
	return report, nil
}

func (s *IngestionService) checkCategory(ctx context.Context, id uint) error {
	if id == 0 {
		return apperr.Validation("categoryId is required")
	}
	ok, err := s.categories.Exists(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Validation("category %d does not exist", id)
	}
	return nil
}

// ingest runs one file through the pipeline. On failure it returns the last
// state reached and removes whatever artifacts were already stored.
func (s *IngestionService) ingest(ctx context.Context, batchID string, up Upload, opts IngestOptions, order int64) (photo *models.Photo, state IngestState, err error) {
	started := s.now()
	var stored []string

	s.transition(batchID, up.Filename, StateReceived, 0)
	state = StateReceived

	defer func() {
		elapsed := s.now().Sub(started)
		if err == nil {
			s.metrics.IngestFile(string(StateCataloged), elapsed)
			return
		}
		s.metrics.IngestFile(string(StateFailed), elapsed)
		if len(stored) > 0 && s.reclaimer != nil {
			s.reclaimer.Reclaim(context.WithoutCancel(ctx), "ingest_compensation", stored...)
		}
		s.log.Warn("file ingestion failed",
			"batch_id", batchID, "filename", up.Filename, "state", state, "error", err)
		s.publish(realtime.Event{
			Type:     realtime.EventIngestState,
			BatchID:  batchID,
			Filename: up.Filename,
			State:    string(StateFailed),
			Error:    failureMessage(err),
		})
	}()

	if len(up.Data) == 0 {
		return nil, state, apperr.Validation("%s is empty", up.Filename)
	}
	if !media.IsImageUpload(up.Filename, up.ContentType) {
		return nil, state, apperr.Validation("%s is not an image", up.Filename)
	}

	originalRef, err := s.processor.StoreOriginal(ctx, up.Filename, up.Data)
	if err != nil {
		return nil, state, apperr.Storage("failed to store original", err)
	}
	stored = append(stored, originalRef)

	// thumbnailing and metadata reading only share the input bytes
	var (
		thumbRef      string
		width, height int
		meta          media.Metadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := s.processor.GenerateThumbnail(gctx, up.Data, originalRef)
		thumbRef = ref
		return err
	})
	g.Go(func() error {
		w, h, err := s.extractor.Dimensions(up.Data)
		if err != nil {
			return err
		}
		width, height = w, h
		meta = s.extractor.Extract(up.Data)
		return nil
	})
	waitErr := g.Wait()
	if thumbRef != "" {
		stored = append(stored, thumbRef)
	}
	if waitErr != nil {
		if thumbRef != "" {
			state = StateArtifactsStored
		}
		return nil, state, classifyArtifactError(waitErr)
	}
	state = StateArtifactsStored
	s.transition(batchID, up.Filename, state, 0)
	state = StateMetadataExtracted
	s.transition(batchID, up.Filename, state, 0)

	tags, err := s.tags.Resolve(ctx, opts.Tags)
	if err != nil {
		return nil, state, err
	}
	state = StateTagsResolved
	s.transition(batchID, up.Filename, state, 0)

	takenAt := s.now()
	if meta.TakenAt != nil {
		takenAt = time.Unix(*meta.TakenAt, 0)
	}

	photo = &models.Photo{
		Title:         s.titleFor(opts.Title, up.Filename),
		Description:   nonEmpty(opts.Description),
		ImagePath:     originalRef,
		ThumbnailPath: thumbRef,
		Width:         width,
		Height:        height,
		Size:          int64(len(up.Data)),
		TakenAt:       takenAt,
		ExifData:      datatypes.NewJSONType(meta),
		CategoryID:    opts.CategoryID,
		IsFeatured:    opts.IsFeatured,
		IsVisible:     opts.IsVisible,
		OrderIndex:    order,
	}
	if err := s.photos.Create(ctx, photo, tags); err != nil {
		return nil, state, err
	}

	state = StateCataloged
	s.transition(batchID, up.Filename, state, photo.ID)
	return photo, state, nil
}

func (s *IngestionService) titleFor(title, filename string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	base := filepath.Base(filename)
	if stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))); stem != "" && stem != "." {
		return stem
	}
	return fmt.Sprintf("photo_%d", s.now().UnixMilli())
}

func (s *IngestionService) transition(batchID, filename string, state IngestState, photoID uint) {
	s.log.Debug("ingest state", "batch_id", batchID, "filename", filename, "state", state, "photo_id", photoID)
	s.publish(realtime.Event{
		Type:     realtime.EventIngestState,
		BatchID:  batchID,
		Filename: filename,
		State:    string(state),
		PhotoID:  photoID,
	})
}

func (s *IngestionService) publish(event realtime.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

func classifyArtifactError(err error) error {
	if errors.Is(err, media.ErrUndecodable) {
		return apperr.Processing("image could not be processed", err)
	}
	if apperr.As(err) != nil {
		return err
	}
	return apperr.Storage("failed to store thumbnail", err)
}

func failureMessage(err error) string {
	if e := apperr.As(err); e != nil {
		return e.Message
	}
	return err.Error()
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
