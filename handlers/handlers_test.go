package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"

	"github.com/hyxhhh1013/Myproject-sub000/cache"
	"github.com/hyxhhh1013/Myproject-sub000/database"
	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/metrics"
	"github.com/hyxhhh1013/Myproject-sub000/models"
	"github.com/hyxhhh1013/Myproject-sub000/realtime"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
	"github.com/hyxhhh1013/Myproject-sub000/services"
	"github.com/hyxhhh1013/Myproject-sub000/workers"
)

type testServer struct {
	handler    http.Handler
	categories *repository.CategoryRepository
	store      *media.LocalStorage
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, adminHash string) *testServer {
	t.Helper()
	log := quietLogger()

	db, err := database.InitGormDB("sqlite", filepath.Join(t.TempDir(), "catalog.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	store, err := media.NewLocalStorage(t.TempDir(), map[media.AssetType]string{
		media.AssetTypeOriginal:  "originals",
		media.AssetTypeThumbnail: "thumbnails",
	}, log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	responseCache := cache.New(cache.NewMemoryBackend(), cache.Options{Metrics: m, Logger: log})
	reaper := workers.NewArtifactReaper(store, m, log, workers.ReaperOptions{Workers: 1, RetryDelay: time.Millisecond})
	t.Cleanup(func() {
		reaper.Stop()
		_ = responseCache.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	photos := repository.NewPhotoRepository(db)
	categories := repository.NewCategoryRepository(db)
	tags := repository.NewTagRepository(db)
	hub := realtime.NewHub(log)

	ingestion := services.NewIngestionService(services.IngestionConfig{
		Photos:      photos,
		Categories:  categories,
		Tags:        tags,
		Processor:   media.NewProcessor(store, 300, log),
		Extractor:   media.NewExtractor(log),
		Reclaimer:   reaper,
		Events:      hub,
		Metrics:     m,
		Concurrency: 2,
		MaxFiles:    10,
		Logger:      log,
	})

	urls := services.NewURLBuilder("")
	invalidate := Invalidator{Cache: responseCache}
	errs := ErrorWriter{Log: log}

	router := NewRouter(RouterDeps{
		Photos: &PhotoHandler{
			Photos:       photos,
			Ingestion:    ingestion,
			Service:      services.NewPhotoService(photos, reaper, log),
			URLs:         urls,
			Invalidate:   invalidate,
			Errors:       errs,
			MaxFileBytes: 5 << 20,
			MaxBulkFiles: 10,
		},
		Categories:     &CategoryHandler{Categories: categories, URLs: urls, Invalidate: invalidate, Errors: errs},
		Tags:           &TagHandler{Tags: tags, Errors: errs},
		Cache:          responseCache,
		Hub:            hub,
		Assets:         store,
		Gatherer:       reg,
		Health:         func() error { return database.Ping(db) },
		AdminTokenHash: adminHash,
		Logger:         log,
	})

	return &testServer{handler: router, categories: categories, store: store}
}

func (s *testServer) category(t *testing.T, name string) uint {
	t.Helper()
	c, err := s.categories.Create(context.Background(), models.CategoryInput{Name: &name})
	require.NoError(t, err)
	return c.ID
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testServer) sendJSON(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

type filePart struct {
	filename string
	data     []byte
}

func uploadRequest(t *testing.T, target, field string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.filename))
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) upload(t *testing.T, categoryID uint, filename string, data []byte) models.Photo {
	t.Helper()
	rec := s.do(t, uploadRequest(t, "/api/photos", "image", map[string]string{
		"categoryId": fmt.Sprint(categoryID),
		"tags":       `["street"]`,
	}, filePart{filename, data}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var photo models.Photo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &photo))
	return photo
}

func jpeg(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 30, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListCachedUntilUpload(t *testing.T) {
	s := newTestServer(t, "")
	categoryID := s.category(t, "Street")
	s.upload(t, categoryID, "first.jpg", jpeg(t, 320, 200))

	first := s.get(t, "/api/photos?sort=size_desc")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(cache.HeaderCacheStatus))

	second := s.get(t, "/api/photos?sort=size_desc")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(cache.HeaderCacheStatus))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	created := s.upload(t, categoryID, "second.jpg", jpeg(t, 640, 480))

	third := s.get(t, "/api/photos?sort=size_desc")
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, "MISS", third.Header().Get(cache.HeaderCacheStatus))

	list := decode[photoListResponse](t, third)
	assert.EqualValues(t, 2, list.Total)
	ids := []uint{list.Photos[0].ID, list.Photos[1].ID}
	assert.Contains(t, ids, created.ID)
}

func TestQueryOrderSharesCacheEntry(t *testing.T) {
	s := newTestServer(t, "")
	s.category(t, "Street")

	require.Equal(t, "MISS", s.get(t, "/api/photos?page=1&limit=5").Header().Get(cache.HeaderCacheStatus))
	assert.Equal(t, "HIT", s.get(t, "/api/photos/?limit=5&page=1").Header().Get(cache.HeaderCacheStatus))
}

func TestGetPhotoIncludesCategoryAndURLs(t *testing.T) {
	s := newTestServer(t, "")
	categoryID := s.category(t, "Portraits")
	created := s.upload(t, categoryID, "face.jpg", jpeg(t, 400, 600))

	rec := s.get(t, fmt.Sprintf("/api/photos/%d", created.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	photo := decode[models.Photo](t, rec)
	assert.Equal(t, "face", photo.Title)
	require.NotNil(t, photo.Category)
	assert.Equal(t, "Portraits", photo.Category.Name)
	require.Len(t, photo.Tags, 1)
	assert.Equal(t, "street", photo.Tags[0].Name)
	assert.Equal(t, "/uploads/"+photo.ThumbnailPath, photo.ThumbnailURL)
}

func TestMissingPhotoIsNotFound(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.get(t, "/api/photos/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[APIErrorResponse](t, rec).Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/photos/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.get(t, "/api/photos/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t, "")

	t.Run("unknown category", func(t *testing.T) {
		rec := s.do(t, uploadRequest(t, "/api/photos", "image", map[string]string{"categoryId": "42"},
			filePart{"a.jpg", jpeg(t, 10, 10)}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decode[APIErrorResponse](t, rec).Code)
	})

	t.Run("missing category", func(t *testing.T) {
		rec := s.do(t, uploadRequest(t, "/api/photos", "image", nil, filePart{"a.jpg", jpeg(t, 10, 10)}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no file", func(t *testing.T) {
		rec := s.do(t, uploadRequest(t, "/api/photos", "image", map[string]string{"categoryId": "1"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("corrupt image", func(t *testing.T) {
		categoryID := s.category(t, "Misc")
		rec := s.do(t, uploadRequest(t, "/api/photos", "image",
			map[string]string{"categoryId": fmt.Sprint(categoryID)},
			filePart{"broken.jpg", []byte("not a jpeg")}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "processing", decode[APIErrorResponse](t, rec).Code)
	})
}

func TestBulkUploadReportsPerFileFailures(t *testing.T) {
	s := newTestServer(t, "")
	categoryID := s.category(t, "Travel")

	rec := s.do(t, uploadRequest(t, "/api/photos/bulk", "images",
		map[string]string{"categoryId": fmt.Sprint(categoryID), "tags": "travel, 2024"},
		filePart{"one.jpg", jpeg(t, 300, 200)},
		filePart{"two.jpg", []byte("garbage")},
		filePart{"three.jpg", jpeg(t, 200, 300)},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[services.BatchReport](t, rec)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "two.jpg", report.Failures[0].Filename)

	tagsRec := s.get(t, "/api/tags")
	require.Equal(t, http.StatusOK, tagsRec.Code)
	var tags []models.Tag
	require.NoError(t, json.Unmarshal(tagsRec.Body.Bytes(), &tags))
	require.Len(t, tags, 2)
	assert.Equal(t, "2024", tags[0].Name)
	assert.EqualValues(t, 2, tags[1].PhotoCount)
}

func TestReorderPhotos(t *testing.T) {
	s := newTestServer(t, "")
	categoryID := s.category(t, "Street")
	a := s.upload(t, categoryID, "a.jpg", jpeg(t, 20, 20))
	b := s.upload(t, categoryID, "b.jpg", jpeg(t, 20, 20))
	c := s.upload(t, categoryID, "c.jpg", jpeg(t, 20, 20))

	rec := s.sendJSON(t, http.MethodPut, "/api/photos/order", map[string]any{
		"photos": []map[string]any{
			{"id": a.ID, "orderIndex": 2},
			{"id": b.ID, "orderIndex": 0},
			{"id": c.ID, "orderIndex": 1},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Orders map[string]int `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int{
		fmt.Sprint(b.ID): 0,
		fmt.Sprint(c.ID): 1,
		fmt.Sprint(a.ID): 2,
	}, resp.Orders)

	list := decode[photoListResponse](t, s.get(t, "/api/photos"))
	require.Len(t, list.Photos, 3)
	assert.Equal(t, []uint{b.ID, c.ID, a.ID}, []uint{list.Photos[0].ID, list.Photos[1].ID, list.Photos[2].ID})

	rec = s.sendJSON(t, http.MethodPut, "/api/photos/order", map[string]any{"ids": []uint{a.ID, 999}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	list = decode[photoListResponse](t, s.get(t, "/api/photos"))
	assert.Equal(t, b.ID, list.Photos[0].ID)
}

func TestDeletePhotoRemovesArtifacts(t *testing.T) {
	s := newTestServer(t, "")
	categoryID := s.category(t, "Street")
	photo := s.upload(t, categoryID, "gone.jpg", jpeg(t, 50, 50))

	thumb := s.get(t, "/uploads/"+photo.ThumbnailPath)
	require.Equal(t, http.StatusOK, thumb.Code)
	assert.Equal(t, "public, max-age=86400", thumb.Header().Get("Cache-Control"))

	rec := s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/photos/%d", photo.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.get(t, fmt.Sprintf("/api/photos/%d", photo.ID)).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/uploads/"+photo.ThumbnailPath).Code)
}

func TestBulkDeleteAndRecategorize(t *testing.T) {
	s := newTestServer(t, "")
	street := s.category(t, "Street")
	nature := s.category(t, "Nature")
	a := s.upload(t, street, "a.jpg", jpeg(t, 20, 20))
	b := s.upload(t, street, "b.jpg", jpeg(t, 20, 20))

	rec := s.sendJSON(t, http.MethodPost, "/api/photos/batch-category", map[string]any{"ids": []uint{a.ID, b.ID}, "categoryId": nature})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[photoListResponse](t, s.get(t, fmt.Sprintf("/api/photos?categoryId=%d", nature)))
	assert.EqualValues(t, 2, list.Total)

	rec = s.sendJSON(t, http.MethodPost, "/api/photos/bulk-delete", map[string]any{"ids": []uint{a.ID, 999}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Count int    `json:"count"`
		IDs   []uint `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []uint{a.ID}, resp.IDs)
}

func TestCategoryEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.sendJSON(t, http.MethodPost, "/api/photo-categories", map[string]any{"name": "Black & White"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	category := decode[models.PhotoCategory](t, rec)
	assert.NotEmpty(t, category.Slug)

	rec = s.sendJSON(t, http.MethodPost, "/api/photo-categories", map[string]any{"name": "Black & White"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.upload(t, category.ID, "bw.jpg", jpeg(t, 30, 30))

	list := s.get(t, "/api/photo-categories")
	require.Equal(t, http.StatusOK, list.Code)
	categories := decode[[]models.PhotoCategory](t, list)
	require.Len(t, categories, 1)
	assert.EqualValues(t, 1, categories[0].PhotoCount)

	detail := s.get(t, fmt.Sprintf("/api/photo-categories/%d?limit=10", category.ID))
	require.Equal(t, http.StatusOK, detail.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(detail.Body.Bytes(), &body))
	assert.Equal(t, "Black & White", body["name"])
	assert.EqualValues(t, 1, body["totalPhotos"])
	assert.EqualValues(t, 10, body["limit"])
	assert.Len(t, body["photos"], 1)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/photo-categories/%d", category.ID), nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/photo-categories/999").Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	s := newTestServer(t, string(hash))

	rec := s.sendJSON(t, http.MethodPost, "/api/photo-categories", map[string]any{"name": "Nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/photo-categories", strings.NewReader(`{"name":"Nope"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, s.do(t, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/photo-categories", strings.NewReader(`{"name":"Yes"}`))
	req.Header.Set("Authorization", "Bearer letmein")
	assert.Equal(t, http.StatusCreated, s.do(t, req).Code)

	assert.Equal(t, http.StatusOK, s.get(t, "/api/photo-categories").Code)
}

func TestUploadRateLimit(t *testing.T) {
	limited := RateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestUploadRateLimitSharedAcrossRoutes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	limit := RateLimit(1)
	single, bulk := limit(ok), limit(ok)

	rec := httptest.NewRecorder()
	single.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/photos", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	bulk.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/photos/bulk", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, "")
	s.get(t, "/api/tags")

	health := s.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, health.Code)

	metricsRec := s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `portfolio_cache_requests_total{result="miss",route="tags.list"} 1`)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/uploads/../catalog.db").Code)
}
