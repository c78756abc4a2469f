package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hyxhhh1013/Myproject-sub000/cache"
	"github.com/hyxhhh1013/Myproject-sub000/realtime"
)

// cache lifetimes per read endpoint
const (
	photoListTTL    = 5 * time.Minute
	photoItemTTL    = 10 * time.Minute
	categoryListTTL = 10 * time.Minute
	categoryItemTTL = 15 * time.Minute
	tagListTTL      = 10 * time.Minute
)

type RouterDeps struct {
	Photos     *PhotoHandler
	Categories *CategoryHandler
	Tags       *TagHandler
	Cache      *cache.ResponseCache
	Hub        *realtime.Hub

	// Assets serves /uploads/*; nil when artifacts live in S3.
	Assets   AssetResolver
	Gatherer prometheus.Gatherer
	Health   func() error

	CORSOrigins      []string
	AdminTokenHash   string
	UploadRatePerMin int
	RequestTimeout   time.Duration
	Logger           *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", cache.HeaderCacheStatus},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	// long-lived connection, kept out of the request timeout
	r.Get("/api/ws", d.Hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))

		r.Route("/api", func(r chi.Router) {
			cached := func(route string, ttl time.Duration) func(http.Handler) http.Handler {
				return d.Cache.Middleware(route, ttl)
			}
			admin := RequireAdmin(d.AdminTokenHash)
			uploadLimit := RateLimit(d.UploadRatePerMin)

			r.Route("/photos", func(r chi.Router) {
				r.With(cached("photos.list", photoListTTL)).Get("/", d.Photos.ListPhotos)
				r.With(cached("photos.item", photoItemTTL)).Get("/{id}", d.Photos.GetPhoto)

				r.Group(func(r chi.Router) {
					r.Use(admin)
					r.With(uploadLimit).Post("/", d.Photos.CreatePhoto)
					r.With(uploadLimit).Post("/bulk", d.Photos.BulkUpload)
					r.Put("/order", d.Photos.ReorderPhotos)
					r.Post("/bulk-delete", d.Photos.BulkDelete)
					r.Post("/batch-category", d.Photos.BatchCategory)
					r.Put("/{id}", d.Photos.UpdatePhoto)
					r.Delete("/{id}", d.Photos.DeletePhoto)
				})
			})

			r.Route("/photo-categories", func(r chi.Router) {
				r.With(cached("categories.list", categoryListTTL)).Get("/", d.Categories.ListCategories)
				r.With(cached("categories.item", categoryItemTTL)).Get("/{id}", d.Categories.GetCategory)

				r.Group(func(r chi.Router) {
					r.Use(admin)
					r.Post("/", d.Categories.CreateCategory)
					r.Put("/{id}", d.Categories.UpdateCategory)
					r.Delete("/{id}", d.Categories.DeleteCategory)
				})
			})

			r.With(cached("tags.list", tagListTTL)).Get("/tags", d.Tags.ListTags)
		})

		if d.Assets != nil {
			r.Get("/uploads/*", AssetServer(d.Assets, "/uploads/", d.Logger))
		}
		if d.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
		}
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if d.Health != nil {
				if err := d.Health(); err != nil {
					d.Logger.Error("health check failed", "error", err)
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
					return
				}
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
