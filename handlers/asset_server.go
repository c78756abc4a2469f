package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const assetCacheDuration = 24 * time.Hour

// AssetResolver maps an artifact reference to a file on disk, rejecting
// references that escape the storage root.
type AssetResolver interface {
	FullPath(ref string) (string, error)
}

// AssetServer serves stored artifacts. The request path below routePrefix is
// the artifact reference, e.g. /uploads/thumbnails/x.jpg -> thumbnails/x.jpg.
//
//	r.Get("/uploads/*", AssetServer(store, "/uploads/", logger))
func AssetServer(store AssetResolver, routePrefix string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, routePrefix)
		if ref == "" || strings.Contains(ref, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		fullPath, err := store.FullPath(ref)
		if err != nil {
			logger.Warn("asset request outside storage root", "path", r.URL.Path, "error", err)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(fullPath)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			logger.Error("failed to stat asset", "path", fullPath, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))
		http.ServeFile(w, r, fullPath)
	}
}
