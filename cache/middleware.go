package cache

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const HeaderCacheStatus = "X-Cache"

// Key normalizes a request into a cache key: the path without a trailing slash,
// then the query re-encoded with sorted keys.
func Key(r *http.Request) string {
	return KeyFor(r.URL.Path, r.URL.Query())
}

func KeyFor(path string, query url.Values) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	encoded := query.Encode()
	if encoded == "" {
		return path
	}
	return path + "?" + encoded
}

// Middleware serves GET requests from the cache and stores 2xx responses for ttl.
// route labels the hit/miss metric.
func (c *ResponseCache) Middleware(route string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r)
			if entry, ok := c.Get(r.Context(), key); ok {
				c.metrics.CacheResult(route, true)
				if entry.ContentType != "" {
					w.Header().Set("Content-Type", entry.ContentType)
				}
				w.Header().Set(HeaderCacheStatus, "HIT")
				w.Header().Set("Content-Length", strconv.Itoa(len(entry.Body)))
				w.WriteHeader(entry.Status)
				_, _ = w.Write(entry.Body)
				return
			}
			c.metrics.CacheResult(route, false)

			token := c.Begin()
			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			ww.Header().Set(HeaderCacheStatus, "MISS")

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}
			c.SetIfCurrent(r.Context(), token, key, Entry{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        bytes.Clone(body.Bytes()),
				StoredAt:    c.now(),
				TTL:         ttl,
			})
		})
	}
}
