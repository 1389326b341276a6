package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "order:response:"

// ResponseCache is a read-through cache for GET responses. Order and saga
// reads are polled aggressively by clients waiting for a saga to settle; a
// short TTL keeps that load off Postgres without serving stale state for
// long. A nil client disables caching entirely.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a response cache middleware.
func NewResponseCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl, logger: logger}
}

// Middleware serves cached GET responses and records fresh ones.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil || c.client == nil || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := cacheKeyPrefix + r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}

		if data, err := c.client.Get(r.Context(), key).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		} else if err != redis.Nil {
			c.logger.Warn("response cache read failed", slog.String("error", err.Error()))
		}

		rec := &cachingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK && rec.body.Len() > 0 {
			if err := c.client.Set(r.Context(), key, rec.body.Bytes(), c.ttl).Err(); err != nil {
				c.logger.Warn("response cache write failed", slog.String("error", err.Error()))
			}
		}
	})
}

type cachingResponseWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *cachingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *cachingResponseWriter) Write(p []byte) (int, error) {
	if w.status == http.StatusOK {
		w.body.Write(p)
	}
	return w.ResponseWriter.Write(p)
}
