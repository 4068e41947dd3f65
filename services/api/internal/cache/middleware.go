package cache

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AfshinJalili/rentabili/libs/auth"
	"github.com/AfshinJalili/rentabili/libs/metrics"
	"github.com/gin-gonic/gin"
)

const headerCache = "X-Cache"

// Key is the per-user cache key for a resource prefix.
func Key(namespace, prefix, userID string) string {
	return namespace + prefix + ":" + userID
}

// Middleware serves and invalidates per-user JSON responses. Backend
// failures are logged and never change the response.
type Middleware struct {
	Store     Store
	Namespace string
	Logger    *slog.Logger
}

func NewMiddleware(store Store, namespace string, logger *slog.Logger) *Middleware {
	return &Middleware{Store: store, Namespace: namespace, Logger: logger}
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cached must run after the auth middleware.
func (m *Middleware) Cached(prefix string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.Next()
			return
		}
		key := Key(m.Namespace, prefix, userID)
		ctx := c.Request.Context()

		body, err := m.Store.Get(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues(prefix, "hit").Inc()
			c.Header(headerCache, "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			c.Abort()
			return
		case errors.Is(err, ErrMiss):
			metrics.CacheLookups.WithLabelValues(prefix, "miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues(prefix, "error").Inc()
			m.Logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		}

		c.Header(headerCache, "MISS")
		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if w.Status() != http.StatusOK || w.body.Len() == 0 {
			return
		}
		if err := m.Store.Set(ctx, key, w.body.Bytes(), ttl); err != nil {
			m.Logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// Invalidate drops the caller's entries for prefixes once the handler has
// succeeded.
func (m *Middleware) Invalidate(prefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		userID := auth.UserID(c)
		if userID == "" || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		keys := make([]string, 0, len(prefixes))
		for _, p := range prefixes {
			keys = append(keys, Key(m.Namespace, p, userID))
		}
		if err := m.Store.Delete(c.Request.Context(), keys...); err != nil {
			m.Logger.Warn("cache invalidation failed", slog.Any("keys", keys), slog.Any("error", err))
		}
	}
}
