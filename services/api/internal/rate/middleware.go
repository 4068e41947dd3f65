package rate

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/AfshinJalili/rentabili/libs/metrics"
	"github.com/gin-gonic/gin"
)

// Middleware limits requests per client IP. A limiter error lets the
// request through with a warning.
func Middleware(name string, limiter Limiter, logger *slog.Logger, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP(), now())
		if err != nil {
			logger.Warn("rate limiter failed",
				slog.String("limiter", name),
				slog.Any("error", err),
			)
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejections.WithLabelValues(name).Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "message": "too many requests"})
			return
		}
		c.Next()
	}
}
