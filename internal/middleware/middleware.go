// Package middleware holds the gin.HandlerFunc chain wrapped around
// every route: request ID assignment, structured access logging, panic
// recovery, CORS, and optional rate limiting. Grounded on the teacher's
// internal/errors.ErrorHandlerMiddleware (recovery) and
// internal/router.RouterMiddleware (the request-mutating middleware
// shape), generalized to this bridge's single-route surface.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orchestre-dev/anthropic-bridge/internal/bridgeerr"
	"github.com/orchestre-dev/anthropic-bridge/internal/logging"
	"github.com/orchestre-dev/anthropic-bridge/internal/ratelimit"
)

const requestIDKey = "request_id"

// RequestID assigns a request ID (preferring an inbound X-Request-Id)
// and stores it in the gin context for downstream handlers and logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// RequestIDFromContext reads back what RequestID stored.
func RequestIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// AccessLog logs one line per completed request via the bridge's
// Logger, in the teacher's HTTPLog shape.
func AccessLog(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.HTTPLog(c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Milliseconds(), RequestIDFromContext(c))
	}
}

// Recovery converts a panic in a handler into a bridgeerr TranslationError
// response instead of crashing the process, logging the stack trace.
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"panic":      r,
					"stack":      string(debug.Stack()),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"request_id": RequestIDFromContext(c),
				}).Error("panic recovered")

				bridgeerr.New(bridgeerr.KindTranslationError, "internal server error").WriteGin(c)
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CORS permits browser-based Anthropic SDK clients (e.g. a local web
// UI) to call the bridge directly, per spec.md §12's supplemented
// surface.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key, Anthropic-Version, X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit rejects requests once the configured process-wide limiter
// is exhausted, answering with a bridgeerr-shaped 429 rather than
// gin's default empty body.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			bridgeerr.New(bridgeerr.KindUpstreamStatus, "rate limit exceeded").WithStatus(http.StatusTooManyRequests).WriteGin(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
