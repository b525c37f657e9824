// Package server wires the gin router: route registration, the
// request translation pipeline per route, and the handlers for
// /v1/messages, /health, and /status. Grounded on the teacher's
// internal/handlers.RegisterRoutes/ProxyMessages flow, generalized from
// a provider-interface dispatch to this bridge's fixed passthrough/
// translate routing (spec.md §5.1).
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/bridgeerr"
	"github.com/orchestre-dev/anthropic-bridge/internal/config"
	"github.com/orchestre-dev/anthropic-bridge/internal/forwarder"
	"github.com/orchestre-dev/anthropic-bridge/internal/logging"
	"github.com/orchestre-dev/anthropic-bridge/internal/middleware"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
	"github.com/orchestre-dev/anthropic-bridge/internal/ratelimit"
	"github.com/orchestre-dev/anthropic-bridge/internal/stream"
	"github.com/orchestre-dev/anthropic-bridge/internal/tokens"
	"github.com/orchestre-dev/anthropic-bridge/internal/translate"
	"github.com/orchestre-dev/anthropic-bridge/pkg/sse"
)

const version = "0.1.0"

// Handler holds the dependencies every route needs.
type Handler struct {
	cfg        *config.Config
	forwarder  *forwarder.Forwarder
	logger     *logging.Logger
	models     translate.ModelMap
	drop       translate.DropSet
	ring       *logging.Ring
	limiter    *ratelimit.Limiter
	startedAt  time.Time
	lastTokEst int64 // best-effort tiktoken-go estimate of the last /v1/messages request
}

// New builds a Handler. limiter may be nil when rate limiting is disabled.
func New(cfg *config.Config, fwd *forwarder.Forwarder, logger *logging.Logger, ring *logging.Ring, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		cfg:       cfg,
		forwarder: fwd,
		logger:    logger,
		models:    translate.ModelMap(cfg.Models),
		drop:      translate.NewDropSet(append(append([]string{}, anthropic.FieldDropList...), cfg.Params.Drop...)),
		ring:      ring,
		limiter:   limiter,
		startedAt: time.Now(),
	}
}

// Register attaches every route and the shared middleware chain to
// engine.
func Register(engine *gin.Engine, h *Handler, limiter *ratelimit.Limiter) {
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(h.logger))
	engine.Use(middleware.CORS())
	engine.Use(middleware.AccessLog(h.logger))
	if limiter != nil {
		engine.Use(middleware.RateLimit(limiter))
	}

	engine.GET("/health", h.Health)
	engine.GET("/status", h.Status)
	engine.POST("/v1/messages", h.Messages)
}

// Health is a liveness probe; it never touches the upstream provider.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the bridge's effective configuration and recent
// activity (spec.md §12 supplemented diagnostics endpoint).
func (h *Handler) Status(c *gin.Context) {
	var recent []logging.Line
	if h.ring != nil {
		recent = h.ring.Recent()
	}
	var rateLimitHits int64
	if h.limiter != nil {
		rateLimitHits = h.limiter.Hits()
	}
	c.JSON(http.StatusOK, gin.H{
		"version":             version,
		"provider":            h.cfg.Provider.Name,
		"base_url":            h.cfg.Provider.BaseURL,
		"format":              h.cfg.Provider.Format,
		"models":              h.cfg.Models,
		"uptime_s":            int(time.Since(h.startedAt).Seconds()),
		"last_request_tokens": atomic.LoadInt64(&h.lastTokEst),
		"rate_limit_hits":     rateLimitHits,
		"recent":              recent,
	})
}

// Messages handles POST /v1/messages: the one endpoint that exercises
// the request/response/stream translators and the forwarder (spec.md
// §3, §5).
func (h *Handler) Messages(c *gin.Context) {
	requestID := middleware.RequestIDFromContext(c)
	logEntry := h.logger.WithRequestID(requestID)

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		bridgeerr.Wrap(err, bridgeerr.KindBadRequest, "reading request body").WriteGin(c)
		return
	}

	var req anthropic.MessagesRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		logEntry.WithError(err).Warn("malformed request body")
		bridgeerr.Wrap(err, bridgeerr.KindBadRequest, "invalid JSON body").WriteGin(c)
		return
	}
	if len(req.Messages) == 0 {
		bridgeerr.New(bridgeerr.KindBadRequest, "messages must not be empty").WithField("messages").WriteGin(c)
		return
	}

	atomic.StoreInt64(&h.lastTokEst, int64(tokens.EstimateRequest(&req)))
	logEntry.WithField("model", req.Model).WithField("stream", req.Stream).Info("incoming request")

	if h.cfg.Provider.Format == "anthropic" {
		h.passthrough(c, rawBody, req.Stream)
		return
	}

	h.translate(c, &req)
}

// passthrough forwards the Anthropic-shaped body unchanged, used when
// the configured provider already speaks the Anthropic wire format
// (spec.md §5.1).
func (h *Handler) passthrough(c *gin.Context, body []byte, streamed bool) {
	ctx := c.Request.Context()

	if !streamed {
		result, err := h.forwarder.Do(ctx, "/v1/messages", body, c.Request)
		if err != nil {
			writeForwarderError(c, err)
			return
		}
		c.Data(result.StatusCode, "application/json", result.Body)
		return
	}

	resp, err := h.forwarder.DoStream(ctx, "/v1/messages", body, c.Request)
	if err != nil {
		writeForwarderError(c, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.Data(resp.StatusCode, "application/json", respBody)
		return
	}

	relayRaw(c, resp.Body)
}

// translate converts the request to OpenAI format, forwards it, and
// converts the response (or stream) back to Anthropic format (spec.md
// §4, §5.1).
func (h *Handler) translate(c *gin.Context, req *anthropic.MessagesRequest) {
	originalModel := req.Model

	openaiReq, err := translate.Request(req, h.models, h.drop)
	if err != nil {
		writeTranslationError(c, err)
		return
	}

	body, err := json.Marshal(openaiReq)
	if err != nil {
		bridgeerr.Wrap(err, bridgeerr.KindTranslationError, "encoding upstream request").WriteGin(c)
		return
	}

	ctx := c.Request.Context()

	if !req.Stream {
		result, err := h.forwarder.Do(ctx, "/chat/completions", body, c.Request)
		if err != nil {
			writeForwarderError(c, err)
			return
		}
		if result.StatusCode >= 300 {
			writeUpstreamStatus(c, result.StatusCode, result.Body)
			return
		}

		var chatResp openai.ChatResponse
		if err := json.Unmarshal(result.Body, &chatResp); err != nil {
			bridgeerr.Wrap(err, bridgeerr.KindTranslationError, "decoding upstream response").WriteGin(c)
			return
		}

		anthropicResp, warnings, err := translate.Response(&chatResp, originalModel)
		if err != nil {
			writeTranslationError(c, err)
			return
		}
		for _, w := range warnings {
			h.logger.WithField("field", w.Field).Warn(w.Message)
		}

		c.JSON(http.StatusOK, anthropicResp)
		return
	}

	resp, err := h.forwarder.DoStream(ctx, "/chat/completions", body, c.Request)
	if err != nil {
		writeForwarderError(c, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		writeUpstreamStatus(c, resp.StatusCode, respBody)
		return
	}

	h.relayTranslated(c, resp.Body, originalModel)
}

// relayTranslated reads upstream SSE chunks, feeds them through the
// stream translator, and writes the resulting Anthropic SSE events,
// flushing after each one (spec.md §4.4, §4.4.5 ordering guarantee).
func (h *Handler) relayTranslated(c *gin.Context, body io.ReadCloser, originalModel string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	writer := sse.NewWriter(c.Writer)
	reader := sse.NewReader(body)
	translator := stream.New(originalModel)
	streamLog := h.logger.WithComponent("stream")

	for {
		ev, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			streamLog.WithError(err).Warn("stream aborted reading upstream")
			return
		}

		chunk, done, err := stream.ParseChunk(ev.Data)
		if err != nil {
			streamLog.WithError(err).Warn("dropping malformed upstream chunk")
			continue
		}
		if done {
			break
		}

		for _, out := range translator.ProcessChunk(chunk) {
			if writeErr := writeEvent(writer, out); writeErr != nil {
				return
			}
		}
	}

	for _, out := range translator.Finish() {
		if writeErr := writeEvent(writer, out); writeErr != nil {
			return
		}
	}
}

func writeEvent(w *sse.Writer, ev stream.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	return w.WriteEvent(sse.Event{Name: ev.Name, Data: string(data)})
}

// relayRaw forwards an already-Anthropic-shaped SSE body byte for byte
// (passthrough streaming, spec.md §5.1).
func relayRaw(c *gin.Context, body io.Reader) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func writeForwarderError(c *gin.Context, err error) {
	if be, ok := bridgeerr.As(err); ok {
		be.WriteGin(c)
		return
	}
	bridgeerr.Wrap(err, bridgeerr.KindUpstreamConnect, "forwarding request").WriteGin(c)
}

func writeTranslationError(c *gin.Context, err error) {
	var uce *anthropic.UnknownContentError
	if errors.As(err, &uce) {
		bridgeerr.Wrap(err, bridgeerr.KindBadRequest, err.Error()).WriteGin(c)
		return
	}
	bridgeerr.Wrap(err, bridgeerr.KindTranslationError, "translating request").WriteGin(c)
}

// writeUpstreamStatus passes the upstream's own status code through to
// the client (spec.md §7.1). A JSON body is passed through verbatim; any
// other body is wrapped in an Anthropic api_error envelope carrying its
// text.
func writeUpstreamStatus(c *gin.Context, status int, body []byte) {
	var asJSON map[string]any
	if json.Unmarshal(body, &asJSON) == nil {
		c.Data(status, "application/json", body)
		return
	}
	c.JSON(status, bridgeerr.New(bridgeerr.KindUpstreamStatus, forwarder.UpstreamErrorBody(body)).WithStatus(status).ToBody())
}
