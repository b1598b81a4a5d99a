// Package handler exposes the relay over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hpn/hpn-ask-relay/internal/adapter"
	"github.com/hpn/hpn-ask-relay/internal/domain"
	"github.com/hpn/hpn-ask-relay/internal/imagestore"
	"github.com/hpn/hpn-ask-relay/internal/responder"
)

// Limits on per-request retry overrides.
const (
	MaxRetryAttempts = 10
	MaxDelaySeconds  = 60
)

// Context keys read by LoggingMiddleware.
const (
	ctxResultKind = "result_kind"
	ctxImageUID   = "image_uid"
)

// Asker answers conversations. *responder.Responder implements it.
type Asker interface {
	Ask(ctx context.Context, messages []domain.Message, isImage bool, opts responder.Options) domain.Result
	Defaults() responder.Options
}

// ImageFetcher downloads images. *imagestore.Fetcher implements it.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// KeyStats reports the state of the primary key ring.
type KeyStats interface {
	ActiveCount() int
	ParkedCount() int
	TotalCount() int
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Messages []domain.Message `json:"messages"`
	IsImage  bool             `json:"is_image"`

	// RetryAttempts and DelaySeconds override the configured retry policy.
	RetryAttempts *int     `json:"retry_attempts,omitempty"`
	DelaySeconds  *float64 `json:"delay_seconds,omitempty"`
}

// AskResponse is the body returned by POST /v1/ask.
type AskResponse struct {
	Text string            `json:"text"`
	Kind domain.ResultKind `json:"kind"`
}

// FetchImageRequest is the body of POST /v1/images.
type FetchImageRequest struct {
	URL string `json:"url"`
}

// FetchImageResponse is returned once an image is stored.
type FetchImageResponse struct {
	UID    string `json:"uid"`
	Marker string `json:"marker"`
}

// RelayHandler serves the ask, image and health endpoints.
type RelayHandler struct {
	asker   Asker
	fetcher ImageFetcher
	keys    KeyStats
	logger  *slog.Logger

	askTimeout time.Duration
}

// RelayHandlerOption is a functional option for configuring RelayHandler.
type RelayHandlerOption func(*RelayHandler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) RelayHandlerOption {
	return func(h *RelayHandler) {
		h.logger = logger
	}
}

// WithAskTimeout bounds every ask. When it expires the ask ends with the apology
// text instead of running into the server's write deadline.
func WithAskTimeout(d time.Duration) RelayHandlerOption {
	return func(h *RelayHandler) {
		h.askTimeout = d
	}
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(asker Asker, fetcher ImageFetcher, keys KeyStats, opts ...RelayHandlerOption) *RelayHandler {
	h := &RelayHandler{
		asker:   asker,
		fetcher: fetcher,
		keys:    keys,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register mounts every route on r.
func (h *RelayHandler) Register(r gin.IRouter) {
	r.POST("/v1/ask", h.HandleAsk)
	r.POST("/v1/images", h.HandleFetchImage)
	r.POST("/v1/chat/completions", h.HandleChatCompletion)
	r.GET("/health", h.HandleHealth)

	// Also support without /v1 prefix for compatibility
	r.POST("/chat/completions", h.HandleChatCompletion)
}

// HandleAsk handles POST /v1/ask.
// Provider failures never produce an error status; the result kind tells them apart.
func (h *RelayHandler) HandleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	opts := h.asker.Defaults()
	if req.RetryAttempts != nil {
		if *req.RetryAttempts < 1 || *req.RetryAttempts > MaxRetryAttempts {
			h.sendError(c, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("retry_attempts must be between 1 and %d", MaxRetryAttempts))
			return
		}
		opts.Attempts = *req.RetryAttempts
	}
	if req.DelaySeconds != nil {
		if *req.DelaySeconds < 0 || *req.DelaySeconds > MaxDelaySeconds {
			h.sendError(c, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("delay_seconds must be between 0 and %d", MaxDelaySeconds))
			return
		}
		opts.Delay = time.Duration(*req.DelaySeconds * float64(time.Second))
	}

	result := h.ask(c, req.Messages, req.IsImage, opts)
	c.Set(ctxResultKind, string(result.Kind))

	c.JSON(http.StatusOK, AskResponse{Text: result.Text, Kind: result.Kind})
}

// HandleFetchImage handles POST /v1/images.
func (h *RelayHandler) HandleFetchImage(c *gin.Context) {
	var req FetchImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}
	if !isHTTPURL(req.URL) {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", "url must be an absolute http or https URL")
		return
	}

	uid, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Warn("image fetch failed",
			slog.String("url", req.URL),
			slog.String("error", err.Error()),
		)

		var statusErr *imagestore.StatusError
		if errors.As(err, &statusErr) {
			h.sendError(c, http.StatusBadGateway, "upstream_error", statusErr.Error())
			return
		}
		h.sendError(c, http.StatusBadGateway, "upstream_error", "Image could not be downloaded")
		return
	}

	c.Set(ctxImageUID, uid)
	c.JSON(http.StatusCreated, FetchImageResponse{UID: uid, Marker: domain.FormatImageUID(uid)})
}

// HandleChatCompletion handles POST /v1/chat/completions.
// It runs the text branch and wraps the reply in an OpenAI-compatible response.
func (h *RelayHandler) HandleChatCompletion(c *gin.Context) {
	var req adapter.OpenAIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	messages := make([]domain.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = domain.Message{Role: domain.Role(m.Role), Content: m.Content}
	}
	if err := validateMessages(messages); err != nil {
		h.sendError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	result := h.ask(c, messages, false, h.asker.Defaults())
	c.Set(ctxResultKind, string(result.Kind))

	finishReason := "stop"
	if !result.OK() {
		finishReason = "error"
	}

	c.JSON(http.StatusOK, adapter.OpenAIResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []adapter.OpenAIChoice{
			{
				Index:        0,
				Message:      adapter.OpenAIMessage{Role: string(domain.RoleAssistant), Content: result.Text},
				FinishReason: finishReason,
			},
		},
	})
}

func (h *RelayHandler) ask(c *gin.Context, messages []domain.Message, isImage bool, opts responder.Options) domain.Result {
	ctx := c.Request.Context()
	if h.askTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.askTimeout)
		defer cancel()
	}
	return h.asker.Ask(ctx, messages, isImage, opts)
}

// HandleHealth handles GET /health.
func (h *RelayHandler) HandleHealth(c *gin.Context) {
	active := h.keys.ActiveCount()

	status := "healthy"
	if active == 0 {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"active_keys": active,
		"parked_keys": h.keys.ParkedCount(),
		"total_keys":  h.keys.TotalCount(),
	})
}

// sendError sends an error response in OpenAI-compatible format.
func (h *RelayHandler) sendError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
			"param":   nil,
			"code":    nil,
		},
	})
}

var errNoMessages = errors.New("messages array is required")

func validateMessages(messages []domain.Message) error {
	if len(messages) == 0 {
		return errNoMessages
	}
	for _, m := range messages {
		if !m.Role.IsValid() {
			return errors.New("unknown message role: " + string(m.Role))
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
