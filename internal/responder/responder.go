// Package responder turns a conversation into a single reply. It drives the
// primary provider through a bounded retry loop and falls back once to the
// secondary provider; every path ends in text, never in an error.
package responder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hpn/hpn-ask-relay/internal/adapter"
	"github.com/hpn/hpn-ask-relay/internal/domain"
	"github.com/hpn/hpn-ask-relay/internal/imagestore"
)

const (
	// DefaultAttempts is how many times the primary provider is tried.
	DefaultAttempts = 3

	// DefaultDelay is the pause between primary attempts.
	DefaultDelay = time.Second

	DefaultChatModel     = "gemini-pro"
	DefaultVisionModel   = "gemini-pro-vision"
	DefaultFallbackModel = "gpt-3.5-turbo"
)

// Options bound the retry loop of a single Ask.
type Options struct {
	// Attempts is the number of primary attempts; the last failed one triggers the fallback.
	Attempts int

	// Delay is slept between failed primary attempts.
	Delay time.Duration
}

// DefaultOptions returns three attempts one second apart.
func DefaultOptions() Options {
	return Options{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// ImageSource looks up previously fetched images.
type ImageSource interface {
	Exists(uid string) bool
	Load(uid string) (imagestore.Image, error)
}

// PrimaryFactory builds a primary provider bound to one API key.
type PrimaryFactory func(apiKey string) adapter.PrimaryProvider

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Responder answers conversations. It is safe for concurrent use.
type Responder struct {
	keys       *domain.KeyRing
	newPrimary PrimaryFactory
	secondary  adapter.ChatProvider
	images     ImageSource
	logger     *slog.Logger
	sleep      SleepFunc
	defaults   Options

	chatModel     string
	visionModel   string
	fallbackModel string
}

// Option is a functional option for configuring Responder.
type Option func(*Responder)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithModels overrides the model names. Empty values keep the defaults.
func WithModels(chat, vision, fallback string) Option {
	return func(r *Responder) {
		if chat != "" {
			r.chatModel = chat
		}
		if vision != "" {
			r.visionModel = vision
		}
		if fallback != "" {
			r.fallbackModel = fallback
		}
	}
}

// WithDefaults sets the options used by Ask when a caller passes the zero Options.
func WithDefaults(opts Options) Option {
	return func(r *Responder) {
		r.defaults = opts
	}
}

// WithSleep replaces the delay implementation.
func WithSleep(sleep SleepFunc) Option {
	return func(r *Responder) {
		r.sleep = sleep
	}
}

// New creates a Responder. keys feeds newPrimary one API key per attempt.
func New(
	keys *domain.KeyRing,
	newPrimary PrimaryFactory,
	secondary adapter.ChatProvider,
	images ImageSource,
	opts ...Option,
) *Responder {
	r := &Responder{
		keys:          keys,
		newPrimary:    newPrimary,
		secondary:     secondary,
		images:        images,
		logger:        slog.Default(),
		sleep:         sleepContext,
		defaults:      DefaultOptions(),
		chatModel:     DefaultChatModel,
		visionModel:   DefaultVisionModel,
		fallbackModel: DefaultFallbackModel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Keys exposes the primary key ring for health reporting.
func (r *Responder) Keys() *domain.KeyRing {
	return r.keys
}

// Defaults returns the options used when Ask receives the zero Options.
func (r *Responder) Defaults() Options {
	return r.defaults
}

// Ask answers the conversation. With isImage set it describes the image whose
// marker appears first in messages; otherwise it sends the user text to the chat model.
//
// The loop runs opts.Attempts primary attempts with opts.Delay between them. When
// the last attempt fails the secondary provider gets exactly one try with the user
// text. If that fails too, the fixed apology is returned.
func (r *Responder) Ask(ctx context.Context, messages []domain.Message, isImage bool, opts Options) domain.Result {
	if opts == (Options{}) {
		opts = r.defaults
	}
	combined := domain.UserText(messages)

	for attempt := 0; attempt < opts.Attempts; attempt++ {
		result, err := r.attempt(ctx, messages, combined, isImage)
		if err == nil {
			return result
		}
		r.logger.Warn("primary provider failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", opts.Attempts),
			slog.Bool("is_image", isImage),
			slog.String("error", err.Error()),
		)

		if attempt < opts.Attempts-1 {
			if err := r.sleep(ctx, opts.Delay); err != nil {
				r.logger.Warn("retry wait aborted", slog.String("error", err.Error()))
				return domain.ExhaustedResult()
			}
			continue
		}

		if result, ok := r.fallback(ctx, combined); ok {
			return result
		}
	}

	r.logger.Error("all providers failed", slog.Int("attempts", opts.Attempts))
	return domain.ExhaustedResult()
}

// attempt performs one primary call. A nil error means the returned result is final.
func (r *Responder) attempt(ctx context.Context, messages []domain.Message, combined string, isImage bool) (domain.Result, error) {
	var img imagestore.Image
	if isImage {
		uid, ok := domain.FindImageUID(messages)
		if !ok {
			r.logger.Info("no image uid in conversation")
			return domain.NoUIDResult(), nil
		}
		if !r.images.Exists(uid) {
			r.logger.Info("image not found", slog.String("uid", uid))
			return domain.ImageNotFoundResult(), nil
		}
		var err error
		img, err = r.images.Load(uid)
		if errors.Is(err, imagestore.ErrNotFound) {
			return domain.ImageNotFoundResult(), nil
		}
		if err != nil {
			return domain.Result{}, err
		}
	}

	key, err := r.keys.Next()
	if err != nil {
		return domain.Result{}, err
	}
	primary := r.newPrimary(key)

	if isImage {
		text, err := r.describe(ctx, primary, adapter.VisionRequest{
			Model:    r.visionModel,
			MimeType: img.MimeType,
			Image:    img.Data,
		})
		if err != nil {
			r.parkIfExhausted(key, err)
			return domain.Result{}, err
		}
		r.logger.Info("image described", slog.String("uid", img.UID))
		return domain.Result{Kind: domain.ResultPrimary, Text: text + domain.FormatImageUID(img.UID)}, nil
	}

	resp, err := primary.ChatCompletion(ctx, adapter.OpenAIRequest{
		Model:    r.chatModel,
		Messages: []adapter.OpenAIMessage{{Role: string(domain.RoleUser), Content: combined}},
	})
	if err != nil {
		r.parkIfExhausted(key, err)
		return domain.Result{}, err
	}
	return domain.Result{Kind: domain.ResultPrimary, Text: resp.Text()}, nil
}

// describe runs the vision call on its own goroutine so the caller can be released
// by ctx while a slow upload or inference is still in flight.
func (r *Responder) describe(ctx context.Context, vision adapter.VisionProvider, req adapter.VisionRequest) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := vision.DescribeImage(ctx, req)
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fallback makes the single secondary call.
func (r *Responder) fallback(ctx context.Context, combined string) (domain.Result, bool) {
	r.logger.Info("falling back to secondary provider", slog.String("provider", r.secondary.Name()))
	resp, err := r.secondary.ChatCompletion(ctx, adapter.OpenAIRequest{
		Model:    r.fallbackModel,
		Messages: []adapter.OpenAIMessage{{Role: string(domain.RoleUser), Content: combined}},
	})
	if err != nil {
		r.logger.Error("secondary provider failed",
			slog.String("provider", r.secondary.Name()),
			slog.String("error", err.Error()),
		)
		return domain.Result{}, false
	}
	return domain.Result{Kind: domain.ResultFallback, Text: resp.Text()}, true
}

func (r *Responder) parkIfExhausted(key string, err error) {
	if adapter.IsRetryable(err) {
		r.keys.Park(key)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
