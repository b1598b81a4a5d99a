// Package relay wires the configured components together. Both the HTTP server
// and the console client build their dependencies through New.
package relay

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hpn/hpn-ask-relay/internal/adapter"
	"github.com/hpn/hpn-ask-relay/internal/config"
	"github.com/hpn/hpn-ask-relay/internal/domain"
	"github.com/hpn/hpn-ask-relay/internal/imagestore"
	"github.com/hpn/hpn-ask-relay/internal/responder"
	"github.com/hpn/hpn-ask-relay/internal/security"
)

// App holds the long-lived components of the relay.
type App struct {
	Store     *imagestore.Store
	Fetcher   *imagestore.Fetcher
	Keys      *domain.KeyRing
	Responder *responder.Responder
}

// New builds the image store, fetcher, primary key ring, both providers and the responder.
func New(cfg *config.Configuration, logger *slog.Logger) (*App, error) {
	store := imagestore.NewStore(cfg.Images.Dir, imagestore.WithExtension(cfg.Images.Extension))
	if err := store.EnsureDir(); err != nil {
		return nil, fmt.Errorf("prepare image directory: %w", err)
	}

	fetcher := imagestore.NewFetcher(store,
		imagestore.WithFetchTimeout(seconds(cfg.Images.DownloadTimeoutSeconds)),
		imagestore.WithFetchLogger(logger),
	)

	keys := domain.NewKeyRing(cfg.PrimaryKeys(), seconds(cfg.Primary.KeyCooldownSeconds))
	if keys.TotalCount() == 0 {
		logger.Warn("no primary API keys configured; asks will go straight to the fallback",
			slog.String("env", config.EnvGoogleAPIKey),
		)
	}

	if cfg.Primary.Type != domain.ProviderGoogle {
		return nil, fmt.Errorf("primary provider %q has no vision endpoint", cfg.Primary.Type)
	}
	secondary, err := NewChatProvider(cfg.Secondary)
	if err != nil {
		return nil, err
	}

	resp := responder.New(keys, GeminiFactory(cfg.Primary), secondary, store,
		responder.WithLogger(logger),
		responder.WithModels(cfg.Primary.ChatModel, cfg.Primary.VisionModel, cfg.Secondary.ChatModel),
		responder.WithDefaults(responder.Options{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay(),
		}),
	)

	return &App{Store: store, Fetcher: fetcher, Keys: keys, Responder: resp}, nil
}

// NewChatProvider builds the chat adapter selected by p.Type, using the first key of p.APIKey.
func NewChatProvider(p domain.Provider) (adapter.ChatProvider, error) {
	var key string
	if keys := domain.ParseKeys(p.APIKey); len(keys) > 0 {
		key = keys[0]
	}

	switch p.Type {
	case domain.ProviderOpenAI:
		return adapter.NewOpenAIAdapter(key,
			adapter.WithOpenAIBaseURL(p.BaseURL),
			adapter.WithOpenAITimeout(config.ProviderTimeout(p)),
		), nil
	case domain.ProviderGoogle:
		return adapter.NewGeminiAdapter(key,
			adapter.WithBaseURL(p.BaseURL),
			adapter.WithTimeout(config.ProviderTimeout(p)),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}

// GeminiFactory returns a factory producing Gemini adapters that share one HTTP client.
func GeminiFactory(p domain.Provider) responder.PrimaryFactory {
	client := &http.Client{Timeout: config.ProviderTimeout(p)}
	return func(apiKey string) adapter.PrimaryProvider {
		return adapter.NewGeminiAdapter(apiKey,
			adapter.WithBaseURL(p.BaseURL),
			adapter.WithHTTPClient(client),
		)
	}
}

// NewLogger builds the slog logger described by cfg. Output goes to OutputPath when set,
// otherwise to stdout. Every secret is masked. The returned func closes the log file.
func NewLogger(cfg config.LoggingConfig, stdout io.Writer, secrets ...string) (*slog.Logger, func(), error) {
	out := stdout
	closeFn := func() {}
	if cfg.OutputPath != "" {
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		inner = slog.NewTextHandler(out, opts)
	} else {
		inner = slog.NewJSONHandler(out, opts)
	}

	return slog.New(security.NewRedactedHandler(inner, secrets...)), closeFn, nil
}

// ParseLevel maps a config level name to slog; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
