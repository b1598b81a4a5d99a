package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hpn/hpn-ask-relay/internal/config"
	"github.com/hpn/hpn-ask-relay/internal/domain"
	"github.com/hpn/hpn-ask-relay/internal/responder"
)

const (
	geminiReply = `{"candidates":[{"content":{"role":"model","parts":[{"text":"from gemini"}]},"finishReason":"STOP"}]}`
	openaiReply = `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"from openai"},"finish_reason":"stop"}]}`
)

func testConfig(t *testing.T, primaryURL, secondaryURL, keys string) *config.Configuration {
	t.Helper()
	return &config.Configuration{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Primary: domain.Provider{
			Type:               domain.ProviderGoogle,
			BaseURL:            primaryURL,
			APIKey:             keys,
			ChatModel:          "gemini-pro",
			VisionModel:        "gemini-pro-vision",
			TimeoutSeconds:     5,
			KeyCooldownSeconds: 60,
		},
		Secondary: domain.Provider{
			Type:           domain.ProviderOpenAI,
			BaseURL:        secondaryURL,
			APIKey:         "sk-test",
			ChatModel:      "gpt-3.5-turbo",
			TimeoutSeconds: 5,
		},
		Retry:   config.RetryConfig{Attempts: 2, DelaySeconds: 0},
		Images:  config.ImagesConfig{Dir: t.TempDir(), Extension: ".jpg"},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_PrimaryAnswers(t *testing.T) {
	var primaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		if r.URL.Query().Get("key") != "g-key" {
			t.Errorf("key = %q, want g-key", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, geminiReply)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("secondary must not be called when the primary answers")
	}))
	defer secondary.Close()

	app, err := New(testConfig(t, primary.URL, secondary.URL, "g-key"), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := app.Responder.Ask(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}}, false, responder.Options{})

	if got.Kind != domain.ResultPrimary || got.Text != "from gemini" {
		t.Errorf("Ask() = %+v", got)
	}
	if primaryCalls.Load() != 1 {
		t.Errorf("primary calls = %d, want 1", primaryCalls.Load())
	}
}

func TestNew_FallsBackAfterConfiguredAttempts(t *testing.T) {
	var primaryCalls, secondaryCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, openaiReply)
	}))
	defer secondary.Close()

	app, err := New(testConfig(t, primary.URL, secondary.URL, "g-key-1,g-key-2"), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := app.Responder.Ask(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}}, false, responder.Options{})

	if got.Kind != domain.ResultFallback || got.Text != "from openai" {
		t.Errorf("Ask() = %+v", got)
	}
	if primaryCalls.Load() != 2 {
		t.Errorf("primary calls = %d, want 2", primaryCalls.Load())
	}
	if secondaryCalls.Load() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondaryCalls.Load())
	}
	if app.Keys.ParkedCount() != 1 {
		t.Errorf("parked keys = %d, want 1", app.Keys.ParkedCount())
	}
}

func TestNew_FetchThenDescribe(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpeg)
	}))
	defer images.Close()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte(`"mimeType":"image/jpeg"`)) {
			t.Errorf("vision request without jpeg inline data: %s", body)
		}
		io.WriteString(w, geminiReply)
	}))
	defer primary.Close()

	app, err := New(testConfig(t, primary.URL, "http://127.0.0.1:0", "g-key"), discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	uid, err := app.Fetcher.Fetch(context.Background(), images.URL+"/cat.jpg")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	got := app.Responder.Ask(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "What is this?" + domain.FormatImageUID(uid)},
	}, true, responder.Options{})

	want := "from gemini" + domain.FormatImageUID(uid)
	if got.Kind != domain.ResultPrimary || got.Text != want {
		t.Errorf("Ask() = %+v, want text %q", got, want)
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf, "my-plain-key")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer closeFn()

	logger.Debug("using my-plain-key")

	out := buf.String()
	if strings.Contains(out, "my-plain-key") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "level=DEBUG") {
		t.Errorf("expected text debug line, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewChatProvider(t *testing.T) {
	tests := []struct {
		typ      domain.ProviderType
		wantName string
		wantErr  bool
	}{
		{domain.ProviderOpenAI, "openai", false},
		{domain.ProviderGoogle, "gemini", false},
		{"azure", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			p, err := NewChatProvider(domain.Provider{Type: tt.typ, BaseURL: "http://127.0.0.1:0", APIKey: "k1, k2"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewChatProvider() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChatProvider() error = %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNew_GeminiAsSecondary(t *testing.T) {
	var secondaryKeys []string
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryKeys = append(secondaryKeys, r.URL.Query().Get("key"))
		io.WriteString(w, geminiReply)
	}))
	defer secondary.Close()

	cfg := testConfig(t, primary.URL, secondary.URL, "g-key")
	cfg.Secondary.Type = domain.ProviderGoogle
	cfg.Secondary.APIKey = "backup-key"
	app, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := app.Responder.Ask(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}}, false, responder.Options{})

	if got.Kind != domain.ResultFallback || got.Text != "from gemini" {
		t.Errorf("Ask() = %+v", got)
	}
	if len(secondaryKeys) != 1 || secondaryKeys[0] != "backup-key" {
		t.Errorf("secondary keys = %v, want [backup-key]", secondaryKeys)
	}
}

func TestNew_RejectsPrimaryWithoutVision(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0", "http://127.0.0.1:0", "k")
	cfg.Primary.Type = domain.ProviderOpenAI

	if _, err := New(cfg, discardLogger()); err == nil {
		t.Error("New() error = nil, want error for an openai primary")
	}
}
