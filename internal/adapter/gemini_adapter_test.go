package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// newGeminiServer answers generateContent calls with the given status and body
// and records the last decoded request.
func newGeminiServer(t *testing.T, status int, body any, got *GeminiRequest, path *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != nil {
			*path = r.URL.Path + "?" + r.URL.RawQuery
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func geminiTextResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     3,
			"candidatesTokenCount": 4,
			"totalTokenCount":      7,
		},
	}
}

func TestGeminiAdapter_mapToGeminiRequest(t *testing.T) {
	adapter := NewGeminiAdapter("test-api-key")

	tests := []struct {
		name     string
		input    OpenAIRequest
		validate func(*testing.T, GeminiRequest)
	}{
		{
			name: "single user turn",
			input: OpenAIRequest{
				Messages: []OpenAIMessage{{Role: "user", Content: "Hello, world!"}},
			},
			validate: func(t *testing.T, req GeminiRequest) {
				if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
					t.Fatalf("Contents = %+v, want one user turn", req.Contents)
				}
				if req.Contents[0].Parts[0].Text != "Hello, world!" {
					t.Errorf("Parts[0].Text = %s, want 'Hello, world!'", req.Contents[0].Parts[0].Text)
				}
				if req.GenerationConfig != nil {
					t.Errorf("GenerationConfig = %+v, want nil", req.GenerationConfig)
				}
			},
		},
		{
			name: "assistant role maps to model",
			input: OpenAIRequest{
				Messages: []OpenAIMessage{
					{Role: "user", Content: "Hi"},
					{Role: "assistant", Content: "Hello!"},
				},
			},
			validate: func(t *testing.T, req GeminiRequest) {
				if req.Contents[1].Role != "model" {
					t.Errorf("Contents[1].Role = %s, want model", req.Contents[1].Role)
				}
			},
		},
		{
			name: "system message becomes systemInstruction",
			input: OpenAIRequest{
				Messages: []OpenAIMessage{
					{Role: "system", Content: "Be brief."},
					{Role: "user", Content: "Hi"},
				},
			},
			validate: func(t *testing.T, req GeminiRequest) {
				if len(req.Contents) != 1 {
					t.Errorf("len(Contents) = %d, want 1", len(req.Contents))
				}
				if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "Be brief." {
					t.Errorf("SystemInstruction = %+v, want 'Be brief.'", req.SystemInstruction)
				}
			},
		},
		{
			name: "generation config mapping",
			input: OpenAIRequest{
				Messages:    []OpenAIMessage{{Role: "user", Content: "test"}},
				Temperature: ptrFloat(0.8),
				MaxTokens:   ptrInt(100),
				Stop:        []string{"END"},
			},
			validate: func(t *testing.T, req GeminiRequest) {
				cfg := req.GenerationConfig
				if cfg == nil {
					t.Fatal("GenerationConfig is nil")
				}
				if cfg.Temperature == nil || *cfg.Temperature != 0.8 {
					t.Error("Temperature not mapped correctly")
				}
				if cfg.MaxOutputTokens == nil || *cfg.MaxOutputTokens != 100 {
					t.Error("MaxOutputTokens not mapped correctly")
				}
				if !reflect.DeepEqual(cfg.StopSequences, []string{"END"}) {
					t.Error("StopSequences not mapped correctly")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, adapter.mapToGeminiRequest(tt.input))
		})
	}
}

func TestGeminiAdapter_mapModelName(t *testing.T) {
	adapter := NewGeminiAdapter("test-api-key")

	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-pro", "gemini-1.5-pro"},
		{"gemini-pro-vision", "gemini-1.5-flash"},
		{"gpt-3.5-turbo", "gemini-1.5-flash"},
		{"", "gemini-1.5-flash"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := adapter.mapModelName(tt.input); got != tt.expected {
				t.Errorf("mapModelName(%s) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGeminiAdapter_mapFinishReason(t *testing.T) {
	adapter := NewGeminiAdapter("test-api-key")

	tests := map[string]string{
		"STOP":       "stop",
		"MAX_TOKENS": "length",
		"SAFETY":     "content_filter",
		"RECITATION": "content_filter",
		"UNKNOWN":    "stop",
	}

	for input, expected := range tests {
		if got := adapter.mapFinishReason(input); got != expected {
			t.Errorf("mapFinishReason(%s) = %s, want %s", input, got, expected)
		}
	}
}

func TestGeminiAdapter_ChatCompletion(t *testing.T) {
	var got GeminiRequest
	var path string
	srv := newGeminiServer(t, http.StatusOK, geminiTextResponse("Hello from Gemini!"), &got, &path)

	adapter := NewGeminiAdapter("AIza-test", WithBaseURL(srv.URL+"/"))
	resp, err := adapter.ChatCompletion(context.Background(), OpenAIRequest{
		Model:    "gemini-pro",
		Messages: []OpenAIMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if path != "/models/gemini-1.5-pro:generateContent?key=AIza-test" {
		t.Errorf("request path = %s", path)
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("sent contents = %+v", got.Contents)
	}
	if resp.Text() != "Hello from Gemini!" {
		t.Errorf("Text() = %q, want 'Hello from Gemini!'", resp.Text())
	}
	if resp.Model != "gemini-pro" || resp.Usage.TotalTokens != 7 {
		t.Errorf("Model = %s, TotalTokens = %d", resp.Model, resp.Usage.TotalTokens)
	}
}

func TestGeminiAdapter_ChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		retryable bool
		apiError  bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      map[string]any{"error": map[string]any{"code": 429, "message": "Resource has been exhausted"}},
			retryable: true,
			apiError:  true,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      map[string]any{"error": map[string]any{"code": 500, "message": "Internal"}},
			retryable: true,
			apiError:  true,
		},
		{
			name:     "bad key",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error": map[string]any{"code": 400, "message": "API key not valid"}},
			apiError: true,
		},
		{
			name:   "no candidates",
			status: http.StatusOK,
			body:   map[string]any{"candidates": []any{}},
		},
		{
			name:   "blocked candidate",
			status: http.StatusOK,
			body:   map[string]any{"candidates": []any{map[string]any{"finishReason": "SAFETY"}}},
		},
		{
			name:   "empty text part",
			status: http.StatusOK,
			body:   geminiTextResponse(""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGeminiServer(t, tt.status, tt.body, nil, nil)
			adapter := NewGeminiAdapter("k", WithBaseURL(srv.URL))

			_, err := adapter.ChatCompletion(context.Background(), OpenAIRequest{
				Messages: []OpenAIMessage{{Role: "user", Content: "hi"}},
			})
			if err == nil {
				t.Fatal("ChatCompletion() error = nil, want error")
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) != tt.apiError {
				t.Errorf("errors.As(*APIError) = %v, want %v (err: %v)", !tt.apiError, tt.apiError, err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
			if !tt.apiError && !errors.Is(err, ErrEmptyResponse) {
				t.Errorf("error = %v, want ErrEmptyResponse", err)
			}
		})
	}
}

func TestGeminiAdapter_DescribeImage(t *testing.T) {
	var got GeminiRequest
	var path string
	srv := newGeminiServer(t, http.StatusOK, geminiTextResponse("A cat on a sofa."), &got, &path)

	image := []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F'}
	adapter := NewGeminiAdapter("k", WithBaseURL(srv.URL))
	text, err := adapter.DescribeImage(context.Background(), VisionRequest{
		Model:    "gemini-pro-vision",
		MimeType: "image/jpeg",
		Image:    image,
	})
	if err != nil {
		t.Fatalf("DescribeImage() error = %v", err)
	}
	if text != "A cat on a sofa." {
		t.Errorf("DescribeImage() = %q", text)
	}
	if !strings.HasPrefix(path, "/models/gemini-1.5-flash:generateContent") {
		t.Errorf("request path = %s", path)
	}
	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 1 {
		t.Fatalf("sent contents = %+v, want a single image part", got.Contents)
	}
	inline := got.Contents[0].Parts[0].InlineData
	if inline == nil || inline.MimeType != "image/jpeg" || !reflect.DeepEqual(inline.Data, image) {
		t.Errorf("inline data = %+v", inline)
	}
}

func TestGeminiAdapter_DescribeImage_EmptyCandidate(t *testing.T) {
	srv := newGeminiServer(t, http.StatusOK, geminiTextResponse(""), nil, nil)
	adapter := NewGeminiAdapter("k", WithBaseURL(srv.URL))

	_, err := adapter.DescribeImage(context.Background(), VisionRequest{MimeType: "image/png", Image: []byte{1}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("DescribeImage() error = %v, want ErrEmptyResponse", err)
	}
}

func TestGeminiAdapter_Name(t *testing.T) {
	if name := NewGeminiAdapter("k").Name(); name != "gemini" {
		t.Errorf("Name() = %s, want gemini", name)
	}
}

func ptrFloat(f float64) *float64 {
	return &f
}

func ptrInt(i int) *int {
	return &i
}
