package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIBaseURL is the default OpenAI API endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	openAIName = "openai"
)

// OpenAIAdapter is the secondary provider. The relay only uses it for the
// one-shot fallback chat completion.
type OpenAIAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIAdapterOption is a functional option for configuring OpenAIAdapter.
type OpenAIAdapterOption func(*OpenAIAdapter)

// WithOpenAIBaseURL sets a custom base URL, e.g. for an OpenAI-compatible gateway.
func WithOpenAIBaseURL(url string) OpenAIAdapterOption {
	return func(o *OpenAIAdapter) {
		o.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIAdapterOption {
	return func(o *OpenAIAdapter) {
		o.httpClient = client
	}
}

// WithOpenAITimeout sets the HTTP client timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIAdapterOption {
	return func(o *OpenAIAdapter) {
		if timeout > 0 {
			o.httpClient.Timeout = timeout
		}
	}
}

// NewOpenAIAdapter creates a new OpenAIAdapter with the given API key.
// An empty key is accepted; the provider rejects the call later.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	o := &OpenAIAdapter{
		apiKey:  apiKey,
		baseURL: DefaultOpenAIBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Name returns the provider identifier.
func (o *OpenAIAdapter) Name() string {
	return openAIName
}

// ChatCompletion posts the request to /chat/completions as is.
func (o *OpenAIAdapter) ChatCompletion(ctx context.Context, req OpenAIRequest) (OpenAIResponse, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	var resp OpenAIResponse
	err := postJSON(ctx, o.httpClient, openAIName, o.baseURL+"/chat/completions", header, req, &resp, extractOpenAIError)
	if err != nil {
		return OpenAIResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return OpenAIResponse{}, fmt.Errorf("openai chat: %w", ErrEmptyResponse)
	}
	return resp, nil
}

func extractOpenAIError(body []byte) string {
	var openAIErr OpenAIError
	if err := json.Unmarshal(body, &openAIErr); err == nil {
		return openAIErr.Error.Message
	}
	return ""
}
