package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultGeminiBaseURL is the default Gemini API endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiName = "gemini"
)

// GeminiAdapter is the primary provider. It answers chat requests translated from the
// OpenAI shape and describes images sent as inline data.
type GeminiAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GeminiAdapterOption is a functional option for configuring GeminiAdapter.
type GeminiAdapterOption func(*GeminiAdapter)

// WithBaseURL sets a custom base URL for the Gemini API.
func WithBaseURL(url string) GeminiAdapterOption {
	return func(g *GeminiAdapter) {
		g.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GeminiAdapterOption {
	return func(g *GeminiAdapter) {
		g.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) GeminiAdapterOption {
	return func(g *GeminiAdapter) {
		if timeout > 0 {
			g.httpClient.Timeout = timeout
		}
	}
}

// NewGeminiAdapter creates a new GeminiAdapter with the given API key.
func NewGeminiAdapter(apiKey string, opts ...GeminiAdapterOption) *GeminiAdapter {
	g := &GeminiAdapter{
		apiKey:  apiKey,
		baseURL: DefaultGeminiBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Name returns the provider identifier.
func (g *GeminiAdapter) Name() string {
	return geminiName
}

// ChatCompletion sends the conversation as a fresh Gemini chat and maps the answer back.
func (g *GeminiAdapter) ChatCompletion(ctx context.Context, req OpenAIRequest) (OpenAIResponse, error) {
	var geminiResp GeminiResponse
	if err := g.generate(ctx, req.Model, g.mapToGeminiRequest(req), &geminiResp); err != nil {
		return OpenAIResponse{}, err
	}
	resp := g.mapToOpenAIResponse(geminiResp, req.Model)
	if resp.Text() == "" {
		// Blocked candidates (finishReason SAFETY, RECITATION) carry no text parts.
		return OpenAIResponse{}, fmt.Errorf("gemini chat: %w", ErrEmptyResponse)
	}
	return resp, nil
}

// DescribeImage sends the image as inline data and returns the concatenated text parts
// of the first candidate.
func (g *GeminiAdapter) DescribeImage(ctx context.Context, req VisionRequest) (string, error) {
	parts := []GeminiPart{{
		InlineData: &GeminiInlineData{MimeType: req.MimeType, Data: req.Image},
	}}
	if req.Prompt != "" {
		parts = append(parts, GeminiPart{Text: req.Prompt})
	}
	geminiReq := GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: parts}},
	}

	var geminiResp GeminiResponse
	if err := g.generate(ctx, req.Model, geminiReq, &geminiResp); err != nil {
		return "", err
	}
	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini vision: %w", ErrEmptyResponse)
	}
	text := candidateText(geminiResp.Candidates[0])
	if text == "" {
		return "", fmt.Errorf("gemini vision: %w", ErrEmptyResponse)
	}
	return text, nil
}

func (g *GeminiAdapter) generate(ctx context.Context, model string, req GeminiRequest, out *GeminiResponse) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, g.mapModelName(model), url.QueryEscape(g.apiKey))
	return postJSON(ctx, g.httpClient, geminiName, endpoint, nil, req, out, extractGeminiError)
}

func extractGeminiError(body []byte) string {
	var geminiErr GeminiErrorResponse
	if err := json.Unmarshal(body, &geminiErr); err == nil {
		return geminiErr.Error.Message
	}
	return ""
}

// mapToGeminiRequest converts an OpenAI request to Gemini format.
func (g *GeminiAdapter) mapToGeminiRequest(req OpenAIRequest) GeminiRequest {
	geminiReq := GeminiRequest{
		Contents: make([]GeminiContent, 0, len(req.Messages)),
	}

	var systemInstruction string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			// Gemini has no system turn
			systemInstruction = msg.Content
		case "user":
			geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		case "assistant":
			geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
				Role:  "model",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		}
	}

	if systemInstruction != "" {
		geminiReq.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: systemInstruction}},
		}
	}

	geminiReq.GenerationConfig = &GeminiGenerationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		TopP:            req.TopP,
		StopSequences:   req.Stop,
	}
	if geminiReq.GenerationConfig.isZero() {
		geminiReq.GenerationConfig = nil
	}

	return geminiReq
}

// mapToOpenAIResponse converts a Gemini response to OpenAI format.
func (g *GeminiAdapter) mapToOpenAIResponse(resp GeminiResponse, model string) OpenAIResponse {
	openAIResp := OpenAIResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: make([]OpenAIChoice, 0, len(resp.Candidates)),
	}

	for i, candidate := range resp.Candidates {
		openAIResp.Choices = append(openAIResp.Choices, OpenAIChoice{
			Index: i,
			Message: OpenAIMessage{
				Role:    "assistant",
				Content: candidateText(candidate),
			},
			FinishReason: g.mapFinishReason(candidate.FinishReason),
		})
	}

	if resp.UsageMetadata != nil {
		openAIResp.Usage = OpenAIUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return openAIResp
}

// candidateText joins all text parts of a candidate.
func candidateText(candidate GeminiCandidate) string {
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// mapModelName resolves legacy and OpenAI-style names to current Gemini models.
func (g *GeminiAdapter) mapModelName(model string) string {
	modelMap := map[string]string{
		"":                  "gemini-1.5-flash",
		"gpt-4":             "gemini-1.5-pro",
		"gpt-4o":            "gemini-1.5-flash",
		"gpt-3.5-turbo":     "gemini-1.5-flash",
		"gemini-pro":        "gemini-1.5-pro",
		"gemini-pro-vision": "gemini-1.5-flash",
	}

	if mapped, ok := modelMap[model]; ok {
		return mapped
	}
	return model
}

// mapFinishReason converts Gemini finish reasons to OpenAI format.
func (g *GeminiAdapter) mapFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

// ============================================================================
// Gemini API Types
// ============================================================================

// GeminiRequest represents a Gemini generateContent request.
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents a content block in Gemini format.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is either text or inline binary data.
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

// GeminiInlineData holds base64-encoded media (encoding/json encodes []byte as base64).
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// GeminiGenerationConfig contains generation parameters.
type GeminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

func (c *GeminiGenerationConfig) isZero() bool {
	return c.Temperature == nil && c.TopP == nil && c.MaxOutputTokens == nil && len(c.StopSequences) == 0
}

// GeminiResponse represents a Gemini generateContent response.
type GeminiResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// GeminiCandidate represents a single generated candidate.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// GeminiUsageMetadata contains token usage information.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GeminiErrorResponse represents an error response from Gemini API.
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
