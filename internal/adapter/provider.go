// Package adapter provides implementations for external AI provider integrations.
// It uses the Adapter pattern to abstract provider-specific APIs behind a common interface.
package adapter

import (
	"context"
)

// ChatProvider is a backend that can answer an OpenAI-shaped chat completion request.
// Both the primary (Gemini) and the secondary (OpenAI) adapters satisfy it.
type ChatProvider interface {
	// ChatCompletion sends the conversation and returns the provider's reply.
	ChatCompletion(ctx context.Context, req OpenAIRequest) (OpenAIResponse, error)

	// Name returns the provider's identifier string.
	Name() string
}

// VisionProvider is a backend that can describe an image.
type VisionProvider interface {
	// DescribeImage returns a textual description of the image.
	DescribeImage(ctx context.Context, req VisionRequest) (string, error)
}

// PrimaryProvider is what the relay needs from the primary backend.
type PrimaryProvider interface {
	ChatProvider
	VisionProvider
}

// VisionRequest carries raw image bytes to a vision-capable model.
type VisionRequest struct {
	// Model is the vision model name.
	Model string

	// MimeType of Image, e.g. "image/jpeg".
	MimeType string

	// Image holds the raw bytes.
	Image []byte

	// Prompt is optional text sent alongside the image.
	Prompt string
}
