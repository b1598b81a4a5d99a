package domain

// ProviderType identifies a generative-AI backend.
type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderOpenAI ProviderType = "openai"
)

// Provider describes how to reach one backend.
type Provider struct {
	// Type selects the adapter. The primary must be google (it also serves vision).
	Type ProviderType `json:"type" mapstructure:"type"`

	// BaseURL is the API root, without a trailing slash.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey may hold several comma-separated keys for the primary provider.
	APIKey string `json:"-" mapstructure:"api_key"`

	// ChatModel is used for text requests.
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// VisionModel is used for image-describe requests. Only the primary needs one.
	VisionModel string `json:"vision_model" mapstructure:"vision_model"`

	// TimeoutSeconds bounds a single provider call. Zero keeps the adapter default.
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// KeyCooldownSeconds parks a failing key before it is used again.
	KeyCooldownSeconds int `json:"key_cooldown_seconds" mapstructure:"key_cooldown_seconds"`
}

// IsValid reports whether t is a supported provider type.
func (t ProviderType) IsValid() bool {
	return t == ProviderGoogle || t == ProviderOpenAI
}
