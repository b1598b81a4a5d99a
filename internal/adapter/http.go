package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the default HTTP client timeout for provider calls.
const DefaultTimeout = 30 * time.Second

// errorExtractor pulls a human-readable message out of a provider error body.
type errorExtractor func(body []byte) string

// postJSON marshals payload, POSTs it and decodes a 200 answer into out.
// Any other status becomes an *APIError for the named provider.
func postJSON(
	ctx context.Context,
	client *http.Client,
	provider, url string,
	header http.Header,
	payload, out any,
	extract errorExtractor,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, values := range header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := extract(respBody)
		if message == "" {
			message = string(respBody)
		}
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", provider, err)
	}
	return nil
}
