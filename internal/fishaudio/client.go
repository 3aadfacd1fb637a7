// Package fishaudio is a client for the Fish Audio speech API
// (text-to-speech, speech-to-text, voice models and account credit).
package fishaudio

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.fish.audio"

// DefaultModel is the synthesis backend used when none is configured.
const DefaultModel = "speech-1.6"

// Client calls the Fish Audio HTTP API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the Fish Audio client.
type Config struct {
	APIKey     string
	BaseURL    string       // Override for tests; defaults to the public API
	Model      string       // Synthesis backend, e.g. "speech-1.6"
	HTTPClient *http.Client // Optional shared client with connection pooling
}

// NewClient creates a new Fish Audio client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
}

// Model returns the configured synthesis backend.
func (c *Client) Model() string { return c.model }

// apiError drains up to 4KB of an error response body into the error message.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("fish audio API error: %s - %s", resp.Status, string(body))
}
