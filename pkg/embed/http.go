package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig configures the live OpenAI-compatible provider.
type HTTPConfig struct {
	// BaseURL of the API, e.g. "https://api.openai.com/v1" or
	// "http://localhost:11434/v1" for Ollama.
	BaseURL string
	// APIKey sent as a Bearer token. Use a dummy value for local servers.
	APIKey string
	// EmbedModel is the embedding model name, e.g. "bge-m3".
	EmbedModel string
	// GenModel is the completion model name.
	GenModel string
	// Dimensions is the expected embedding length.
	Dimensions int
	// Timeout per request. Zero means DefaultHTTPTimeout.
	Timeout time.Duration
}

// DefaultHTTPTimeout bounds a single provider round trip.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPProvider is the live adapter for OpenAI-compatible backends
// (OpenAI, Ollama /v1, llama.cpp server).
type HTTPProvider struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPProvider creates a live provider from config.
func NewHTTPProvider(config HTTPConfig) (*HTTPProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: no base URL configured", ErrProviderUnavailable)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed requests an embedding from the backend.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	var resp embeddingResponse
	err := p.post(ctx, "/embeddings", embeddingRequest{
		Model: p.config.EmbedModel,
		Input: []string{text},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.Error.Message)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrProviderUnavailable)
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding length.
func (p *HTTPProvider) Dimensions() int {
	return p.config.Dimensions
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate requests a completion from the backend.
func (p *HTTPProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if prompt == "" {
		return "", ErrEmptyInput
	}

	var resp completionResponse
	err := p.post(ctx, "/completions", completionRequest{
		Model:       p.config.GenModel,
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", ErrProviderUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, truncate(data, 200))
	}
	return json.Unmarshal(data, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Verify HTTPProvider implements Provider
var _ Provider = (*HTTPProvider)(nil)
