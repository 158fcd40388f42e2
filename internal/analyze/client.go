package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/service"
)

const defaultEndpoint = "https://api.anthropic.com/v1/messages"

// ClientConfig holds configuration for the HTTP scoring client.
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// httpScorer implements service.Scorer against a messages-style LLM API.
type httpScorer struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// NewHTTPScorer creates the default scoring collaborator client.
func NewHTTPScorer(cfg ClientConfig) (service.Scorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: scorer API key", common.ErrMissingConfig)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	scorerModel := cfg.Model
	if scorerModel == "" {
		scorerModel = "claude-3-sonnet-20240229"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	return &httpScorer{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		model:       scorerModel,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Score sends a scoring request and returns the raw response text. Rate
// limits and 5xx responses come back retryable; auth rejections and other
// 4xx responses do not.
func (c *httpScorer) Score(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      "You are a procurement fit assessor. Respond only with the JSON object in the exact shape requested.",
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", common.ErrRateLimit
	case resp.StatusCode >= 500:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("scorer API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("scorer API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var response messagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response envelope: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	return response.Content[0].Text, nil
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"content"`
}
