package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/nsa-yoda/ReplyXL/async"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

type AnthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

type AnthropicResponse struct {
	Content []Content `json:"content"`
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Role    string    `json:"role"`
	Type    string    `json:"type"`
}

type Content struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
	url        string
}

func ProvideAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable is not set")
	}

	return &AnthropicClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		url:        anthropicURL,
	}, nil
}

// GenerateInference sends one non-streaming request and hands the joined
// text blocks to callback.
func (c *AnthropicClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	settings := applyOptions(LLMSettings{
		model:       "claude-3-5-haiku-latest",
		temperature: 0.7,
		maxTokens:   1024,
	}, opts)

	request := &AnthropicRequest{
		Model:       settings.model,
		MaxTokens:   settings.maxTokens,
		Messages:    messages,
		System:      settings.system,
		Temperature: settings.temperature,
	}

	text, err := async.AwaitCtx(ctx, c.send(ctx, request))
	if err != nil {
		return err
	}
	return callback(text)
}

func (c *AnthropicClient) send(ctx context.Context, request *AnthropicRequest) <-chan async.Result[string] {
	return async.Go(func() (string, error) {
		jsonData, err := json.Marshal(request)
		if err != nil {
			return "", fmt.Errorf("error marshaling request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
		if err != nil {
			return "", fmt.Errorf("error creating request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("error making request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("error reading response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var response AnthropicResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return "", fmt.Errorf("error unmarshaling response: %w", err)
		}

		var sb strings.Builder
		for _, content := range response.Content {
			if content.Type == "text" {
				sb.WriteString(content.Text)
			}
		}
		if sb.Len() == 0 {
			return "", errors.New("no text content in response")
		}

		return sb.String(), nil
	})
}
