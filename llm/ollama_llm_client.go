package llm

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
)

type OllamaLLMClient struct {
	cli chatAPI
}

// ProvideOllamaClient builds a client from OLLAMA_HOST (default http://127.0.0.1:11434).
func ProvideOllamaClient() (LLMClient, error) {
	ollamaClient, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &OllamaLLMClient{cli: ollamaClient}, nil
}

func (c *OllamaLLMClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	settings := applyOptions(LLMSettings{
		model:       "llama3.2",
		temperature: 0.7,
		maxTokens:   4096,
	}, opts)

	ollamaMessages := make([]api.Message, 0, len(messages)+1)
	if settings.system != "" {
		ollamaMessages = append(ollamaMessages, api.Message{Role: "system", Content: settings.system})
	}
	for _, msg := range messages {
		ollamaMessages = append(ollamaMessages, api.Message{Role: msg.Role, Content: msg.Content})
	}

	req := &api.ChatRequest{
		Model:    settings.model,
		Messages: ollamaMessages,
		Options: map[string]interface{}{
			"temperature": settings.temperature,
			"num_predict": settings.maxTokens,
		},
		Stream: &settings.stream,
	}

	return c.cli.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return callback(resp.Message.Content)
	})
}

// chatAPI is the part of *api.Client used here.
type chatAPI interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}
