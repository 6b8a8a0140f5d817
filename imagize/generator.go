// Package imagize turns a passage of prose into a short visual scene
// description suitable as an image-generation prompt.
package imagize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nsa-yoda/ReplyXL/bootUtils"
	"github.com/nsa-yoda/ReplyXL/config"
	"github.com/nsa-yoda/ReplyXL/llm"
)

// MaxInputLength bounds the passage size in characters.
const MaxInputLength = 20000

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrGenerationFailed = errors.New("generation failed")
)

type Result struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type Generator interface {
	Generate(ctx context.Context, text string) (Result, error)
}

// Streamer is a Generator that can emit the prompt while it is produced.
type Streamer interface {
	Generator
	Stream(ctx context.Context, text string, onChunk func(string) error) (Result, error)
}

const systemPrompt = `You read a passage of prose and describe the single most striking scene in it ` +
	`as one image-generation prompt. Name the subject, setting, lighting, time of day and mood. ` +
	`Answer with the prompt only, in at most 60 words.`

// LLMGenerator implements Generator on top of an llm.LLMClient.
type LLMGenerator struct {
	client      llm.LLMClient
	model       string
	maxTokens   int
	temperature float64
	retries     int
	baseDelay   time.Duration
}

type Option func(*LLMGenerator)

func WithModel(model string) Option {
	return func(g *LLMGenerator) { g.model = model }
}

func WithMaxTokens(n int) Option {
	return func(g *LLMGenerator) { g.maxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(g *LLMGenerator) { g.temperature = t }
}

// WithRetries sets the attempt budget and the first backoff delay.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(g *LLMGenerator) {
		g.retries = attempts
		g.baseDelay = baseDelay
	}
}

func NewLLMGenerator(client llm.LLMClient, opts ...Option) *LLMGenerator {
	g := &LLMGenerator{
		client:      client,
		maxTokens:   512,
		temperature: 0.7,
		retries:     3,
		baseDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *LLMGenerator) Generate(ctx context.Context, text string) (Result, error) {
	return g.generate(ctx, text, nil)
}

// Stream is Generate that also hands every chunk to onChunk as the backend
// produces it. Once a chunk has been delivered the call is not retried.
func (g *LLMGenerator) Stream(ctx context.Context, text string, onChunk func(string) error) (Result, error) {
	return g.generate(ctx, text, onChunk)
}

func (g *LLMGenerator) generate(ctx context.Context, text string, onChunk func(string) error) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	if !utf8.ValidString(text) {
		return Result{}, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxInputLength {
		return Result{}, fmt.Errorf("%w: text has %d characters, limit is %d", ErrInvalidInput, n, MaxInputLength)
	}

	opts := []llm.LLMOption{
		llm.WithSystemPrompt(systemPrompt),
		llm.WithMaxTokens(g.maxTokens),
		llm.WithTemperature(g.temperature),
		llm.WithStreaming(onChunk != nil),
	}
	if g.model != "" {
		opts = append(opts, llm.WithLLMModel(g.model))
	}

	messages := []llm.Message{{Role: "user", Content: text}}

	var sb strings.Builder
	delivered := false
	err := bootUtils.RetryWithExponentialBackoff(ctx, g.retries, g.baseDelay, func() error {
		sb.Reset()
		err := g.client.GenerateInference(ctx, messages, func(chunk string) error {
			sb.WriteString(chunk)
			if onChunk == nil {
				return nil
			}
			delivered = true
			return onChunk(chunk)
		}, opts...)
		if err != nil && (delivered || !retryable(err)) {
			return bootUtils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	prompt := strings.TrimSpace(sb.String())
	if prompt == "" {
		return Result{}, fmt.Errorf("%w: backend returned no text", ErrGenerationFailed)
	}

	return Result{Prompt: prompt, Model: g.model}, nil
}

// Unavailable is bound when the backend could not be built at startup.
// Every call fails with ErrGenerationFailed.
type Unavailable struct {
	Err error
}

func (u Unavailable) Generate(context.Context, string) (Result, error) {
	return Result{}, fmt.Errorf("%w: backend unavailable: %w", ErrGenerationFailed, u.Err)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// Provide builds the Generator named by settings.Generator. Backend
// credentials come from the environment.
func Provide(settings config.Settings) (Generator, error) {
	var (
		client llm.LLMClient
		err    error
	)

	switch settings.Generator {
	case config.GeneratorAnthropic:
		client, err = llm.ProvideAnthropicClient()
	case config.GeneratorOllama:
		client, err = llm.ProvideOllamaClient()
	default:
		err = fmt.Errorf("unknown generator %q", settings.Generator)
	}
	if err != nil {
		return nil, err
	}

	return NewLLMGenerator(client,
		WithModel(settings.Model),
		WithMaxTokens(settings.MaxTokens),
		WithTemperature(settings.Temperature),
		WithRetries(settings.GenerationRetries, 500*time.Millisecond),
	), nil
}
