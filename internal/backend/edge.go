package backend

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// defaultEdgeTimeout bounds one edge inference call. A call that exceeds it
// is treated as failed; in-flight network activity is not reclaimed.
const defaultEdgeTimeout = 30 * time.Second

// openaiCompatEdge talks to a local inference server (llama.cpp, Ollama, or
// anything else speaking the OpenAI chat completions API).
type openaiCompatEdge struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

func newOpenAICompatEdge(cfg EdgeConfig) (EdgeEngine, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: edge base URL not configured")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEdgeTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	client := openai.NewClient(option.WithBaseURL(cfg.BaseURL), option.WithAPIKey(apiKey))
	return &openaiCompatEdge{
		client:      client,
		model:       cfg.Model,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (e *openaiCompatEdge) Infer(ctx context.Context, prompt string) (EdgeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(e.model),
		MaxTokens:   openai.Int(int64(e.maxTokens)),
		Temperature: openai.Float(e.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return EdgeResult{}, fmt.Errorf("edge inference: %w", classify(err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return EdgeResult{}, fmt.Errorf("edge inference: %w: response contained no content", ErrUnavailable)
	}
	return EdgeResult{
		ResponseText:    resp.Choices[0].Message.Content,
		TokensGenerated: resp.Usage.CompletionTokens,
		ElapsedMs:       elapsed,
	}, nil
}
