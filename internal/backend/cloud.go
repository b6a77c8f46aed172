package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// completionProvider is the minimal completion contract the cloud chain
// needs from an SDK-backed model.
type completionProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// cloudChain runs the three-agent analysis: a diagnosis draft, a critical
// review of that draft, and a refinement pass that merges both into the
// final JSON triage output.
type cloudChain struct {
	provider    completionProvider
	limiter     *rate.Limiter
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

func newCloudChain(cfg CloudConfig) (CloudService, error) {
	provider, err := newCloudProvider(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &cloudChain{
		provider:    provider,
		limiter:     limiter,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// newCloudProvider dispatches to the appropriate SDK implementation.
func newCloudProvider(providerName, model string) (completionProvider, error) {
	switch strings.ToLower(providerName) {
	case "google", "":
		return newGoogleProvider(model)
	case "anthropic":
		return newAnthropicProvider(model)
	default:
		return nil, fmt.Errorf("backend: unknown cloud provider %q", providerName)
	}
}

func (c *cloudChain) complete(ctx context.Context, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classify(err)
		}
	}
	out, err := c.provider.Complete(ctx, system, user, c.maxTokens, c.temperature)
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

// Analyze runs the full chain. All three steps share one deadline; a failure
// at any step fails the whole call, since a partial chain has no usable
// final output.
func (c *cloudChain) Analyze(ctx context.Context, symptoms string) (CloudResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	draft, err := c.complete(ctx, triageSystemPrompt, diagnosisPrompt(symptoms))
	if err != nil {
		return CloudResult{}, fmt.Errorf("cloud diagnosis: %w", err)
	}

	critique, err := c.complete(ctx, triageSystemPrompt, criticPrompt(draft))
	if err != nil {
		return CloudResult{}, fmt.Errorf("cloud critique: %w", err)
	}

	final, err := c.complete(ctx, triageSystemPrompt, refinementPrompt(draft, critique))
	if err != nil {
		return CloudResult{}, fmt.Errorf("cloud refinement: %w", err)
	}

	return CloudResult{
		Symptoms:        symptoms,
		DraftDiagnosis:  draft,
		Critique:        critique,
		FinalOutputText: final,
		ElapsedMs:       time.Since(start).Milliseconds(),
	}, nil
}
