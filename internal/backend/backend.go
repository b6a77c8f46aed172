// Package backend implements the two inference collaborators of the
// pipeline: a local edge engine reached over an OpenAI-compatible API, and a
// cloud service that runs a multi-agent diagnosis chain. Both are exposed to
// the core through narrow interfaces so the orchestrator never depends on a
// concrete transport.
package backend

import (
	"context"
	"errors"
	"time"
)

// Failure taxonomy. A timed-out call and an unreachable backend both advance
// the orchestrator to the next backend; they are distinguished only for the
// fallback reason surfaced to the caller.
var (
	// ErrTimeout marks an inference call that exceeded its deadline.
	ErrTimeout = errors.New("backend: inference deadline exceeded")
	// ErrUnavailable marks a network or service failure.
	ErrUnavailable = errors.New("backend: backend unavailable")
)

// classify wraps a transport error with the matching sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrUnavailable, err)
}

// EdgeResult is the raw outcome of one edge inference call.
type EdgeResult struct {
	ResponseText    string
	TokensGenerated int64
	ElapsedMs       int64
}

// EdgeEngine generates raw text from a fully-formed prompt within a bounded
// time, or fails with a timeout or unavailability error.
type EdgeEngine interface {
	Infer(ctx context.Context, prompt string) (EdgeResult, error)
}

// CloudResult is the outcome of the cloud diagnosis chain. FinalOutputText
// carries the JSON triage object the pipeline parses.
type CloudResult struct {
	Symptoms        string
	DraftDiagnosis  string
	Critique        string
	FinalOutputText string
	ElapsedMs       int64
}

// CloudService runs the full remote analysis chain for a symptom description.
type CloudService interface {
	Analyze(ctx context.Context, symptoms string) (CloudResult, error)
}

// EdgeConfig configures the OpenAI-compatible edge engine.
type EdgeConfig struct {
	BaseURL     string
	Model       string
	APIKey      string // most local servers accept any non-empty key
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// CloudConfig configures the cloud diagnosis chain.
type CloudConfig struct {
	Provider          string // "google" (default) or "anthropic"
	Model             string
	Timeout           time.Duration
	MaxTokens         int
	Temperature       float64
	RequestsPerMinute int // rate limit across chain steps; 0 disables
}

// NewEdgeEngine and NewCloudService are the collaborator factories. They are
// package-level variables so tests can replace them with mocks without
// modifying the call site. Tests must restore the original value; use
// t.Cleanup to do so safely.
var (
	NewEdgeEngine   func(cfg EdgeConfig) (EdgeEngine, error)    = newOpenAICompatEdge
	NewCloudService func(cfg CloudConfig) (CloudService, error) = newCloudChain
)
