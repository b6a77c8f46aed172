// Package pipeline orchestrates the hybrid edge/cloud triage flow: scrub,
// retrieve, generate, parse, calibrate, score, and decide which backend's
// answer to trust.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aegis-clinical/triage/internal/backend"
	"github.com/aegis-clinical/triage/internal/calibrate"
	"github.com/aegis-clinical/triage/internal/casestore"
	"github.com/aegis-clinical/triage/internal/config"
	"github.com/aegis-clinical/triage/internal/confidence"
	"github.com/aegis-clinical/triage/internal/generate"
	"github.com/aegis-clinical/triage/internal/parse"
	"github.com/aegis-clinical/triage/internal/privacy"
	"github.com/aegis-clinical/triage/internal/retrieval"
	"github.com/aegis-clinical/triage/internal/schema"
	"github.com/aegis-clinical/triage/internal/taxonomy"
)

// ErrTotalFailure means both backends failed and no usable candidate
// exists. The wrapped message names both underlying failures.
var ErrTotalFailure = errors.New("pipeline: all inference backends failed")

// Options carries the optional collaborators. Zero values get defaults.
type Options struct {
	Index     *retrieval.Index
	Keywords  *taxonomy.Keywords
	Cache     Cache
	Store     *casestore.Store
	Logger    *slog.Logger
	Estimator *confidence.Estimator
}

// Pipeline runs triage requests end to end. Safe for concurrent use;
// identical in-flight queries are collapsed to a single computation.
type Pipeline struct {
	cfg       config.Config
	edge      backend.EdgeEngine
	cloud     backend.CloudService
	index     *retrieval.Index
	kw        *taxonomy.Keywords
	cache     Cache
	store     *casestore.Store
	log       *slog.Logger
	estimator *confidence.Estimator
	group     singleflight.Group
}

// New builds a Pipeline around explicit backend collaborators. Tests inject
// fakes here; production callers use NewFromConfig.
func New(cfg config.Config, edge backend.EdgeEngine, cloud backend.CloudService, opts Options) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		edge:      edge,
		cloud:     cloud,
		index:     opts.Index,
		kw:        opts.Keywords,
		cache:     opts.Cache,
		store:     opts.Store,
		log:       opts.Logger,
		estimator: opts.Estimator,
	}
	if p.index == nil {
		p.index = retrieval.DefaultIndex()
	}
	if p.kw == nil {
		p.kw = taxonomy.Default()
	}
	if p.cache == nil {
		p.cache = NewTTLCache(cfg.CacheTTL.Std())
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.estimator == nil {
		p.estimator = confidence.NewEstimator(time.Now().UnixNano())
	}
	return p
}

// NewFromConfig constructs the real backends from configuration.
func NewFromConfig(cfg config.Config, opts Options) (*Pipeline, error) {
	edge, err := backend.NewEdgeEngine(backend.EdgeConfig{
		BaseURL:     cfg.Edge.BaseURL,
		Model:       cfg.Edge.Model,
		Timeout:     cfg.Edge.Timeout.Std(),
		MaxTokens:   cfg.Edge.MaxTokens,
		Temperature: cfg.Edge.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: edge engine: %w", err)
	}
	cloud, err := backend.NewCloudService(backend.CloudConfig{
		Provider:          cfg.Cloud.Provider,
		Model:             cfg.Cloud.Model,
		Timeout:           cfg.Cloud.Timeout.Std(),
		MaxTokens:         cfg.Cloud.MaxTokens,
		RequestsPerMinute: int(cfg.Cloud.RPS * 60),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: cloud service: %w", err)
	}
	return New(cfg, edge, cloud, opts), nil
}

// ClearCache drops all cached results.
func (p *Pipeline) ClearCache() { p.cache.Clear() }

// Analyze runs the full triage flow for a free-text symptom description.
// Repeated queries are served from the cache; concurrent identical queries
// share one computation.
func (p *Pipeline) Analyze(ctx context.Context, query string) (schema.HybridAnalysisResult, error) {
	if p.cfg.ScrubEnabled() {
		query = privacy.Scrub(query)
	}
	key := cacheKey(query)
	if hit, ok := p.cache.Get(key); ok {
		p.log.Debug("cache hit", "key", key)
		return hit, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		result, err := p.analyze(ctx, query)
		if err != nil {
			return schema.HybridAnalysisResult{}, err
		}
		p.cache.Put(key, result)
		p.archive(query, result)
		return result, nil
	})
	if err != nil {
		return schema.HybridAnalysisResult{}, err
	}
	return v.(schema.HybridAnalysisResult), nil
}

// analyze is the uncached single-request state machine. Terminal states are
// edge-accepted, cloud-accepted, edge-as-last-resort, and failed.
func (p *Pipeline) analyze(ctx context.Context, query string) (schema.HybridAnalysisResult, error) {
	start := time.Now()

	ret := p.index.Search(query, p.cfg.TopK)
	prompt := generate.BuildPrompt(query, ret.Context)
	p.log.Debug("retrieval complete", "citations", len(ret.Citations))

	// Step 1: edge, always first.
	edgeCand, edgeLatency, edgeErr := p.runEdge(ctx, query, prompt, len(ret.Citations) > 0)

	// Step 2: edge-confidence gate. A rejected edge result is kept around
	// as the last resort for step 4.
	if edgeErr == nil {
		result, accepted := p.evaluateEdge(query, edgeCand, edgeLatency, ret.Citations, start)
		if accepted {
			p.log.Info("edge accepted", "severity", result.Severity, "confidence", result.Confidence)
			return result, nil
		}
		return p.fallback(ctx, query, &result, result.FallbackReason, ret.Citations, start)
	}
	return p.fallback(ctx, query, nil, edgeFallbackReason(edgeErr), ret.Citations, start)
}

// runEdge issues the configured number of sequential edge generations,
// parses each, and reranks. It fails when every call or every parse fails.
func (p *Pipeline) runEdge(ctx context.Context, query, prompt string, hasCitations bool) (schema.ParsedCandidate, int64, error) {
	var (
		candidates []schema.ParsedCandidate
		latency    int64
		callErr    error
		sawText    bool
	)
	for i := 0; i < p.cfg.Edge.NumCandidates; i++ {
		res, err := p.edge.Infer(ctx, prompt)
		if err != nil {
			p.log.Warn("edge inference failed", "attempt", i+1, "error", err)
			callErr = err
			continue
		}
		sawText = true
		latency += res.ElapsedMs
		cand, err := parse.Candidate(res.ResponseText, res.ElapsedMs)
		if err != nil {
			p.log.Warn("edge response unparsable", "attempt", i+1)
			continue
		}
		candidates = append(candidates, cand)
	}
	if len(candidates) == 0 {
		if sawText {
			return schema.ParsedCandidate{}, latency, parse.ErrUnparsable
		}
		if callErr == nil {
			callErr = backend.ErrUnavailable
		}
		return schema.ParsedCandidate{}, latency, callErr
	}
	best, _ := generate.SelectBest(query, candidates, hasCitations, p.kw)
	return best, latency, nil
}

// evaluateEdge calibrates and scores an edge candidate and applies the
// confidence gate. The returned result is complete either way; accepted
// reports whether the gate passed. On rejection FallbackReason holds the
// gate verdict for the cloud step to surface.
func (p *Pipeline) evaluateEdge(query string, cand schema.ParsedCandidate, edgeLatency int64, citations []schema.Citation, start time.Time) (schema.HybridAnalysisResult, bool) {
	cal := calibrate.Calibrate(p.kw, calibrate.Input{
		Predicted: cand.Severity,
		Symptoms:  cand.Symptoms,
		Summary:   cand.Summary + " " + query,
	})
	redFlags := p.kw.CountRedFlags(cand.Symptoms, cand.Summary+" "+query)
	minorOnly := p.kw.HasOnlyMinorSymptoms(cand.Symptoms, cand.Summary)
	conf, rationale := confidence.Decision(cal.Severity, redFlags, minorOnly, cal.WasCalibrated)
	p.annotate(query, cal.Severity, conf)

	result := p.buildResult(cand, cal, conf, schema.SourceEdge, "", citations, start)
	result.EdgeLatency = edgeLatency

	switch {
	case cal.Severity == schema.SeverityMedium:
		// Medium is always uncertain.
	case conf < p.cfg.Edge.MinConfidence:
	case cal.Severity == schema.SeverityHigh && redFlags == 0:
	case cal.Severity == schema.SeverityLow && redFlags > 0:
	default:
		p.log.Debug("edge gate passed", "rationale", rationale)
		return result, true
	}
	result.FallbackReason = fmt.Sprintf("Edge uncertain: severity=%s, confidence=%.2f", cal.Severity, conf)
	return result, false
}

// fallback is steps 3 and 4: try cloud once; fall back to the rejected edge
// result if it exists; otherwise fail with both causes.
func (p *Pipeline) fallback(ctx context.Context, query string, edgeResult *schema.HybridAnalysisResult, reason string, citations []schema.Citation, start time.Time) (schema.HybridAnalysisResult, error) {
	cloudRes, err := p.cloud.Analyze(ctx, query)
	if err == nil {
		cand, perr := parse.Candidate(cloudRes.FinalOutputText, cloudRes.ElapsedMs)
		if perr == nil {
			cal := calibrate.Calibrate(p.kw, calibrate.Input{
				Predicted: cand.Severity,
				Symptoms:  cand.Symptoms,
				Summary:   cand.Summary + " " + query,
			})
			redFlags := p.kw.CountRedFlags(cand.Symptoms, cand.Summary+" "+query)
			minorOnly := p.kw.HasOnlyMinorSymptoms(cand.Symptoms, cand.Summary)
			conf, _ := confidence.Decision(cal.Severity, redFlags, minorOnly, cal.WasCalibrated)
			p.annotate(query, cal.Severity, conf)

			result := p.buildResult(cand, cal, conf, schema.SourceCloud, reason, citations, start)
			result.CloudLatency = cloudRes.ElapsedMs
			if edgeResult != nil {
				result.EdgeLatency = edgeResult.EdgeLatency
			}
			p.log.Info("cloud accepted", "severity", result.Severity, "reason", reason)
			return result, nil
		}
		err = perr
	}

	if edgeResult != nil {
		result := *edgeResult
		result.FallbackReason = fmt.Sprintf("Cloud failed (%v), using uncertain edge result", err)
		result.InferenceTime = time.Since(start).Milliseconds()
		p.log.Warn("using uncertain edge result", "cloud_error", err)
		return result, nil
	}
	p.log.Error("all backends failed", "edge", reason, "cloud", err)
	return schema.HybridAnalysisResult{}, fmt.Errorf("%w: %s; cloud: %v", ErrTotalFailure, reason, err)
}

// buildResult assembles the immutable output record.
func (p *Pipeline) buildResult(cand schema.ParsedCandidate, cal schema.CalibrationResult, conf float64, source schema.InferenceSource, reason string, citations []schema.Citation, start time.Time) schema.HybridAnalysisResult {
	return schema.HybridAnalysisResult{
		Symptoms:        cand.Symptoms,
		Severity:        cal.Severity,
		Summary:         cand.Summary,
		Differential:    cand.Differential,
		Recommendations: cand.Recommendations,
		Reasoning:       cand.Reasoning,
		FullResponse:    cand.RawText,
		Source:          source,
		Confidence:      conf,
		WasCalibrated:   cal.WasCalibrated,
		FallbackReason:  reason,
		InferenceTime:   time.Since(start).Milliseconds(),
		Citations:       citations,
	}
}

// annotate logs the comprehensive uncertainty estimate for the accepted
// severity. Purely observational; it never changes the decision.
func (p *Pipeline) annotate(query string, severity schema.Severity, conf float64) {
	score := confidence.TemperatureScale(logit(conf), severity, nil)
	est := p.estimator.Comprehensive(severity, score.Calibrated, query)
	p.log.Debug("uncertainty estimate",
		"total", est.Total,
		"epistemic", est.Epistemic,
		"aleatoric", est.Aleatoric,
		"ood", est.OOD,
		"action", est.Action,
		"reliability", score.Reliability,
	)
	if est.Action != confidence.ActionProceed {
		p.log.Info("uncertainty advisory", "action", est.Action, "total", est.Total)
	}
}

// logit inverts sigmoid so the decision confidence can be re-scaled per
// severity temperature. Clamped away from 0 and 1 to stay finite.
func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

// edgeFallbackReason maps an edge failure to the reason string carried on a
// cloud-accepted result.
func edgeFallbackReason(err error) string {
	if errors.Is(err, parse.ErrUnparsable) {
		return "Edge returned unparsable response"
	}
	return fmt.Sprintf("Edge failed: %v", err)
}

// archive writes the finished result to the case store when one is wired.
// Failures are logged, never surfaced; archiving is best-effort.
func (p *Pipeline) archive(query string, result schema.HybridAnalysisResult) {
	if p.store == nil || !p.cfg.ArchiveEnabled() {
		return
	}
	id, err := p.store.Archive(query, result)
	if err != nil {
		p.log.Warn("case archive failed", "error", err)
		return
	}
	p.log.Debug("case archived", "id", id)
}
