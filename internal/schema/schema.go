// Package schema defines all canonical data types for the triage pipeline
// output format.
package schema

// Severity is the three-level triage severity.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the three defined severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Reliability grades how much a confidence estimate can be trusted.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// InferenceSource identifies which backend produced the accepted result.
type InferenceSource string

const (
	SourceEdge  InferenceSource = "edge"
	SourceCloud InferenceSource = "cloud"
)

// RetrievalDocument is one immutable entry in the clinical-guideline corpus.
type RetrievalDocument struct {
	ID       string            `json:"id" yaml:"id"`
	Source   string            `json:"source" yaml:"source"`
	Text     string            `json:"text" yaml:"text"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Citation is a scored corpus excerpt. Its lifetime is one retrieval call;
// the snippet is truncated to 400 characters.
type Citation struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Snippet  string            `json:"snippet"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DifferentialItem is one candidate condition in a differential diagnosis.
// Probability is a percentage in [0, 100].
type DifferentialItem struct {
	Condition      string `json:"condition"`
	Probability    int    `json:"probability"`
	Recommendation string `json:"recommendation"`
}

// ParsedCandidate is one inference attempt parsed into structured form.
// Several candidates may coexist during reranking before one is chosen.
type ParsedCandidate struct {
	Symptoms        []string           `json:"symptoms"`
	Severity        Severity           `json:"severity"`
	Summary         string             `json:"summary"`
	Differential    []DifferentialItem `json:"differential"`
	Recommendations []string           `json:"recommendations"`
	Reasoning       string             `json:"reasoning,omitempty"`
	RawText         string             `json:"rawText,omitempty"`
	LatencyMs       int64              `json:"latencyMs"`
}

// CalibrationResult records the outcome of one severity calibration pass.
// Invariant: Severity != OriginalSeverity implies WasCalibrated. Calibration
// may also confirm the original tier with a note (WasCalibrated stays false).
type CalibrationResult struct {
	Severity         Severity `json:"severity"`
	OriginalSeverity Severity `json:"originalSeverity"`
	WasCalibrated    bool     `json:"wasCalibrated"`
	Note             string   `json:"note,omitempty"`
}

// ConfidenceScore is a temperature-scaled confidence estimate.
// Calibrated <= Raw holds for all temperatures >= 1.
type ConfidenceScore struct {
	Raw         float64     `json:"raw"`
	Calibrated  float64     `json:"calibrated"`
	Uncertainty float64     `json:"uncertainty"`
	Reliability Reliability `json:"reliability"`
	Description string      `json:"description"`
}

// HybridAnalysisResult is the final externally-visible structure, produced
// once per request and never mutated after return. Consumers depend on the
// exact JSON field names.
type HybridAnalysisResult struct {
	Symptoms        []string           `json:"symptoms"`
	Severity        Severity           `json:"severity"`
	Summary         string             `json:"summary"`
	Differential    []DifferentialItem `json:"differential"`
	Recommendations []string           `json:"recommendations"`
	Reasoning       string             `json:"reasoning,omitempty"`
	FullResponse    string             `json:"fullResponse"`
	Source          InferenceSource    `json:"source"`
	Confidence      float64            `json:"confidence"`
	WasCalibrated   bool               `json:"wasCalibrated"`
	FallbackReason  string             `json:"fallbackReason,omitempty"`
	InferenceTime   int64              `json:"inferenceTime"`
	EdgeLatency     int64              `json:"edgeLatency,omitempty"`
	CloudLatency    int64              `json:"cloudLatency,omitempty"`
	Citations       []Citation         `json:"citations,omitempty"`
}
