// Package confidence provides the deterministic trust heuristics of the
// pipeline: temperature-scaled confidence, the decision-confidence score used
// by the hybrid orchestrator, out-of-distribution detection, and a combined
// uncertainty estimate. None of these are learned calibration; they are
// keyword- and formula-driven by design.
package confidence

import (
	"fmt"
	"math"

	"github.com/aegis-clinical/triage/internal/schema"
)

// Per-class temperatures. Less certain classes divide the logit by a larger
// temperature, pulling the calibrated probability toward 0.5.
const (
	tempHigh   = 1.1
	tempMedium = 1.3
	tempLow    = 1.5
)

// baseUncertainty applies when no ensemble scores are available.
const baseUncertainty = 0.1

// temperature returns the scaling temperature for a severity class.
func temperature(s schema.Severity) float64 {
	switch s {
	case schema.SeverityHigh:
		return tempHigh
	case schema.SeverityMedium:
		return tempMedium
	default:
		return tempLow
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// TemperatureScale converts a logit-like raw score into a ConfidenceScore for
// the given severity class. Ensemble scores, when supplied, replace the base
// uncertainty with their sample standard deviation.
//
// Calibrated <= Raw always holds: temperature scaling with T >= 1 lowers the
// probability for positive logits, and the final clamp covers the negative
// side where division would raise it.
func TemperatureScale(logit float64, severity schema.Severity, ensemble []float64) schema.ConfidenceScore {
	raw := sigmoid(logit)
	calibrated := math.Min(sigmoid(logit/temperature(severity)), raw)

	uncertainty := baseUncertainty
	if len(ensemble) > 0 {
		uncertainty = stdDev(ensemble)
	}
	// Probabilities outside the well-calibrated band are less trustworthy.
	if calibrated < 0.6 || calibrated > 0.95 {
		uncertainty = math.Min(uncertainty*1.5, 0.25)
	}
	uncertainty = clamp01(uncertainty)

	var reliability schema.Reliability
	switch {
	case uncertainty < 0.1 && calibrated > 0.7:
		reliability = schema.ReliabilityHigh
	case uncertainty < 0.2:
		reliability = schema.ReliabilityMedium
	default:
		reliability = schema.ReliabilityLow
	}

	return schema.ConfidenceScore{
		Raw:         raw,
		Calibrated:  calibrated,
		Uncertainty: uncertainty,
		Reliability: reliability,
		Description: fmt.Sprintf("%s reliability: calibrated %.2f (raw %.2f), uncertainty %.2f",
			reliability, calibrated, raw, uncertainty),
	}
}

// stdDev is the population standard deviation of xs.
func stdDev(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// Decision computes the decision confidence the hybrid orchestrator gates on.
// It is keyed entirely off the severity label and red-flag evidence: a high
// severity with no supporting red flag is suspicious, a low severity despite
// a red flag is concerning, and medium is always maximally uncertain.
// A calibrator correction earns a small trust boost: catching an error is
// itself evidence the system is working.
func Decision(severity schema.Severity, redFlags int, minorOnly, wasCalibrated bool) (float64, string) {
	var score float64
	var rationale string

	switch severity {
	case schema.SeverityHigh:
		switch {
		case redFlags >= 2:
			score, rationale = 0.92, fmt.Sprintf("high severity supported by %d red flags", redFlags)
		case redFlags == 1:
			score, rationale = 0.85, "high severity supported by one red flag"
		default:
			score, rationale = 0.65, "high severity without red flags (suspicious)"
		}
	case schema.SeverityLow:
		switch {
		case minorOnly:
			score, rationale = 0.88, "low severity with only minor symptoms"
		case redFlags == 0:
			score, rationale = 0.75, "low severity with no red flags"
		default:
			score, rationale = 0.55, fmt.Sprintf("low severity despite %d red flags (concerning)", redFlags)
		}
	default:
		score, rationale = 0.50, "medium severity is inherently uncertain"
	}

	if wasCalibrated {
		score = math.Min(score+0.05, 0.95)
		rationale += "; calibration correction applied"
	}
	return score, rationale
}
