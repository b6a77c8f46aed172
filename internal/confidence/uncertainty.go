package confidence

import (
	"math"
	"math/rand"
	"strings"

	"github.com/aegis-clinical/triage/internal/retrieval"
	"github.com/aegis-clinical/triage/internal/schema"
)

// OODThreshold is the score above which input is flagged out-of-distribution.
const OODThreshold = 0.3

// knownSymptomTerms is the fixed clinical vocabulary the OOD detector checks
// input against. Substring matching, so "breathless" covers "breath".
var knownSymptomTerms = []string{
	"pain", "fever", "cough", "headache", "nausea", "vomit", "dizz",
	"fatigue", "rash", "bleed", "breath", "chest", "throat", "swelling",
	"infection", "injury", "pressure", "numb", "cramp", "diarrhea",
}

// stopwords are excluded before computing the novelty and coverage ratios;
// filler words say nothing about distribution membership.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "for": true,
	"has": true, "have": true, "i": true, "in": true, "is": true,
	"my": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true,
}

// OODScore tokenizes input, drops stopwords, and scores its distance from the
// known clinical vocabulary: clamp01(noveltyRatio - coverageRatio + 0.5),
// where novelty is the fraction of tokens matching no vocabulary term and
// coverage the fraction that match one. An empty input scores at the neutral
// midpoint 0.5 and is therefore flagged.
func OODScore(input string) float64 {
	var tokens []string
	for _, tok := range retrieval.Tokenize(input) {
		if !stopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return 0.5
	}

	matched := 0
	for _, tok := range tokens {
		for _, term := range knownSymptomTerms {
			if strings.Contains(tok, term) {
				matched++
				break
			}
		}
	}

	noveltyRatio := float64(len(tokens)-matched) / float64(len(tokens))
	coverageRatio := float64(matched) / float64(len(tokens))
	return clamp01(noveltyRatio - coverageRatio + 0.5)
}

// IsOOD reports whether input scores above the OOD threshold.
func IsOOD(input string) bool {
	return OODScore(input) > OODThreshold
}

// Action is the recommended handling for a request given its uncertainty.
type Action string

const (
	ActionProceed      Action = "proceed"
	ActionSeekReview   Action = "seek-review"
	ActionReject       Action = "reject"
	ActionDeferToHuman Action = "defer-to-human"
)

// Estimate is the combined uncertainty picture for one candidate.
type Estimate struct {
	Epistemic float64 `json:"epistemic"`
	Aleatoric float64 `json:"aleatoric"`
	OODScore  float64 `json:"oodScore"`
	OOD       bool    `json:"ood"`
	Total     float64 `json:"total"`
	Action    Action  `json:"action"`
}

// Estimator produces combined uncertainty estimates. The repeated-sample
// disagreement is simulated with bounded noise from an injected source, so a
// seeded Estimator is fully reproducible. It is a presentation-layer
// approximation, not model introspection.
type Estimator struct {
	rng     *rand.Rand
	samples int
}

// NewEstimator returns an Estimator seeded for reproducibility.
func NewEstimator(seed int64) *Estimator {
	return &Estimator{rng: rand.New(rand.NewSource(seed)), samples: 20}
}

// severityIndex maps a severity to its slot in the 3-class distribution.
func severityIndex(s schema.Severity) int {
	switch s {
	case schema.SeverityLow:
		return 0
	case schema.SeverityMedium:
		return 1
	default:
		return 2
	}
}

// Comprehensive estimates epistemic uncertainty (normalized mutual
// information across perturbed samples), aleatoric uncertainty (normalized
// expected entropy), and the OOD signal for one candidate, and combines them
// into a weighted total with a recommended action.
//
// Weighting: 0.6 epistemic + 0.3 aleatoric + 0.1 OOD.
func (e *Estimator) Comprehensive(severity schema.Severity, calibratedProb float64, input string) Estimate {
	base := e.classDistribution(severity, calibratedProb)

	// Perturbed repeat samples stand in for MC-dropout forward passes.
	samples := make([][3]float64, e.samples)
	for i := range samples {
		samples[i] = e.perturb(base)
	}

	var mean [3]float64
	var expectedEntropy float64
	for _, s := range samples {
		for c := range mean {
			mean[c] += s[c]
		}
		expectedEntropy += entropy(s)
	}
	for c := range mean {
		mean[c] /= float64(len(samples))
	}
	expectedEntropy /= float64(len(samples))

	maxEntropy := math.Log(3)
	predictiveEntropy := entropy(mean)

	// Mutual information: disagreement between samples beyond their
	// individual noise.
	epistemic := clamp01((predictiveEntropy - expectedEntropy) / maxEntropy)
	aleatoric := clamp01(expectedEntropy / maxEntropy)

	ood := OODScore(input)
	est := Estimate{
		Epistemic: epistemic,
		Aleatoric: aleatoric,
		OODScore:  ood,
		OOD:       ood > OODThreshold,
		Total:     0.6*epistemic + 0.3*aleatoric + 0.1*ood,
	}

	switch {
	case est.OOD:
		est.Action = ActionDeferToHuman
	case est.Total > 0.7:
		est.Action = ActionReject
	case est.Total > 0.4 || est.Epistemic > 0.5:
		est.Action = ActionSeekReview
	default:
		est.Action = ActionProceed
	}
	return est
}

// classDistribution builds a 3-class probability vector that puts
// calibratedProb on the predicted class and splits the remainder evenly.
func (e *Estimator) classDistribution(severity schema.Severity, calibratedProb float64) [3]float64 {
	p := clamp01(calibratedProb)
	rest := (1 - p) / 2
	dist := [3]float64{rest, rest, rest}
	dist[severityIndex(severity)] = p
	return dist
}

// perturb adds bounded Gaussian noise to each class and renormalizes.
func (e *Estimator) perturb(dist [3]float64) [3]float64 {
	var out [3]float64
	var sum float64
	for c := range dist {
		v := dist[c] + e.rng.NormFloat64()*0.1
		if v < 1e-6 {
			v = 1e-6
		}
		out[c] = v
		sum += v
	}
	for c := range out {
		out[c] /= sum
	}
	return out
}

// entropy computes the Shannon entropy of a distribution in nats.
func entropy(dist [3]float64) float64 {
	var h float64
	for _, p := range dist {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}
