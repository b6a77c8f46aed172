// Package calibrate adjusts a model-predicted severity using the red-flag
// keyword taxonomy and age risk. The logic is deterministic and local;
// no inference calls are made here.
package calibrate

import (
	"fmt"

	"github.com/aegis-clinical/triage/internal/schema"
	"github.com/aegis-clinical/triage/internal/taxonomy"
)

// AbstainThreshold is the confidence below which calibration abstains and
// forces a medium severity regardless of any other signal.
const AbstainThreshold = 0.90

// Input is one calibration request. Confidence and Age are optional; the
// corresponding Has flag marks them as supplied. Which confidence value a
// caller passes here is deliberately left to the caller: the pipeline
// calibrates without one and applies the decision-confidence heuristic
// afterwards.
type Input struct {
	Predicted     schema.Severity
	Symptoms      []string
	Summary       string
	Confidence    float64
	HasConfidence bool
	Age           int
	HasAge        bool
}

// evidence is the per-call snapshot of every taxonomy signal. Each rule
// predicate reads from it so that the precedence order is the only thing
// that decides the outcome.
type evidence struct {
	tier1        bool
	tier2        bool
	tier3        bool
	lowMarkers   bool
	onlyMinor    bool
	urgent       bool
	redFlagCount int
	ageAdjust    int
}

// rule is one (predicate, outcome) pair. Rules are evaluated once, in table
// order; the first matching rule decides the severity and note.
type rule struct {
	name    string
	when    func(ev evidence) bool
	outcome func(ev evidence) (schema.Severity, string)
}

func fixed(s schema.Severity, note string) func(evidence) (schema.Severity, string) {
	return func(evidence) (schema.Severity, string) { return s, note }
}

// highRules govern a predicted "high". Downgrading is easy by design: small
// generative models over-trigger "high", so anything without red-flag backing
// falls through to low. The red-flag catch-all precedes the Tier-3 downgrade,
// which keeps legacy behavior: a Tier-3 match alone confirms high even when
// low-severity markers are present.
var highRules = []rule{
	{
		name: "tier1-confirm",
		when: func(ev evidence) bool { return ev.tier1 },
		outcome: fixed(schema.SeverityHigh, "Tier 1 flags present"),
	},
	{
		name: "tier2-softened",
		when: func(ev evidence) bool { return ev.tier2 && ev.lowMarkers && ev.ageAdjust <= 0 },
		outcome: fixed(schema.SeverityMedium, "Tier 2 flags softened by low-severity markers"),
	},
	{
		name: "tier2-confirm",
		when: func(ev evidence) bool { return ev.tier2 },
		outcome: fixed(schema.SeverityHigh, "Tier 2 flags present"),
	},
	{
		name: "redflag-catchall",
		when: func(ev evidence) bool { return ev.redFlagCount > 0 },
		outcome: fixed(schema.SeverityHigh, "red flags present"),
	},
	{
		name: "urgent-stable",
		when: func(ev evidence) bool { return ev.urgent },
		outcome: fixed(schema.SeverityMedium, "urgent but stable condition"),
	},
	{
		name: "tier3-softened",
		when: func(ev evidence) bool { return ev.tier3 && ev.lowMarkers },
		outcome: fixed(schema.SeverityLow, "moderate flags with low-severity markers"),
	},
	{
		name: "minor-only",
		when: func(ev evidence) bool { return ev.onlyMinor },
		outcome: fixed(schema.SeverityLow, "only minor symptoms detected"),
	},
	{
		name: "no-flags-default",
		when: func(ev evidence) bool { return true },
		outcome: fixed(schema.SeverityLow, "no red flags detected"),
	},
}

// mediumRules govern a predicted "medium". Medium escalates only on Tier-1
// or Tier-2 evidence, never on Tier-3 or other red flags alone.
var mediumRules = []rule{
	{
		name: "serious-escalate",
		when: func(ev evidence) bool { return ev.tier1 || ev.tier2 },
		outcome: fixed(schema.SeverityHigh, "escalated: serious red flags present"),
	},
	{
		name: "minor-only",
		when: func(ev evidence) bool { return ev.onlyMinor },
		outcome: fixed(schema.SeverityLow, "only minor symptoms detected"),
	},
	{
		name: "low-markers",
		when: func(ev evidence) bool { return ev.lowMarkers && !ev.tier3 },
		outcome: fixed(schema.SeverityLow, "low-severity markers without moderate flags"),
	},
	{
		name: "unchanged",
		when: func(ev evidence) bool { return true },
		outcome: fixed(schema.SeverityMedium, ""),
	},
}

// lowRules govern a predicted "low". Low is sticky downward: only Tier-1 or
// Tier-2 evidence escalates it.
var lowRules = []rule{
	{
		name: "tier1-override",
		when: func(ev evidence) bool { return ev.tier1 },
		outcome: fixed(schema.SeverityHigh, "Tier 1 flags present; escalated"),
	},
	{
		name: "tier2-age-risk",
		when: func(ev evidence) bool { return ev.tier2 && ev.ageAdjust > 0 },
		outcome: fixed(schema.SeverityHigh, "Tier 2 flags with elevated age risk"),
	},
	{
		name: "tier2-escalate",
		when: func(ev evidence) bool { return ev.tier2 },
		outcome: fixed(schema.SeverityMedium, "Tier 2 flags present; escalated"),
	},
	{
		name: "unchanged",
		when: func(ev evidence) bool { return true },
		outcome: fixed(schema.SeverityLow, ""),
	},
}

// Calibrate runs one calibration pass over in. It never fails: an invalid
// predicted severity is treated as medium before the rules run.
//
// Precedence: the abstain rule short-circuits everything; otherwise exactly
// one branch rule fires, chosen by table order for the predicted severity.
// Post-condition: a severity change always sets WasCalibrated and a note.
func Calibrate(kw *taxonomy.Keywords, in Input) schema.CalibrationResult {
	if kw == nil {
		kw = taxonomy.Default()
	}

	predicted := in.Predicted
	if !predicted.Valid() {
		predicted = schema.SeverityMedium
	}

	res := schema.CalibrationResult{
		Severity:         predicted,
		OriginalSeverity: predicted,
	}

	// Abstain: a supplied sub-threshold confidence forces medium before any
	// taxonomy signal is consulted.
	if in.HasConfidence && in.Confidence < AbstainThreshold {
		res.Severity = schema.SeverityMedium
		res.Note = fmt.Sprintf("confidence %.2f below %.2f; abstained to medium", in.Confidence, AbstainThreshold)
		res.WasCalibrated = res.Severity != res.OriginalSeverity
		return res
	}

	ev := gather(kw, in)

	var table []rule
	switch predicted {
	case schema.SeverityHigh:
		table = highRules
	case schema.SeverityMedium:
		table = mediumRules
	default:
		table = lowRules
	}

	for _, r := range table {
		if r.when(ev) {
			res.Severity, res.Note = r.outcome(ev)
			break
		}
	}

	// Canonical post-condition: any severity change is a calibration.
	if res.Severity != res.OriginalSeverity {
		res.WasCalibrated = true
		if res.Note == "" {
			res.Note = fmt.Sprintf("severity adjusted from %s to %s", res.OriginalSeverity, res.Severity)
		}
	}
	return res
}

// gather snapshots every taxonomy signal for one call. When no age was
// supplied it is extracted from the combined text, if present.
func gather(kw *taxonomy.Keywords, in Input) evidence {
	ev := evidence{
		tier1:        kw.HasTier1Flags(in.Symptoms, in.Summary),
		tier2:        kw.HasTier2Flags(in.Symptoms, in.Summary),
		tier3:        kw.HasTier3Flags(in.Symptoms, in.Summary),
		lowMarkers:   kw.HasLowSeverityMarkers(in.Symptoms, in.Summary),
		onlyMinor:    kw.HasOnlyMinorSymptoms(in.Symptoms, in.Summary),
		urgent:       kw.HasUrgentButStable(in.Symptoms, in.Summary),
		redFlagCount: kw.CountRedFlags(in.Symptoms, in.Summary),
	}
	switch {
	case in.HasAge:
		ev.ageAdjust = taxonomy.AgeRiskAdjustment(in.Age)
	default:
		if age, ok := taxonomy.ExtractAge(taxonomy.CombinedText(in.Symptoms, in.Summary)); ok {
			ev.ageAdjust = taxonomy.AgeRiskAdjustment(age)
		}
	}
	return ev
}
