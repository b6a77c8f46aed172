package calibrate

import (
	"strings"
	"testing"

	"github.com/aegis-clinical/triage/internal/schema"
)

func calibrateSimple(t *testing.T, predicted schema.Severity, symptoms []string) schema.CalibrationResult {
	t.Helper()
	return Calibrate(nil, Input{Predicted: predicted, Symptoms: symptoms})
}

func TestCalibrate_HighConfirmedByTier1(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityHigh, []string{"chest pain", "shortness of breath", "sweating"})
	if res.Severity != schema.SeverityHigh {
		t.Errorf("severity = %s, want high", res.Severity)
	}
	if res.WasCalibrated {
		t.Error("WasCalibrated = true, want false (tier confirmation does not change severity)")
	}
	if !strings.Contains(res.Note, "Tier 1") {
		t.Errorf("note = %q, want Tier 1 confirmation", res.Note)
	}
}

func TestCalibrate_HighMinorOnlyDowngradesToLow(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityHigh, []string{"sore throat", "runny nose", "mild cough"})
	if res.Severity != schema.SeverityLow {
		t.Errorf("severity = %s, want low", res.Severity)
	}
	if !res.WasCalibrated {
		t.Error("WasCalibrated = false, want true")
	}
	if !strings.Contains(res.Note, "only minor symptoms") {
		t.Errorf("note = %q, want mention of only minor symptoms", res.Note)
	}
}

func TestCalibrate_HighUrgentButStableDowngradesToMedium(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityHigh, []string{"fracture", "severe localized pain"})
	if res.Severity != schema.SeverityMedium {
		t.Errorf("severity = %s, want medium", res.Severity)
	}
	if !strings.Contains(res.Note, "urgent but stable") {
		t.Errorf("note = %q, want mention of urgent but stable", res.Note)
	}
}

func TestCalibrate_HighNoFlagsDefaultsToLow(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityHigh, []string{"feeling tired lately"})
	if res.Severity != schema.SeverityLow {
		t.Errorf("severity = %s, want low", res.Severity)
	}
	if !strings.Contains(res.Note, "no red flags") {
		t.Errorf("note = %q, want mention of no red flags", res.Note)
	}
}

func TestCalibrate_HighTier2Softened(t *testing.T) {
	res := Calibrate(nil, Input{
		Predicted: schema.SeverityHigh,
		Symptoms:  []string{"severe headache"},
		Summary:   "mild and improving over two days",
	})
	if res.Severity != schema.SeverityMedium {
		t.Errorf("severity = %s, want medium", res.Severity)
	}
}

func TestCalibrate_HighTier2SoftenedBlockedByAgeRisk(t *testing.T) {
	res := Calibrate(nil, Input{
		Predicted: schema.SeverityHigh,
		Symptoms:  []string{"severe headache"},
		Summary:   "mild and improving, 81-year-old",
	})
	// Elevated age risk suppresses the low-severity softening.
	if res.Severity != schema.SeverityHigh {
		t.Errorf("severity = %s, want high (age risk blocks softening)", res.Severity)
	}
}

func TestCalibrate_MediumEscalatesOnSeriousFlags(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityMedium, []string{"slurred speech", "facial droop"})
	if res.Severity != schema.SeverityHigh {
		t.Errorf("severity = %s, want high", res.Severity)
	}
	if !res.WasCalibrated {
		t.Error("WasCalibrated = false, want true")
	}
}

func TestCalibrate_MediumNeverEscalatesOnTier3Alone(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityMedium, []string{"fever", "vomiting"})
	if res.Severity != schema.SeverityMedium {
		t.Errorf("severity = %s, want medium (Tier 3 alone must not escalate)", res.Severity)
	}
	if res.WasCalibrated {
		t.Error("WasCalibrated = true, want false")
	}
}

func TestCalibrate_MediumMinorOnlyDowngrades(t *testing.T) {
	res := calibrateSimple(t, schema.SeverityMedium, []string{"runny nose", "sneezing"})
	if res.Severity != schema.SeverityLow {
		t.Errorf("severity = %s, want low", res.Severity)
	}
}

func TestCalibrate_LowIsStickyWithoutSeriousFlags(t *testing.T) {
	// Property from the design: absent Tier-1/Tier-2 keywords, a predicted
	// low never escalates, whatever else matches.
	symptomSets := [][]string{
		{"fever", "vomiting", "dehydration"}, // Tier 3 only
		{"sore throat", "mild cough"},        // minor only
		{"fracture"},                         // urgent but stable
		{"rash", "dizziness", "ear pain"},    // multiple Tier 3
		{"nothing recognizable"},
	}
	for _, symptoms := range symptomSets {
		res := calibrateSimple(t, schema.SeverityLow, symptoms)
		if res.Severity != schema.SeverityLow {
			t.Errorf("Calibrate(low, %v) = %s, want low", symptoms, res.Severity)
		}
	}
}

func TestCalibrate_LowEscalation(t *testing.T) {
	cases := []struct {
		name     string
		symptoms []string
		summary  string
		want     schema.Severity
	}{
		{"tier1 override", []string{"chest pain"}, "", schema.SeverityHigh},
		{"tier2 no age risk", []string{"confusion"}, "", schema.SeverityMedium},
		{"tier2 with age risk", []string{"confusion"}, "patient is a 78-year-old", schema.SeverityHigh},
		{"tier2 toddler", []string{"persistent vomiting"}, "3-year-old child", schema.SeverityHigh},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := Calibrate(nil, Input{Predicted: schema.SeverityLow, Symptoms: c.symptoms, Summary: c.summary})
			if res.Severity != c.want {
				t.Errorf("severity = %s, want %s", res.Severity, c.want)
			}
		})
	}
}

func TestCalibrate_AbstainShortCircuits(t *testing.T) {
	res := Calibrate(nil, Input{
		Predicted:     schema.SeverityHigh,
		Symptoms:      []string{"chest pain"}, // Tier 1, would otherwise confirm high
		Confidence:    0.42,
		HasConfidence: true,
	})
	if res.Severity != schema.SeverityMedium {
		t.Errorf("severity = %s, want medium (abstain)", res.Severity)
	}
	if !res.WasCalibrated {
		t.Error("WasCalibrated = false, want true")
	}
	if !strings.Contains(res.Note, "abstained") {
		t.Errorf("note = %q, want abstain note", res.Note)
	}
}

func TestCalibrate_ConfidenceAboveThresholdIgnored(t *testing.T) {
	res := Calibrate(nil, Input{
		Predicted:     schema.SeverityHigh,
		Symptoms:      []string{"chest pain"},
		Confidence:    0.95,
		HasConfidence: true,
	})
	if res.Severity != schema.SeverityHigh {
		t.Errorf("severity = %s, want high", res.Severity)
	}
}

func TestCalibrate_InvalidSeverityTreatedAsMedium(t *testing.T) {
	res := Calibrate(nil, Input{Predicted: schema.Severity("catastrophic"), Symptoms: []string{"fever"}})
	if res.OriginalSeverity != schema.SeverityMedium {
		t.Errorf("OriginalSeverity = %s, want medium", res.OriginalSeverity)
	}
	if res.Severity != schema.SeverityMedium {
		t.Errorf("severity = %s, want medium", res.Severity)
	}
}

// TestCalibrate_NotIdempotent documents that re-calibrating the output label
// with the same symptoms can produce a different result, because calibration
// branches on the original label. This is a known property, not a bug.
func TestCalibrate_NotIdempotent(t *testing.T) {
	symptoms := []string{"severe headache"}
	summary := "mild and improving over two days"

	first := Calibrate(nil, Input{Predicted: schema.SeverityHigh, Symptoms: symptoms, Summary: summary})
	if first.Severity != schema.SeverityMedium {
		t.Fatalf("first pass severity = %s, want medium", first.Severity)
	}

	second := Calibrate(nil, Input{Predicted: first.Severity, Symptoms: symptoms, Summary: summary})
	if second.Severity == first.Severity {
		t.Fatalf("expected the counterexample to diverge: second pass also %s", second.Severity)
	}
	// The medium branch escalates on the same Tier-2 evidence the high
	// branch used to soften.
	if second.Severity != schema.SeverityHigh {
		t.Errorf("second pass severity = %s, want high", second.Severity)
	}
}

func TestCalibrate_PostConditionWasCalibrated(t *testing.T) {
	inputs := []Input{
		{Predicted: schema.SeverityHigh, Symptoms: []string{"sore throat"}},
		{Predicted: schema.SeverityMedium, Symptoms: []string{"chest pain"}},
		{Predicted: schema.SeverityLow, Symptoms: []string{"confusion"}},
		{Predicted: schema.SeverityHigh, Symptoms: []string{"chest pain"}},
		{Predicted: schema.SeverityLow, Symptoms: []string{"mild cough"}},
	}
	for _, in := range inputs {
		res := Calibrate(nil, in)
		changed := res.Severity != res.OriginalSeverity
		if changed && !res.WasCalibrated {
			t.Errorf("Calibrate(%+v): severity changed but WasCalibrated is false", in)
		}
		if changed && res.Note == "" {
			t.Errorf("Calibrate(%+v): severity changed but note is empty", in)
		}
		if !changed && res.WasCalibrated {
			t.Errorf("Calibrate(%+v): severity unchanged but WasCalibrated is true", in)
		}
	}
}
