package confidence

import (
	"math"
	"testing"

	"github.com/aegis-clinical/triage/internal/schema"
)

func TestTemperatureScale_Bounds(t *testing.T) {
	logits := []float64{-10, -2.5, -0.3, 0, 0.7, 1.8, 4, 25}
	severities := []schema.Severity{schema.SeverityLow, schema.SeverityMedium, schema.SeverityHigh}
	for _, l := range logits {
		for _, s := range severities {
			cs := TemperatureScale(l, s, nil)
			if cs.Raw < 0 || cs.Raw > 1 {
				t.Errorf("Raw out of bounds for logit %v: %v", l, cs.Raw)
			}
			if cs.Calibrated < 0 || cs.Calibrated > 1 {
				t.Errorf("Calibrated out of bounds for logit %v: %v", l, cs.Calibrated)
			}
			if cs.Uncertainty < 0 || cs.Uncertainty > 1 {
				t.Errorf("Uncertainty out of bounds for logit %v: %v", l, cs.Uncertainty)
			}
			if cs.Calibrated > cs.Raw {
				t.Errorf("Calibrated %v > Raw %v for logit %v severity %s", cs.Calibrated, cs.Raw, l, s)
			}
		}
	}
}

func TestTemperatureScale_SeverityTemperatures(t *testing.T) {
	// Same positive logit: the lower-certainty class gets the more
	// conservative (smaller) calibrated probability.
	logit := 2.0
	high := TemperatureScale(logit, schema.SeverityHigh, nil)
	medium := TemperatureScale(logit, schema.SeverityMedium, nil)
	low := TemperatureScale(logit, schema.SeverityLow, nil)
	if !(high.Calibrated > medium.Calibrated && medium.Calibrated > low.Calibrated) {
		t.Errorf("calibrated ordering wrong: high=%v medium=%v low=%v",
			high.Calibrated, medium.Calibrated, low.Calibrated)
	}
	if high.Raw != medium.Raw || medium.Raw != low.Raw {
		t.Error("raw probability must not depend on severity")
	}
}

func TestTemperatureScale_EnsembleUncertainty(t *testing.T) {
	// logit 1.0, high: calibrated = sigmoid(1/1.1) ~ 0.713, inside [0.6,0.95],
	// so the ensemble std dev is used unmodified.
	cs := TemperatureScale(1.0, schema.SeverityHigh, []float64{0.7, 0.7, 0.7})
	if cs.Uncertainty != 0 {
		t.Errorf("identical ensemble: uncertainty = %v, want 0", cs.Uncertainty)
	}
	spread := TemperatureScale(1.0, schema.SeverityHigh, []float64{0.2, 0.8})
	if spread.Uncertainty <= cs.Uncertainty {
		t.Error("spread ensemble should raise uncertainty")
	}
}

func TestTemperatureScale_InflationOutsideBand(t *testing.T) {
	// Strongly negative logit: calibrated well below 0.6, so the base 0.1
	// uncertainty inflates to 0.15.
	cs := TemperatureScale(-4, schema.SeverityHigh, nil)
	if math.Abs(cs.Uncertainty-0.15) > 1e-9 {
		t.Errorf("uncertainty = %v, want 0.15", cs.Uncertainty)
	}
	// Inflation caps at 0.25.
	capped := TemperatureScale(-4, schema.SeverityHigh, []float64{0.1, 0.9})
	if capped.Uncertainty != 0.25 {
		t.Errorf("uncertainty = %v, want cap 0.25", capped.Uncertainty)
	}
}

func TestTemperatureScale_Reliability(t *testing.T) {
	// High: tight ensemble, calibrated > 0.7.
	high := TemperatureScale(2.0, schema.SeverityHigh, []float64{0.8, 0.81, 0.8})
	if high.Reliability != schema.ReliabilityHigh {
		t.Errorf("reliability = %s, want high", high.Reliability)
	}
	// Low: out-of-band calibration with a wide ensemble.
	low := TemperatureScale(-4, schema.SeverityHigh, []float64{0.1, 0.9})
	if low.Reliability != schema.ReliabilityLow {
		t.Errorf("reliability = %s, want low", low.Reliability)
	}
}

func TestDecision(t *testing.T) {
	cases := []struct {
		name          string
		severity      schema.Severity
		redFlags      int
		minorOnly     bool
		wasCalibrated bool
		want          float64
	}{
		{"high two flags", schema.SeverityHigh, 2, false, false, 0.92},
		{"high three flags", schema.SeverityHigh, 3, false, false, 0.92},
		{"high one flag", schema.SeverityHigh, 1, false, false, 0.85},
		{"high no flags", schema.SeverityHigh, 0, false, false, 0.65},
		{"low minor only", schema.SeverityLow, 0, true, false, 0.88},
		{"low no flags", schema.SeverityLow, 0, false, false, 0.75},
		{"low with flag", schema.SeverityLow, 1, false, false, 0.55},
		{"medium", schema.SeverityMedium, 5, false, false, 0.50},
		{"calibration boost", schema.SeverityHigh, 1, false, true, 0.90},
		{"boost capped", schema.SeverityHigh, 2, false, true, 0.95},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, rationale := Decision(c.severity, c.redFlags, c.minorOnly, c.wasCalibrated)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("Decision = %v, want %v", got, c.want)
			}
			if rationale == "" {
				t.Error("rationale is empty")
			}
		})
	}
}

func TestOODScore_InDistribution(t *testing.T) {
	score := OODScore("severe chest pain with shortness of breath and nausea")
	if score > OODThreshold {
		t.Errorf("clinical input scored OOD: %v", score)
	}
	if IsOOD("fever headache cough vomiting") {
		t.Error("clinical vocabulary flagged OOD")
	}
}

func TestOODScore_OutOfDistribution(t *testing.T) {
	if !IsOOD("my quarterly portfolio rebalancing strategy underperformed") {
		t.Error("non-clinical input not flagged OOD")
	}
	if got := OODScore(""); got != 0.5 {
		t.Errorf("empty input score = %v, want 0.5", got)
	}
}

func TestOODScore_Bounds(t *testing.T) {
	inputs := []string{"", "pain", "xyzzy plugh", "pain pain pain pain", "a b c d e f g"}
	for _, in := range inputs {
		if s := OODScore(in); s < 0 || s > 1 {
			t.Errorf("OODScore(%q) = %v, out of [0,1]", in, s)
		}
	}
}

func TestComprehensive_Reproducible(t *testing.T) {
	a := NewEstimator(42).Comprehensive(schema.SeverityHigh, 0.9, "chest pain and breathlessness")
	b := NewEstimator(42).Comprehensive(schema.SeverityHigh, 0.9, "chest pain and breathlessness")
	if a != b {
		t.Errorf("same seed, different estimates:\n%+v\n%+v", a, b)
	}
}

func TestComprehensive_BoundsAndAction(t *testing.T) {
	e := NewEstimator(7)
	est := e.Comprehensive(schema.SeverityHigh, 0.92, "chest pain with sweating and nausea")
	for name, v := range map[string]float64{
		"epistemic": est.Epistemic, "aleatoric": est.Aleatoric,
		"ood": est.OODScore, "total": est.Total,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v, out of [0,1]", name, v)
		}
	}
	if est.Action == "" {
		t.Error("no action recommended")
	}
}

func TestComprehensive_OODDefersToHuman(t *testing.T) {
	e := NewEstimator(7)
	est := e.Comprehensive(schema.SeverityLow, 0.8, "blockchain validator slashing event")
	if !est.OOD {
		t.Fatal("expected OOD flag")
	}
	if est.Action != ActionDeferToHuman {
		t.Errorf("action = %s, want %s", est.Action, ActionDeferToHuman)
	}
}
