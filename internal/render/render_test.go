package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/aegis-clinical/triage/internal/schema"
)

func sampleResult() *schema.HybridAnalysisResult {
	return &schema.HybridAnalysisResult{
		Symptoms: []string{"chest pain", "shortness of breath"},
		Severity: schema.SeverityHigh,
		Summary:  "Possible acute coronary syndrome",
		Differential: []schema.DifferentialItem{
			{Condition: "ACS", Probability: 60, Recommendation: "Emergency evaluation"},
			{Condition: "Pulmonary embolism", Probability: 20, Recommendation: "Urgent imaging"},
		},
		Recommendations: []string{"Call emergency services"},
		Reasoning:       "Classic ischemic presentation",
		FullResponse:    "{...}",
		Source:          schema.SourceEdge,
		Confidence:      0.92,
		WasCalibrated:   false,
		InferenceTime:   1423,
		EdgeLatency:     1410,
		Citations: []schema.Citation{
			{ID: "cardio-001", Source: "AHA chest pain guideline", Snippet: "ECG within 10 minutes", Score: 4.2},
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	result := sampleResult()
	b, err := RenderJSON(result)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var back schema.HybridAnalysisResult
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal rendered JSON: %v", err)
	}
	if back.Severity != result.Severity || back.Confidence != result.Confidence {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if len(back.Differential) != 2 {
		t.Errorf("round trip lost differential items: %d", len(back.Differential))
	}
}

func TestRenderJSON_FieldNames(t *testing.T) {
	b, err := RenderJSON(sampleResult())
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	for _, field := range []string{
		`"symptoms"`, `"severity"`, `"summary"`, `"differential"`,
		`"recommendations"`, `"fullResponse"`, `"source"`, `"confidence"`,
		`"wasCalibrated"`, `"inferenceTime"`,
	} {
		if !strings.Contains(string(b), field) {
			t.Errorf("rendered JSON missing field %s", field)
		}
	}
}

func TestRenderJSON_Nil(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestRenderText(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	out := RenderText(sampleResult())
	for _, want := range []string{
		"HIGH",
		"92%",
		"Possible acute coronary syndrome",
		"ACS (60%)",
		"Call emergency services",
		"cardio-001",
		"not a diagnosis",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered text missing %q", want)
		}
	}
}

func TestRenderText_FallbackShown(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	r := sampleResult()
	r.Source = schema.SourceCloud
	r.FallbackReason = "Edge uncertain: severity=medium, confidence=0.50"
	out := RenderText(r)
	if !strings.Contains(out, r.FallbackReason) {
		t.Error("fallback reason not rendered")
	}
}

func TestRenderText_Nil(t *testing.T) {
	if RenderText(nil) != "" {
		t.Error("nil result should render to empty string")
	}
}
