// Package render produces output from a finished schema.HybridAnalysisResult.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/aegis-clinical/triage/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the result.
// The output round-trips through json.Unmarshal back to an equal result.
func RenderJSON(result *schema.HybridAnalysisResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("render: nil result")
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

var (
	severityHigh   = color.New(color.FgRed, color.Bold)
	severityMedium = color.New(color.FgYellow, color.Bold)
	severityLow    = color.New(color.FgGreen, color.Bold)
	heading        = color.New(color.Bold)
	dim            = color.New(color.Faint)
)

func severitySprint(s schema.Severity) string {
	switch s {
	case schema.SeverityHigh:
		return severityHigh.Sprint("HIGH")
	case schema.SeverityMedium:
		return severityMedium.Sprint("MEDIUM")
	default:
		return severityLow.Sprint("LOW")
	}
}

// RenderText produces a human-readable terminal summary of the result.
// Colors degrade to plain text when the output is not a TTY.
func RenderText(result *schema.HybridAnalysisResult) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s\n", heading.Sprint("Severity:"), severitySprint(result.Severity))
	if result.WasCalibrated {
		sb.WriteString(dim.Sprint("(severity adjusted by calibration)") + "\n")
	}
	fmt.Fprintf(&sb, "%s %.0f%%\n", heading.Sprint("Confidence:"), result.Confidence*100)
	fmt.Fprintf(&sb, "%s %s\n\n", heading.Sprint("Source:"), result.Source)

	if result.Summary != "" {
		fmt.Fprintf(&sb, "%s\n%s\n\n", heading.Sprint("Summary"), result.Summary)
	}

	if len(result.Symptoms) > 0 {
		sb.WriteString(heading.Sprint("Reported symptoms") + "\n")
		for _, s := range result.Symptoms {
			fmt.Fprintf(&sb, "  - %s\n", s)
		}
		sb.WriteString("\n")
	}

	if len(result.Differential) > 0 {
		sb.WriteString(heading.Sprint("Differential") + "\n")
		for _, d := range result.Differential {
			fmt.Fprintf(&sb, "  - %s (%d%%): %s\n", d.Condition, d.Probability, d.Recommendation)
		}
		sb.WriteString("\n")
	}

	if len(result.Recommendations) > 0 {
		sb.WriteString(heading.Sprint("Recommendations") + "\n")
		for _, r := range result.Recommendations {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
		sb.WriteString("\n")
	}

	if len(result.Citations) > 0 {
		sb.WriteString(heading.Sprint("Guideline citations") + "\n")
		for _, c := range result.Citations {
			fmt.Fprintf(&sb, "  - %s (%s)\n", c.ID, c.Source)
		}
		sb.WriteString("\n")
	}

	if result.FallbackReason != "" {
		fmt.Fprintf(&sb, "%s %s\n", dim.Sprint("Fallback:"), result.FallbackReason)
	}
	fmt.Fprintf(&sb, "%s %dms\n", dim.Sprint("Inference time:"), result.InferenceTime)

	sb.WriteString("\nThis is not a diagnosis. Seek professional medical evaluation.\n")
	return sb.String()
}
