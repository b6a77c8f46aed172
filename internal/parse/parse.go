// Package parse turns raw inference text into a ParsedCandidate. Model output
// is frequently imperfect JSON, so parsing is layered: markdown fences and
// invalid escapes are stripped, brace bounds extracted, common truncation
// damage repaired, and when JSON is beyond saving, fields are recovered with
// regular expressions before giving up.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aegis-clinical/triage/internal/schema"
)

// ErrUnparsable is returned when a response yields no usable candidate after
// every recovery layer. The orchestrator treats it as a backend failure.
var ErrUnparsable = errors.New("parse: response is not recoverable JSON")

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences. The content group
// uses `.*?` (not `.+?`) to allow empty bodies inside fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line. Used to strip orphaned
// opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that
// models sometimes wrap around JSON output. If only an opening fence is
// present (the response was truncated before the closing fence), the opening
// line is stripped so that the JSON content can still be parsed.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by any character that is
// not a valid JSON string escape character. Models sometimes emit regex-like
// sequences unescaped inside JSON strings.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// braceBounds returns the substring from the first '{' to the last '}', or
// from the first '{' to the end when no closing brace survives truncation.
func braceBounds(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:], true
	}
	return s[start : end+1], true
}

// trailingCommaRe matches a comma immediately preceding a closing brace or
// bracket, a common generation artifact.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// repairTruncation closes unbalanced brackets and removes trailing commas.
// Bracket counting skips string contents so that braces inside text fields do
// not confuse the repair.
func repairTruncation(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// A string cut off mid-value needs its quote closed first.
	if inString {
		s = strings.TrimRight(s, "\\")
		s += `"`
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

// wireCandidate is the JSON shape the inference prompts request. Probability
// tolerates floats; severity tolerates any casing.
type wireCandidate struct {
	Symptoms        []string   `json:"symptoms"`
	Severity        string     `json:"severity"`
	Summary         string     `json:"summary"`
	Differential    []wireDiff `json:"differential"`
	Recommendations []string   `json:"recommendations"`
	Reasoning       string     `json:"reasoning"`
}

type wireDiff struct {
	Condition      string  `json:"condition"`
	Probability    float64 `json:"probability"`
	Recommendation string  `json:"recommendation"`
}

// Candidate parses raw inference text into a ParsedCandidate. It never
// returns a partially useless candidate with a nil error: on success every
// field is defaulted per the output contract (medium severity, empty lists).
// ErrUnparsable is returned only when the JSON layers and the regex fallback
// all fail to recover anything.
func Candidate(raw string, latencyMs int64) (schema.ParsedCandidate, error) {
	cleaned := stripMarkdownFences(raw)

	if body, ok := braceBounds(cleaned); ok {
		attempts := []string{
			body,
			fixInvalidJSONEscapes(body),
			repairTruncation(body),
			repairTruncation(fixInvalidJSONEscapes(body)),
		}
		for _, attempt := range attempts {
			var wc wireCandidate
			if err := json.Unmarshal([]byte(attempt), &wc); err == nil {
				return fromWire(wc, raw, latencyMs), nil
			}
		}
	}

	if c, ok := regexExtract(cleaned, raw, latencyMs); ok {
		return c, nil
	}
	return schema.ParsedCandidate{}, fmt.Errorf("%w: %q", ErrUnparsable, truncate(raw, 80))
}

// fromWire normalizes a decoded wire candidate into the canonical form.
func fromWire(wc wireCandidate, raw string, latencyMs int64) schema.ParsedCandidate {
	c := schema.ParsedCandidate{
		Symptoms:        wc.Symptoms,
		Severity:        normalizeSeverity(wc.Severity),
		Summary:         strings.TrimSpace(wc.Summary),
		Recommendations: wc.Recommendations,
		Reasoning:       strings.TrimSpace(wc.Reasoning),
		RawText:         raw,
		LatencyMs:       latencyMs,
	}
	if c.Symptoms == nil {
		c.Symptoms = []string{}
	}
	if c.Recommendations == nil {
		c.Recommendations = []string{}
	}
	c.Differential = make([]schema.DifferentialItem, 0, len(wc.Differential))
	for _, d := range wc.Differential {
		if d.Condition == "" {
			continue
		}
		c.Differential = append(c.Differential, schema.DifferentialItem{
			Condition:      d.Condition,
			Probability:    clampPercent(d.Probability),
			Recommendation: d.Recommendation,
		})
	}
	if c.Summary == "" {
		c.Summary = truncate(strings.TrimSpace(raw), 200)
	}
	return c
}

var (
	severityFieldRe = regexp.MustCompile(`(?i)"?severity"?\s*[:=]\s*"?(low|medium|high)`)
	summaryFieldRe  = regexp.MustCompile(`(?i)"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// regexExtract is the last recovery layer before raw-text defaults: pull the
// severity and summary fields out of broken JSON with regular expressions.
// It succeeds only when a severity label is recognizable; otherwise the
// response carries no structured signal at all.
func regexExtract(cleaned, raw string, latencyMs int64) (schema.ParsedCandidate, bool) {
	m := severityFieldRe.FindStringSubmatch(cleaned)
	if m == nil {
		return schema.ParsedCandidate{}, false
	}
	c := schema.ParsedCandidate{
		Symptoms:        []string{},
		Severity:        normalizeSeverity(m[1]),
		Differential:    []schema.DifferentialItem{},
		Recommendations: []string{},
		RawText:         raw,
		LatencyMs:       latencyMs,
	}
	if sm := summaryFieldRe.FindStringSubmatch(cleaned); sm != nil {
		c.Summary = sm[1]
	} else {
		c.Summary = truncate(strings.TrimSpace(raw), 200)
	}
	return c, true
}

// normalizeSeverity maps arbitrary severity text onto the enum, defaulting
// to medium per the error-handling contract.
func normalizeSeverity(s string) schema.Severity {
	switch schema.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case schema.SeverityLow:
		return schema.SeverityLow
	case schema.SeverityHigh:
		return schema.SeverityHigh
	default:
		return schema.SeverityMedium
	}
}

func clampPercent(p float64) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
