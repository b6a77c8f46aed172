// Package taxonomy holds the tiered red-flag keyword tables and the matching
// logic used by severity calibration. All functions are pure; the tables are
// loaded once from an embedded YAML rule file.
package taxonomy

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// Keywords is one loaded set of keyword tables. The zero value is unusable;
// obtain one from Default or Load.
type Keywords struct {
	Tier1       []string `yaml:"tier1"`
	Tier2       []string `yaml:"tier2"`
	Tier3       []string `yaml:"tier3"`
	Minor       []string `yaml:"minor"`
	LowSeverity []string `yaml:"low_severity"`
	Urgent      []string `yaml:"urgent"`
}

var (
	defaultOnce sync.Once
	defaultKW   *Keywords
)

// Default returns the built-in keyword tables, parsed once per process.
func Default() *Keywords {
	defaultOnce.Do(func() {
		kw, err := Load(keywordsYAML)
		if err != nil {
			panic(fmt.Sprintf("taxonomy: embedded keywords.yaml: %v", err))
		}
		defaultKW = kw
	})
	return defaultKW
}

// Load parses a keyword rule file. Every table must be non-empty.
func Load(data []byte) (*Keywords, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return nil, fmt.Errorf("taxonomy: parse rules: %w", err)
	}
	for name, table := range map[string][]string{
		"tier1": kw.Tier1, "tier2": kw.Tier2, "tier3": kw.Tier3,
		"minor": kw.Minor, "low_severity": kw.LowSeverity, "urgent": kw.Urgent,
	} {
		if len(table) == 0 {
			return nil, fmt.Errorf("taxonomy: rule table %q is empty", name)
		}
	}
	return &kw, nil
}

// CombinedText lowercases and joins the symptom list and summary into the
// single string all matchers operate on.
func CombinedText(symptoms []string, summary string) string {
	return strings.ToLower(strings.Join(symptoms, " ") + " " + summary)
}

// containsAny reports whether text contains at least one keyword.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// matched returns the distinct keywords from the table found in text.
func matched(text string, keywords []string) []string {
	var hits []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

// HasTier1Flags reports any Tier-1 (life-threatening) keyword match.
func (kw *Keywords) HasTier1Flags(symptoms []string, summary string) bool {
	return containsAny(CombinedText(symptoms, summary), kw.Tier1)
}

// HasTier2Flags reports any Tier-2 (serious) keyword match.
func (kw *Keywords) HasTier2Flags(symptoms []string, summary string) bool {
	return containsAny(CombinedText(symptoms, summary), kw.Tier2)
}

// HasTier3Flags reports any Tier-3 (moderate-risk) keyword match.
func (kw *Keywords) HasTier3Flags(symptoms []string, summary string) bool {
	return containsAny(CombinedText(symptoms, summary), kw.Tier3)
}

// HasLowSeverityMarkers reports whether softening language is present.
func (kw *Keywords) HasLowSeverityMarkers(symptoms []string, summary string) bool {
	return containsAny(CombinedText(symptoms, summary), kw.LowSeverity)
}

// HasUrgentButStable reports an urgent-but-stable keyword match.
func (kw *Keywords) HasUrgentButStable(symptoms []string, summary string) bool {
	return containsAny(CombinedText(symptoms, summary), kw.Urgent)
}

// HasOnlyMinorSymptoms is true iff no red flag of any tier matched, no
// urgent-but-stable keyword matched, and at least one minor marker matched.
func (kw *Keywords) HasOnlyMinorSymptoms(symptoms []string, summary string) bool {
	text := CombinedText(symptoms, summary)
	if containsAny(text, kw.Tier1) || containsAny(text, kw.Tier2) || containsAny(text, kw.Tier3) {
		return false
	}
	if containsAny(text, kw.Urgent) {
		return false
	}
	return containsAny(text, kw.Minor)
}

// CountRedFlags counts distinct matched red-flag keywords across all three
// tiers. A keyword appearing in more than one tier is counted once.
func (kw *Keywords) CountRedFlags(symptoms []string, summary string) int {
	text := CombinedText(symptoms, summary)
	seen := make(map[string]bool)
	for _, table := range [][]string{kw.Tier1, kw.Tier2, kw.Tier3} {
		for _, k := range matched(text, table) {
			seen[k] = true
		}
	}
	return len(seen)
}

// MatchedRedFlags returns the distinct matched red-flag keywords in table
// order, Tier 1 first. Used for gate decisions and reason strings.
func (kw *Keywords) MatchedRedFlags(symptoms []string, summary string) []string {
	text := CombinedText(symptoms, summary)
	seen := make(map[string]bool)
	var flags []string
	for _, table := range [][]string{kw.Tier1, kw.Tier2, kw.Tier3} {
		for _, k := range matched(text, table) {
			if !seen[k] {
				seen[k] = true
				flags = append(flags, k)
			}
		}
	}
	return flags
}

// Age extraction patterns: "45-year-old", "45 year old", "age 45", "age: 45",
// "45 years old", "45yo".
var ageRes = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,3})[- ]year[- ]old`),
	regexp.MustCompile(`(\d{1,3})\s*years?\s+old`),
	regexp.MustCompile(`age[:\s]+(\d{1,3})`),
	regexp.MustCompile(`(\d{1,3})\s*y/?o\b`),
}

// ExtractAge scans text for an age mention. The second return is false when
// no pattern matched or the matched number is not a plausible age.
func ExtractAge(text string) (int, bool) {
	lower := strings.ToLower(text)
	for _, re := range ageRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			age, err := strconv.Atoi(m[1])
			if err != nil || age > 120 {
				continue
			}
			return age, true
		}
	}
	return 0, false
}

// AgeRiskAdjustment maps an age to a severity risk adjustment:
// under 2 and 75+ are highest risk (+2), 2-5 and 65-74 elevated (+1).
func AgeRiskAdjustment(age int) int {
	switch {
	case age < 2:
		return 2
	case age <= 5:
		return 1
	case age >= 75:
		return 2
	case age >= 65:
		return 1
	default:
		return 0
	}
}
