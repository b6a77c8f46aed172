// Package generate builds augmented inference prompts and reranks parsed
// candidates against the originating query.
package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aegis-clinical/triage/internal/retrieval"
	"github.com/aegis-clinical/triage/internal/schema"
	"github.com/aegis-clinical/triage/internal/taxonomy"
)

// BuildPrompt assembles the single-message edge prompt: system framing,
// retrieval context when available, the patient presentation, and the JSON
// output contract.
func BuildPrompt(symptoms, retrievalContext string) string {
	var sb strings.Builder

	sb.WriteString("You are a clinical triage assistant. Analyze the patient presentation ")
	sb.WriteString("and return an evidence-based differential diagnosis.\n")
	sb.WriteString("Always prioritize life-threatening conditions. Never provide a definitive ")
	sb.WriteString("diagnosis; always recommend professional medical evaluation.\n\n")

	if retrievalContext != "" {
		sb.WriteString("Relevant clinical guidelines:\n")
		sb.WriteString(retrievalContext)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Patient presentation:\n%s\n\n", symptoms)

	sb.WriteString(`Return ONLY a JSON object, no prose outside the JSON:
{
  "symptoms": ["reported symptom", "..."],
  "severity": "low|medium|high",
  "summary": "Brief clinical summary",
  "differential": [
    {"condition": "Condition name", "probability": 0, "recommendation": "Clinical recommendation"}
  ],
  "recommendations": ["Actionable next step", "..."],
  "reasoning": "Key reasoning"
}`)
	return sb.String()
}

// severityWeight biases reranking toward caution: a high-severity candidate
// outscores an otherwise equal low one.
func severityWeight(s schema.Severity) float64 {
	switch s {
	case schema.SeverityHigh:
		return 1.0
	case schema.SeverityMedium:
		return 0.6
	default:
		return 0.3
	}
}

// citationBonus rewards candidates produced from a citation-augmented prompt.
const citationBonus = 0.2

// Score rates one candidate against the query:
// 1.5 * |distinct token overlap between query and candidate symptoms|
// + severity weight + citation bonus.
func Score(query string, c schema.ParsedCandidate, hasCitations bool) float64 {
	queryTokens := make(map[string]bool)
	for _, t := range retrieval.Tokenize(query) {
		queryTokens[t] = true
	}
	overlap := make(map[string]bool)
	for _, symptom := range c.Symptoms {
		for _, t := range retrieval.Tokenize(symptom) {
			if queryTokens[t] {
				overlap[t] = true
			}
		}
	}

	score := 1.5*float64(len(overlap)) + severityWeight(c.Severity)
	if hasCitations {
		score += citationBonus
	}
	return score
}

// Rerank sorts candidates by descending score. The input slice is not
// modified. Ties keep the earlier candidate first, so generation order is a
// stable tiebreak.
func Rerank(query string, candidates []schema.ParsedCandidate, hasCitations bool) []schema.ParsedCandidate {
	ranked := make([]schema.ParsedCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(query, ranked[i], hasCitations) > Score(query, ranked[j], hasCitations)
	})
	return ranked
}

// SelectBest returns the winning candidate after reranking. A top candidate
// claiming high severity must be backed by recognized red-flag text; when it
// is not, the highest-scoring non-high candidate is substituted. When every
// candidate is high, the top one stands.
func SelectBest(query string, candidates []schema.ParsedCandidate, hasCitations bool, kw *taxonomy.Keywords) (schema.ParsedCandidate, bool) {
	if len(candidates) == 0 {
		return schema.ParsedCandidate{}, false
	}
	if kw == nil {
		kw = taxonomy.Default()
	}
	ranked := Rerank(query, candidates, hasCitations)

	top := ranked[0]
	if top.Severity == schema.SeverityHigh && !highSeverityAllowed(kw, top, query) {
		for _, c := range ranked[1:] {
			if c.Severity != schema.SeverityHigh {
				return c, true
			}
		}
	}
	return top, true
}

// highSeverityAllowed checks the candidate and query text for any recognized
// red flag.
func highSeverityAllowed(kw *taxonomy.Keywords, c schema.ParsedCandidate, query string) bool {
	return kw.CountRedFlags(c.Symptoms, c.Summary+" "+query) > 0
}
