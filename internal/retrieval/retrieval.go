// Package retrieval ranks a fixed clinical-guideline corpus against a query
// using BM25 and produces citation context for prompt augmentation.
package retrieval

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aegis-clinical/triage/internal/schema"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	k1 = 1.5
	b  = 0.75
)

// DefaultTopK is the number of citations returned when the caller does not
// specify one.
const DefaultTopK = 5

// snippetLen is the maximum citation snippet length in characters.
const snippetLen = 400

//go:embed corpus.yaml
var corpusYAML []byte

type corpusFile struct {
	Documents []schema.RetrievalDocument `yaml:"documents"`
}

// Result pairs the ranked citations with a newline-joined context block used
// to augment downstream prompts.
type Result struct {
	Citations []schema.Citation
	Context   string
}

// Index is a BM25 index over an immutable document corpus. The IDF table is
// built lazily on first query and cached for the lifetime of the Index;
// rebuilding it is idempotent.
type Index struct {
	docs []schema.RetrievalDocument

	once   sync.Once
	idf    map[string]float64
	tokens [][]string
	avgdl  float64
}

// NewIndex builds an index over docs. The slice is retained and must not be
// mutated by the caller.
func NewIndex(docs []schema.RetrievalDocument) *Index {
	return &Index{docs: docs}
}

var (
	defaultOnce  sync.Once
	defaultIndex *Index
)

// DefaultIndex returns the process-wide index over the embedded
// clinical-guideline corpus.
func DefaultIndex() *Index {
	defaultOnce.Do(func() {
		docs, err := loadCorpus(corpusYAML)
		if err != nil {
			panic(fmt.Sprintf("retrieval: embedded corpus.yaml: %v", err))
		}
		defaultIndex = NewIndex(docs)
	})
	return defaultIndex
}

// loadCorpus parses the embedded corpus file.
func loadCorpus(data []byte) ([]schema.RetrievalDocument, error) {
	var cf corpusFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if len(cf.Documents) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}
	return cf.Documents, nil
}

// Documents returns the corpus backing the index.
func (ix *Index) Documents() []schema.RetrievalDocument { return ix.docs }

// Tokenize lowercases s, strips non-alphanumeric characters, and splits it
// into tokens. Exported because the OOD detector shares the tokenization.
func Tokenize(s string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return strings.Fields(sb.String())
}

// build tokenizes every document and computes the IDF table:
// idf(t) = ln((N+1)/(df(t)+1)) + 1.
func (ix *Index) build() {
	n := len(ix.docs)
	ix.tokens = make([][]string, n)
	df := make(map[string]int)
	var totalLen int
	for i, d := range ix.docs {
		toks := Tokenize(d.Text)
		ix.tokens[i] = toks
		totalLen += len(toks)
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	ix.idf = make(map[string]float64, len(df))
	for t, d := range df {
		ix.idf[t] = math.Log(float64(n+1)/float64(d+1)) + 1
	}
	if n > 0 {
		ix.avgdl = float64(totalLen) / float64(n)
	}
}

// Search returns the top k documents for query, sorted by descending BM25
// score with document ID as a deterministic tiebreak. k <= 0 selects
// DefaultTopK. Documents with zero score are omitted.
func (ix *Index) Search(query string, k int) Result {
	ix.once.Do(ix.build)
	if k <= 0 {
		k = DefaultTopK
	}

	qTokens := Tokenize(query)

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i := range ix.docs {
		s := ix.scoreDoc(qTokens, i)
		if s > 0 {
			hits = append(hits, scored{idx: i, score: s})
		}
	}
	sort.Slice(hits, func(a, c int) bool {
		if hits[a].score != hits[c].score {
			return hits[a].score > hits[c].score
		}
		return ix.docs[hits[a].idx].ID < ix.docs[hits[c].idx].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	res := Result{}
	var ctx []string
	for _, h := range hits {
		d := ix.docs[h.idx]
		c := schema.Citation{
			ID:       d.ID,
			Source:   d.Source,
			Snippet:  truncate(d.Text, snippetLen),
			Score:    h.score,
			Metadata: d.Metadata,
		}
		res.Citations = append(res.Citations, c)
		ctx = append(ctx, fmt.Sprintf("Source %s (score %.2f): %s", c.ID, c.Score, c.Snippet))
	}
	res.Context = strings.Join(ctx, "\n")
	return res
}

// scoreDoc computes the BM25 score of document i against the query tokens.
func (ix *Index) scoreDoc(qTokens []string, i int) float64 {
	docToks := ix.tokens[i]
	dl := float64(len(docToks))

	tf := make(map[string]int, len(docToks))
	for _, t := range docToks {
		tf[t]++
	}

	var score float64
	counted := make(map[string]bool, len(qTokens))
	for _, qt := range qTokens {
		if counted[qt] {
			continue
		}
		counted[qt] = true
		f := float64(tf[qt])
		if f == 0 {
			continue
		}
		idf := ix.idf[qt]
		score += idf * (f * (k1 + 1)) / (f + k1*(1-b+b*dl/ix.avgdl))
	}
	return score
}

// truncate cuts s to at most n bytes without splitting a word when possible.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}
