package casestore

import (
	"testing"

	"github.com/aegis-clinical/triage/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(severity schema.Severity) schema.HybridAnalysisResult {
	return schema.HybridAnalysisResult{
		Symptoms:   []string{"chest pain"},
		Severity:   severity,
		Summary:    "Possible acute coronary syndrome",
		Source:     schema.SourceEdge,
		Confidence: 0.91,
	}
}

func TestArchiveAndList(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Archive("crushing chest pain", sampleResult(schema.SeverityHigh))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if id == "" {
		t.Fatal("Archive returned an empty id")
	}

	list, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d records, want 1", len(list))
	}
	got := list[0]
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if got.Query != "crushing chest pain" {
		t.Errorf("Query = %q", got.Query)
	}
	if got.Severity != schema.SeverityHigh {
		t.Errorf("Severity = %q", got.Severity)
	}
	if got.Result.Summary != "Possible acute coronary syndrome" {
		t.Errorf("round-tripped result lost its summary: %+v", got.Result)
	}
}

func TestList_Limit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Archive("mild cough", sampleResult(schema.SeverityLow)); err != nil {
			t.Fatalf("Archive: %v", err)
		}
	}
	list, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List(2) returned %d records", len(list))
	}
}

func TestList_Empty(t *testing.T) {
	s := openTestStore(t)
	list, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List on empty store returned %d records", len(list))
	}
}

func TestArchive_DistinctIDs(t *testing.T) {
	s := openTestStore(t)
	a, err := s.Archive("fever", sampleResult(schema.SeverityMedium))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	b, err := s.Archive("fever", sampleResult(schema.SeverityMedium))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if a == b {
		t.Error("two archives produced the same case id")
	}
}
