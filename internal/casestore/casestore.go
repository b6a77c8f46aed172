// Package casestore archives finished triage analyses in SQLite. The
// pipeline only writes; reading back is for the history CLI.
package casestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aegis-clinical/triage/internal/schema"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cases (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	severity    TEXT NOT NULL,
	source      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	result_json TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at);
`

// Record is one archived analysis as the history CLI sees it.
type Record struct {
	ID         string
	Query      string
	Severity   schema.Severity
	Source     schema.InferenceSource
	Confidence float64
	Result     schema.HybridAnalysisResult
	CreatedAt  string
}

// Store is a SQLite-backed case archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and ensures the schema exists.
// Creates the parent directory if needed. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("casestore: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("casestore: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("casestore: ping sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("casestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Archive stores a finished analysis and returns the generated case id.
// The query is stored as given; callers scrub PII before archiving.
func (s *Store) Archive(query string, result schema.HybridAnalysisResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("casestore: marshal result: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO cases(id, query, severity, source, confidence, result_json, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		id, query, string(result.Severity), string(result.Source),
		result.Confidence, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("casestore: insert case: %w", err)
	}
	return id, nil
}

// List returns the most recent cases, newest first. A limit of 0 means no
// limit.
func (s *Store) List(limit int) ([]Record, error) {
	q := `SELECT id, query, severity, source, confidence, result_json, created_at
	      FROM cases ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("casestore: list cases: %w", err)
	}
	defer rows.Close()

	var list []Record
	for rows.Next() {
		var r Record
		var severity, source string
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Query, &severity, &source, &r.Confidence, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("casestore: scan case: %w", err)
		}
		r.Severity = schema.Severity(severity)
		r.Source = schema.InferenceSource(source)
		if err := json.Unmarshal(payload, &r.Result); err != nil {
			return nil, fmt.Errorf("casestore: unmarshal result: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("casestore: list cases: %w", err)
	}
	return list, nil
}
