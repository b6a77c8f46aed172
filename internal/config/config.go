// Package config loads triage configuration from YAML with sensible
// defaults. API keys are never stored in the file; they come from the
// environment (ANTHROPIC_API_KEY, GOOGLE_API_KEY).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "30s" or "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Edge configures the local OpenAI-compatible inference server.
type Edge struct {
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   float64  `yaml:"temperature"`
	Timeout       Duration `yaml:"timeout"`
	NumCandidates int      `yaml:"num_candidates"`
	MinConfidence float64  `yaml:"min_confidence"`
}

// Cloud configures the remote specialist service.
type Cloud struct {
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	MaxTokens int      `yaml:"max_tokens"`
	Timeout   Duration `yaml:"timeout"`
	// RPS throttles outbound cloud requests. Zero disables throttling.
	RPS float64 `yaml:"rps"`
}

// Config is the full triage configuration.
type Config struct {
	Edge      Edge     `yaml:"edge"`
	Cloud     Cloud    `yaml:"cloud"`
	TopK      int      `yaml:"top_k"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	DBPath    string   `yaml:"db_path"`
	ScrubPII  *bool    `yaml:"scrub_pii"`
	ArchiveDB *bool    `yaml:"archive"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	on := true
	return Config{
		Edge: Edge{
			BaseURL:       "http://localhost:8080/v1",
			Model:         "gemma-3n-e4b-it",
			MaxTokens:     1024,
			Temperature:   0.2,
			Timeout:       Duration(30 * time.Second),
			NumCandidates: 1,
			MinConfidence: 0.70,
		},
		Cloud: Cloud{
			Provider:  "google",
			Model:     "gemini-2.0-flash",
			MaxTokens: 2048,
			Timeout:   Duration(60 * time.Second),
			RPS:       1,
		},
		TopK:      5,
		CacheTTL:  Duration(10 * time.Minute),
		DBPath:    defaultDBPath(),
		ScrubPII:  &on,
		ArchiveDB: &on,
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "triage.db"
	}
	return filepath.Join(home, ".triage", "cases.db")
}

// Load reads a YAML config file and overlays it on the defaults. A missing
// file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML bytes on the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Edge.MinConfidence < 0 || c.Edge.MinConfidence > 1 {
		return fmt.Errorf("config: edge.min_confidence %v out of [0,1]", c.Edge.MinConfidence)
	}
	if c.TopK < 1 {
		return fmt.Errorf("config: top_k must be at least 1, got %d", c.TopK)
	}
	if c.Edge.NumCandidates < 1 {
		return fmt.Errorf("config: edge.num_candidates must be at least 1, got %d", c.Edge.NumCandidates)
	}
	return nil
}

// ScrubEnabled reports whether PII scrubbing is on. Unset means on.
func (c Config) ScrubEnabled() bool { return c.ScrubPII == nil || *c.ScrubPII }

// ArchiveEnabled reports whether finished analyses are archived. Unset means on.
func (c Config) ArchiveEnabled() bool { return c.ArchiveDB == nil || *c.ArchiveDB }
