package encoders

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultResultsFile is where probe results are stored unless configured.
const DefaultResultsFile = "encoders.toml"

// Results is the persisted outcome of a capability probe run.
type Results struct {
	Timestamp     string    `toml:"timestamp" json:"timestamp"`
	EngineVersion string    `toml:"engine_version" json:"engine_version"`
	Working       []string  `toml:"working" json:"working"`
	Failed        []Failure `toml:"failed" json:"failed"`
}

// Failure records why an encoder did not pass its probe.
type Failure struct {
	Encoder string `toml:"encoder" json:"encoder"`
	Reason  string `toml:"reason" json:"reason"`
}

// NewResults summarises probe results.
func NewResults(version string, probes []ProbeResult) *Results {
	r := &Results{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: version,
		Working:       []string{},
		Failed:        []Failure{},
	}
	for _, p := range probes {
		if p.Working {
			r.Working = append(r.Working, p.Encoder)
		} else {
			r.Failed = append(r.Failed, Failure{Encoder: p.Encoder, Reason: p.Excerpt})
		}
	}
	return r
}

// Registry builds the registry of working encoders.
func (r *Results) Registry() *Registry {
	return NewRegistry(r.Working)
}

// SaveResults writes results to path as TOML, replacing the file atomically.
func SaveResults(path string, r *Results) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal probe results: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".encoders-*.toml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write probe results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close probe results: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadResults reads probe results written by SaveResults.
func LoadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Results
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &r, nil
}
