package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aristath/custodian/internal/domain"
)

// Tables is the on-disk YAML document holding the two static tables the
// engine consumes: provider priorities (metadata tie-breaks) and crash
// scenarios (security type -> severity).
type Tables struct {
	Providers []ProviderPriority `yaml:"providers"`
	Scenarios []ScenarioRow      `yaml:"scenarios"`
}

// ProviderPriority assigns a tie-break priority to one upstream provider.
// Higher wins. Priorities affect metadata selection only, never quantities.
type ProviderPriority struct {
	ID       string `yaml:"id"`
	Priority int    `yaml:"priority"`
}

// ScenarioRow maps one security type to a named crash scenario.
type ScenarioRow struct {
	SecurityType string  `yaml:"security_type"`
	Scenario     string  `yaml:"scenario"`
	Severity     float64 `yaml:"severity"`
}

// LoadTables reads the YAML tables file and expands environment variables.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var t Tables
	if err := yaml.Unmarshal([]byte(expanded), &t); err != nil {
		return nil, fmt.Errorf("parse tables yaml: %w", err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate tables: %w", err)
	}

	return &t, nil
}

// Validate checks both tables for structural problems. A missing or invalid
// scenario table is the one fatal startup condition: the risk engine cannot
// operate with under-specified severities.
func (t *Tables) Validate() error {
	if len(t.Scenarios) == 0 {
		return fmt.Errorf("scenario table is empty")
	}

	seenProviders := make(map[string]bool, len(t.Providers))
	for _, p := range t.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider priority with empty id")
		}
		if seenProviders[p.ID] {
			return fmt.Errorf("duplicate provider priority for %q", p.ID)
		}
		seenProviders[p.ID] = true
	}

	seenTypes := make(map[string]bool, len(t.Scenarios))
	for _, s := range t.Scenarios {
		st := domain.SecurityType(s.SecurityType)
		if !st.Valid() {
			return fmt.Errorf("scenario row references unknown security type %q", s.SecurityType)
		}
		if seenTypes[s.SecurityType] {
			return fmt.Errorf("duplicate scenario row for %q", s.SecurityType)
		}
		seenTypes[s.SecurityType] = true
		if s.Scenario == "" {
			return fmt.Errorf("scenario name missing for %q", s.SecurityType)
		}
		if s.Severity < 0 || s.Severity > 1 {
			return fmt.Errorf("severity for %q out of range [0,1]: %f", s.SecurityType, s.Severity)
		}
	}

	return nil
}

// PrioritySnapshot is an immutable view of the provider priority table.
// Consolidation runs hold the snapshot they started with; reloads produce a
// new snapshot and never mutate one that is already handed out.
type PrioritySnapshot struct {
	priorities map[string]int
	loadedAt   time.Time
}

// Priority returns the tie-break priority for a provider. Unlisted providers
// get 0, so any configured provider outranks them.
func (s *PrioritySnapshot) Priority(providerID string) int {
	if s == nil {
		return 0
	}
	return s.priorities[providerID]
}

// Providers returns a copy of the priority map, for display surfaces.
func (s *PrioritySnapshot) Providers() map[string]int {
	if s == nil {
		return map[string]int{}
	}
	out := make(map[string]int, len(s.priorities))
	for id, p := range s.priorities {
		out[id] = p
	}
	return out
}

// LoadedAt returns when the snapshot was built.
func (s *PrioritySnapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

func newPrioritySnapshot(rows []ProviderPriority) *PrioritySnapshot {
	m := make(map[string]int, len(rows))
	for _, r := range rows {
		m[r.ID] = r.Priority
	}
	return &PrioritySnapshot{priorities: m, loadedAt: time.Now()}
}

// PriorityTable holds the current priority snapshot and supports hot reload
// from the tables file. Readers always see a complete snapshot, never a
// partially applied reload.
type PriorityTable struct {
	path    string
	current atomic.Pointer[PrioritySnapshot]
}

// NewPriorityTable builds a table from already-loaded rows, remembering the
// file path for later reloads.
func NewPriorityTable(path string, rows []ProviderPriority) *PriorityTable {
	t := &PriorityTable{path: path}
	t.current.Store(newPrioritySnapshot(rows))
	return t
}

// Snapshot returns the current immutable snapshot.
func (t *PriorityTable) Snapshot() *PrioritySnapshot {
	return t.current.Load()
}

// Reload re-reads the tables file and swaps in a new snapshot. In-flight
// consolidations keep the snapshot they were started with.
func (t *PriorityTable) Reload() error {
	tables, err := LoadTables(t.path)
	if err != nil {
		return err
	}
	t.current.Store(newPrioritySnapshot(tables.Providers))
	return nil
}
