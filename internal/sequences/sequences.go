// Package sequences holds the built-in outreach sequence table.
// The table is decoded once from the embedded YAML and never mutated afterwards.
package sequences

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"webstar/noturno-leadfinder-worker/internal/dto"

	"gopkg.in/yaml.v3"
)

// Well-known sequence keys
const (
	SaaSDemo          = "saas_demo"
	LocalBusiness     = "local_business"
	FreelanceServices = "freelance_services"
	// Closing is the single-step sequence sent after a positive-intent reply
	Closing = "closing"
)

//go:embed sequences.yaml
var sequencesYAML []byte

// Table is a read-only set of sequences keyed by name
type Table struct {
	byKey map[string]dto.Sequence
}

type document struct {
	Sequences map[string]dto.Sequence `yaml:"sequences"`
}

var (
	defaultTable     *Table
	defaultTableErr  error
	defaultTableOnce sync.Once
)

// Default returns the embedded sequence table, decoded once per process
func Default() (*Table, error) {
	defaultTableOnce.Do(func() {
		defaultTable, defaultTableErr = Parse(sequencesYAML)
	})
	return defaultTable, defaultTableErr
}

// Parse decodes and validates a sequence document
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sequences: %w", err)
	}

	t := &Table{byKey: make(map[string]dto.Sequence, len(doc.Sequences))}
	for key, seq := range doc.Sequences {
		if len(seq.Steps) == 0 {
			return nil, fmt.Errorf("sequence %q has no steps", key)
		}
		sort.SliceStable(seq.Steps, func(i, j int) bool {
			return seq.Steps[i].Position < seq.Steps[j].Position
		})
		for i, step := range seq.Steps {
			if step.Position != i+1 {
				return nil, fmt.Errorf("sequence %q: step positions must be 1..%d, got %d", key, len(seq.Steps), step.Position)
			}
			if step.DelayDays < 0 {
				return nil, fmt.Errorf("sequence %q step %d: negative delay", key, step.Position)
			}
		}
		seq.Key = key
		t.byKey[key] = seq
	}
	return t, nil
}

// Get returns a copy of the named sequence
func (t *Table) Get(name string) (dto.Sequence, bool) {
	seq, ok := t.byKey[name]
	if !ok {
		return dto.Sequence{}, false
	}
	seq.Steps = append([]dto.SequenceStep(nil), seq.Steps...)
	return seq, true
}

// Names returns the sequence keys in sorted order
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byKey))
	for name := range t.byKey {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns copies of every sequence, sorted by key
func (t *Table) All() []dto.Sequence {
	names := t.Names()
	out := make([]dto.Sequence, 0, len(names))
	for _, name := range names {
		seq, _ := t.Get(name)
		out = append(out, seq)
	}
	return out
}
