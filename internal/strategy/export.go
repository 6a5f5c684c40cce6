package strategy

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportedStrategy is one registry entry in an export document.
type ExportedStrategy struct {
	Type       string `yaml:"type" json:"type"`
	Parameters Params `yaml:"parameters" json:"parameters"`
}

// Export is the serialised registry.
type Export struct {
	ExportedAt time.Time                   `yaml:"exported_at" json:"exported_at"`
	Strategies map[string]ExportedStrategy `yaml:"strategies" json:"strategies"`
}

// ImportReport counts the outcome of an import.
type ImportReport struct {
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// ErrEmptyExport is returned when an import document has no strategies.
var ErrEmptyExport = errors.New("export contains no strategies")

// Snapshot captures every strategy's type and parameters.
func (m *Manager) Snapshot() Export {
	doc := Export{
		ExportedAt: time.Now().UTC(),
		Strategies: make(map[string]ExportedStrategy),
	}
	for _, e := range m.entries() {
		doc.Strategies[e.name] = ExportedStrategy{
			Type:       e.strategy.Type(),
			Parameters: e.strategy.Params(),
		}
	}
	return doc
}

// Export serialises the registry as YAML.
func (m *Manager) Export() ([]byte, error) {
	out, err := yaml.Marshal(m.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("export strategies: %w", err)
	}
	return out, nil
}

// Import recreates the strategies of an Export document. Individual
// failures are counted in the report rather than aborting the import.
func (m *Manager) Import(data []byte) (ImportReport, error) {
	var doc Export
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ImportReport{}, fmt.Errorf("import strategies: %w", err)
	}
	if len(doc.Strategies) == 0 {
		return ImportReport{}, ErrEmptyExport
	}

	names := make([]string, 0, len(doc.Strategies))
	for name := range doc.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	var rep ImportReport
	for _, name := range names {
		def := doc.Strategies[name]
		if err := m.Create(def.Type, name, def.Parameters); err != nil {
			rep.Failed++
			if rep.Errors == nil {
				rep.Errors = make(map[string]string)
			}
			rep.Errors[name] = err.Error()
			continue
		}
		rep.Imported++
	}
	m.log.Info("strategies imported", "imported", rep.Imported, "failed", rep.Failed)
	return rep, nil
}

// LoadFile imports strategies from a YAML file on disk.
func (m *Manager) LoadFile(path string) (ImportReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read strategies file: %w", err)
	}
	return m.Import(data)
}
