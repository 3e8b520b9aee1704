package engine

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultModel is used when a circuit does not name a simulation model.
const DefaultModel = "default"

// Model holds the biophysical parameters of a cell. Every cell has the same
// set of sections; section 0 is the soma and every other section is coupled
// to it.
//
// Units: capacitance nF, conductances uS, potentials mV, time ms, currents nA.
type Model struct {
	Name             string   `yaml:"name"`
	Sections         []string `yaml:"sections"`
	Capacitance      float64  `yaml:"capacitance"`
	LeakConductance  float64  `yaml:"leakConductance"`
	RestingPotential float64  `yaml:"restingPotential"`
	Threshold        float64  `yaml:"threshold"`
	ResetPotential   float64  `yaml:"resetPotential"`
	Coupling         float64  `yaml:"coupling"`
	SynapseTau       float64  `yaml:"synapseTau"`
	SynapseWeight    float64  `yaml:"synapseWeight"`
}

func (m Model) validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if len(m.Sections) == 0 {
		return fmt.Errorf("model %s: at least one section is required", m.Name)
	}
	seen := make(map[string]bool, len(m.Sections))
	for _, s := range m.Sections {
		if seen[s] {
			return fmt.Errorf("model %s: duplicate section %q", m.Name, s)
		}
		seen[s] = true
	}
	if m.Capacitance <= 0 {
		return fmt.Errorf("model %s: capacitance must be positive", m.Name)
	}
	if m.LeakConductance < 0 || m.Coupling < 0 {
		return fmt.Errorf("model %s: conductances must not be negative", m.Name)
	}
	if m.Threshold <= m.ResetPotential {
		return fmt.Errorf("model %s: threshold must be above reset potential", m.Name)
	}
	if m.SynapseTau <= 0 {
		return fmt.Errorf("model %s: synapseTau must be positive", m.Name)
	}
	return nil
}

func (m Model) sectionIndex(name string) (int, bool) {
	for i, s := range m.Sections {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

var builtinModels = []Model{
	{
		Name:             DefaultModel,
		Sections:         []string{"soma[0]", "dend[0]", "dend[1]", "apic[0]", "axon[0]"},
		Capacitance:      0.1,
		LeakConductance:  0.01,
		RestingPotential: -70,
		Threshold:        -50,
		ResetPotential:   -65,
		Coupling:         0.02,
		SynapseTau:       2,
		SynapseWeight:    0.5,
	},
	{
		Name:             "point",
		Sections:         []string{"soma[0]"},
		Capacitance:      0.2,
		LeakConductance:  0.01,
		RestingPotential: -65,
		Threshold:        -52,
		ResetPotential:   -68,
		SynapseTau:       5,
		SynapseWeight:    0.3,
	},
}

// Registry maps simulation model names to their parameters.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry returns a registry holding the built-in models.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Model)}
	for _, m := range builtinModels {
		r.models[m.Name] = m
	}
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(m Model) error {
	if err := m.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name] = m
	return nil
}

// Lookup returns the named model. An empty name selects DefaultModel.
func (r *Registry) Lookup(name string) (Model, error) {
	if name == "" {
		name = DefaultModel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type modelFile struct {
	Models []Model `yaml:"models"`
}

// LoadFile registers every model listed in a YAML file of the form
//
//	models:
//	  - name: l5pc
//	    sections: [soma[0], apic[0]]
//	    ...
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse models file: %w", err)
	}
	for _, m := range file.Models {
		if err := r.Register(m); err != nil {
			return fmt.Errorf("invalid model in %s: %w", path, err)
		}
	}
	return nil
}
