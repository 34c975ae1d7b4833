package candidate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// Definition describes one candidate kind
type Definition struct {
	Kind string
	// Required parameters every configuration of this kind must assign
	Required []string
	New      func(spec models.CandidateSpec) (Adapter, error)
}

// Registry maps candidate kinds to their definitions
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates a registry holding defs
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		r.defs[def.Kind] = def
	}
	return r
}

// Builtins returns the in-process reference candidates
func Builtins() []Definition {
	return []Definition{
		HarnessDefinition("dummy", NewDummy, "p", ParamSeed),
		HarnessDefinition("knn", NewKNN, "k"),
	}
}

// HarnessDefinition wraps a detector factory as a candidate kind
func HarnessDefinition(kind string, factory Factory, required ...string) Definition {
	return Definition{
		Kind:     kind,
		Required: required,
		New: func(spec models.CandidateSpec) (Adapter, error) {
			return NewHarness(spec.Name, factory), nil
		},
	}
}

// ContainerDefinition registers the container kind backed by cli
func ContainerDefinition(cli ContainerClient, tempDir string) Definition {
	return Definition{
		Kind: "container",
		New: func(spec models.CandidateSpec) (Adapter, error) {
			if spec.Image == "" {
				return nil, fmt.Errorf("candidate %s: container kind requires an image", spec.Name)
			}
			return NewContainerAdapter(cli, spec, tempDir), nil
		},
	}
}

// Register adds a definition. Kinds must be unique.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def.Kind == "" || def.New == nil {
		return fmt.Errorf("invalid candidate definition %q", def.Kind)
	}
	if _, ok := r.defs[def.Kind]; ok {
		return fmt.Errorf("candidate kind %s already registered", def.Kind)
	}
	r.defs[def.Kind] = def
	return nil
}

// RegisterDocker adds the container kind backed by a docker client built
// from the environment. The daemon is not contacted until a job runs.
func (r *Registry) RegisterDocker(tempDir string) error {
	cli, err := NewDockerClient()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	return r.Register(ContainerDefinition(cli, tempDir))
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.defs))
	for k := range r.defs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) lookup(kind string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	if !ok {
		return Definition{}, models.Errorf(models.ErrCandidateExecution, "unknown candidate kind %q", kind)
	}
	return def, nil
}

// Build creates the adapter for spec
func (r *Registry) Build(spec models.CandidateSpec) (Adapter, error) {
	def, err := r.lookup(spec.Kind)
	if err != nil {
		return nil, err
	}
	adapter, err := def.New(spec)
	if err != nil {
		return nil, models.WrapError(models.ErrCandidateExecution, err)
	}
	return adapter, nil
}

// Required returns the union of the kind's and the spec's required
// parameters, sorted
func (r *Registry) Required(spec models.CandidateSpec) ([]string, error) {
	def, err := r.lookup(spec.Kind)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(def.Required)+len(spec.Required))
	for _, n := range def.Required {
		set[n] = true
	}
	for _, n := range spec.Required {
		set[n] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// CheckRequired fails with models.ErrInvalidParameterSpec when declared
// names do not cover every required parameter of spec
func (r *Registry) CheckRequired(spec models.CandidateSpec, declared []string) error {
	required, err := r.Required(spec)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(declared))
	for _, n := range declared {
		have[n] = true
	}
	var missing []string
	for _, n := range required {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return models.Errorf(models.ErrInvalidParameterSpec, "candidate %s is missing required parameters %v", spec.Name, missing)
	}
	return nil
}
