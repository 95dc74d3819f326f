package stage

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds a stage from its command-line style argument list.
// It is the parameter analysis path: the engine re-invokes it with new
// arguments when a stage is restarted with a replacement parameter list.
type Factory func(args []string, logger *slog.Logger) (Stage, error)

// Registry maps stage names to factories, one namespace per stage type.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]map[string]Factory
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[Type]map[string]Factory{
			TypeInput:  {},
			TypeFilter: {},
			TypeOutput: {},
		},
	}
}

// Register adds a factory. Registering the same name twice panics: it is
// a programming error in the builtin stage tables.
func (r *Registry) Register(typ Type, name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[typ][name]; dup {
		panic(fmt.Sprintf("stage: duplicate %s stage %q", typ, name))
	}
	r.factories[typ][name] = f
}

// Build creates a stage instance, validating that the built stage
// implements the interface its type requires.
func (r *Registry) Build(typ Type, name string, args []string, logger *slog.Logger) (Stage, error) {
	r.mu.RLock()
	f, ok := r.factories[typ][name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stage: unknown %s stage %q", typ, name)
	}

	s, err := f(args, logger)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", name, err)
	}

	switch typ {
	case TypeInput:
		if _, ok := s.(Input); !ok {
			return nil, fmt.Errorf("stage %q is not an input", name)
		}
	case TypeFilter:
		if _, ok := s.(Filter); !ok {
			return nil, fmt.Errorf("stage %q is not a filter", name)
		}
	case TypeOutput:
		if _, ok := s.(Output); !ok {
			return nil, fmt.Errorf("stage %q is not an output", name)
		}
	}
	return s, nil
}

// Names returns the sorted registered names for one stage type.
func (r *Registry) Names(typ Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories[typ]))
	for name := range r.factories[typ] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
