package runtime

import (
	"fmt"
	"sync"
)

// Kind is the strategy one job kind plugs into the shared orchestration
// engine: parameter normalization (defaults, canonicalization, validation),
// the job body, and the location of the downloadable artifact.
type Kind interface {
	Name() string
	// Normalize validates raw user parameters and returns the canonical
	// parameter map that gets fingerprinted. Validation failures wrap
	// errors.ErrInvalidArgument and never create a job record.
	Normalize(params map[string]any) (map[string]any, error)
	// Run executes the job body. A returned error fails the job; a nil
	// return requires Run to have called jc.Complete.
	Run(jc *Context) error
	// Artifact names the job's result file relative to the results root,
	// with its media type.
	Artifact(uid string) (relpath string, mediaType string)
}

type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

func (r *Registry) Register(k Kind) error {
	if k == nil {
		return fmt.Errorf("nil kind")
	}
	name := k.Name()
	if name == "" {
		return fmt.Errorf("kind Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("kind already registered: %s", name)
	}
	r.kinds[name] = k
	return nil
}

func (r *Registry) Get(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		out = append(out, name)
	}
	return out
}
