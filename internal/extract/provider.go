// Package extract turns source text into structured date, entity, title,
// and summary claims via a model provider.
package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/archivist-labs/chronicle/internal/model"
)

// Request carries everything a provider needs for one extraction call.
type Request struct {
	Source *model.Source
	Tasks  model.TaskSet
	Pre    *model.PreprocessingResult
}

// Provider performs one extraction call. Implementations classify their
// failures as transient or permanent so the queue can decide on retries.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req Request) (*model.ExtractionResult, error)
}

// Registry holds named providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name, replacing any previous
// registration.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Errorf("extract: unknown provider %q", name)
	}
	return p, nil
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
