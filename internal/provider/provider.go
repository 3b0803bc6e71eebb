// Package provider defines the pluggable model-provider registry. The core
// treats providers as opaque capabilities; concrete integrations register
// themselves at startup based on configuration.
package provider

import (
	"context"
	"sort"
	"sync"
)

// Generator produces text completions.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder produces vector embeddings.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Info describes one registered provider and its capabilities.
type Info struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Registry holds the active providers keyed by name. Registration happens
// during startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu           sync.RWMutex
	generators   map[string]Generator
	embedders    map[string]Embedder
	synthesizers map[string]Synthesizer
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators:   make(map[string]Generator),
		embedders:    make(map[string]Embedder),
		synthesizers: make(map[string]Synthesizer),
	}
}

// RegisterGenerator adds a text generation provider.
func (r *Registry) RegisterGenerator(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Name()] = g
}

// RegisterEmbedder adds an embedding provider.
func (r *Registry) RegisterEmbedder(e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[e.Name()] = e
}

// RegisterSynthesizer adds a speech provider.
func (r *Registry) RegisterSynthesizer(s Synthesizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesizers[s.Name()] = s
}

// Generator returns the named generation provider.
func (r *Registry) Generator(name string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	return g, ok
}

// Embedder returns the named embedding provider.
func (r *Registry) Embedder(name string) (Embedder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embedders[name]
	return e, ok
}

// Synthesizer returns the named speech provider.
func (r *Registry) Synthesizer(name string) (Synthesizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.synthesizers[name]
	return s, ok
}

// List reports every registered provider with its capability set, sorted by
// name for stable output.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capabilities := make(map[string][]string)
	for name := range r.generators {
		capabilities[name] = append(capabilities[name], "generate")
	}
	for name := range r.embedders {
		capabilities[name] = append(capabilities[name], "embed")
	}
	for name := range r.synthesizers {
		capabilities[name] = append(capabilities[name], "synthesize")
	}

	infos := make([]Info, 0, len(capabilities))
	for name, caps := range capabilities {
		sort.Strings(caps)
		infos = append(infos, Info{Name: name, Capabilities: caps})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
