package provider

import (
	"errors"
	"fmt"
)

// Registry resolves provider-prefixed model identifiers to backends.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry returns an empty registry whose unprefixed models route to the
// provider named fallback.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		fallback:  fallback,
	}
}

// Register adds a provider under its Name. Registering the same name twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Route resolves a model identifier to its provider and bare model name.
// "ollama:qwen3-30b" routes to the "ollama" provider with model "qwen3-30b".
// Identifiers whose prefix is not a registered provider, including Ollama
// tag forms like "llama3:8b", route whole to the fallback provider.
func (r *Registry) Route(model string) (Provider, string, error) {
	if model == "" {
		return nil, "", errors.New("model must not be empty")
	}

	if prefix, bare := ParseModel(model); prefix != "" {
		if p, ok := r.providers[prefix]; ok {
			return p, bare, nil
		}
	}

	p, ok := r.providers[r.fallback]
	if !ok {
		return nil, "", fmt.Errorf("no provider for model %q and no fallback registered", model)
	}
	return p, model, nil
}
