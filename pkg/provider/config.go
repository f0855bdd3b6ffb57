package provider

import (
	"fmt"

	"github.com/papercomputeco/relay/pkg/config"
)

// FromConfig builds a Registry from the configured providers.
func FromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry(cfg.DefaultProvider)

	for name, pc := range cfg.Providers {
		switch pc.Kind {
		case config.KindOllama:
			reg.Register(NewOllama(name, pc.BaseURL))
		case config.KindOpenAI, "":
			reg.Register(NewOpenAI(name, pc.BaseURL, pc.ResolveAPIKey()))
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", name, pc.Kind)
		}
	}

	return reg, nil
}

// EmbedderFromConfig resolves the configured embedding model to a backend
// that supports embeddings, returning the backend and the bare model name.
func EmbedderFromConfig(cfg *config.Config, reg *Registry) (Embedder, string, error) {
	if cfg.Embedding.Model == "" {
		return nil, "", fmt.Errorf("no embedding model configured")
	}

	p, bare, err := reg.Route(cfg.Embedding.Model)
	if err != nil {
		return nil, "", err
	}

	emb, ok := p.(Embedder)
	if !ok {
		return nil, "", fmt.Errorf("provider %q does not support embeddings", p.Name())
	}
	return emb, bare, nil
}
