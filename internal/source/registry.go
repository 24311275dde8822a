package source

import (
	"fmt"
	"log/slog"
	"net/http"

	"contentmaker/internal/config"
	"contentmaker/internal/ports"
)

// Factory builds a source adapter from its configuration entry.
type Factory func(cfg config.SourceConfig, client *http.Client, logger *slog.Logger) (ports.Source, error)

// Registry keeps a mapping from source kinds to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a factory for the given kind.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Build instantiates a source for the config entry or errors on an unknown kind.
func (r *Registry) Build(cfg config.SourceConfig, client *http.Client, logger *slog.Logger) (ports.Source, error) {
	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("source kind %s is not registered", cfg.Kind)
	}
	return factory(cfg, client, logger)
}
