package provider

import (
	"fmt"
	"sync"

	"artcache/internal/artifact"
	"artcache/internal/config"
)

// Provider resolves provider-relative paths into artifact handles for one
// remote source.
type Provider interface {
	ID() string
	Resolve(path string) (artifact.Artifact, error)
}

// Factory creates a provider from its configuration. The spool directory is
// where remote providers stage prefetched bytes.
type Factory func(cfg config.ProviderConfig, transfer config.TransferConfig, spoolDir string) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory registers a provider factory by type.
func RegisterFactory(providerType string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[providerType] = factory
}

// New creates a single provider from its configuration.
func New(cfg config.ProviderConfig, transfer config.TransferConfig, spoolDir string) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, cfg.ID)
	}
	return factory(cfg, transfer, spoolDir)
}

// InitializeAll creates all configured providers, keyed by ID.
func InitializeAll(cfgs map[string]config.ProviderConfig, transfer config.TransferConfig, spoolDir string) (map[string]Provider, error) {
	providers := make(map[string]Provider, len(cfgs))
	for id, cfg := range cfgs {
		if cfg.ID == "" {
			cfg.ID = id
		}
		p, err := New(cfg, transfer, spoolDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", id, err)
		}
		providers[id] = p
	}
	return providers, nil
}
