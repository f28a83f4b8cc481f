package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

// WithConfig attaches provider settings used when building that provider's adapter.
func (r *Registry) WithConfig(cfg domain.AdapterConfig) *Registry {
	if r == nil {
		return nil
	}
	provider := normalize(cfg.Provider)
	if provider == "" {
		return r
	}
	cfg.Provider = provider
	r.configs[provider] = cfg
	return r
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// Providers lists registered provider names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for provider := range r.factories {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

// Adapter builds the adapter for provider with its registered settings.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	cfg, ok := r.configs[provider]
	if !ok {
		cfg = domain.AdapterConfig{Provider: provider}
	}
	return r.NewAdapter(provider, cfg)
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
