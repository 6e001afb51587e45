package gateway

import (
	"sort"
	"strings"

	"github.com/smallbiznis/levy/internal/gateway/domain"
)

type Registry struct {
	gateways map[string]domain.Gateway
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	registry := &Registry{gateways: map[string]domain.Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := normalizeProvider(gw.Provider())
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gw
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.gateways[normalizeProvider(provider)]
	return ok
}

func (r *Registry) Get(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrUnknownProvider
	}
	gw, ok := r.gateways[normalizeProvider(provider)]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return gw, nil
}

// Verifier returns the provider's Verifier, if it implements one.
func (r *Registry) Verifier(provider string) (domain.Verifier, error) {
	gw, err := r.Get(provider)
	if err != nil {
		return nil, err
	}
	verifier, ok := gw.(domain.Verifier)
	if !ok {
		return nil, domain.ErrVerifyUnsupported
	}
	return verifier, nil
}

// Forget releases a settled reference on providers that retain outcomes.
func (r *Registry) Forget(provider string, reference string) {
	gw, err := r.Get(provider)
	if err != nil {
		return
	}
	if forgetter, ok := gw.(domain.Forgetter); ok {
		forgetter.Forget(reference)
	}
}

// Pending collects the waiting checkouts of every provider that lists them,
// ordered by reference.
func (r *Registry) Pending() []domain.Checkout {
	if r == nil {
		return nil
	}
	out := make([]domain.Checkout, 0)
	for provider, gw := range r.gateways {
		lister, ok := gw.(domain.PendingLister)
		if !ok {
			continue
		}
		for _, checkout := range lister.Pending() {
			if checkout.Provider == "" {
				checkout.Provider = provider
			}
			out = append(out, checkout)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.gateways))
	for provider := range r.gateways {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
