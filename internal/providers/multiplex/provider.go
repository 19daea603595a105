// internal/providers/multiplex/provider.go
// Package multiplex routes provider calls based on the model identifier.
package multiplex

import (
	"context"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/providers"
)

// Provider delegates calls to an underlying provider chosen by providers.Resolve.
type Provider struct {
	providers map[string]providers.StreamProvider
}

// New constructs a Provider from a map of provider name to implementation.
// Providers without configured credentials are simply absent from the map.
func New(providerMap map[string]providers.StreamProvider) *Provider {
	copied := make(map[string]providers.StreamProvider, len(providerMap))
	for name, provider := range providerMap {
		if provider != nil {
			copied[name] = provider
		}
	}
	return &Provider{providers: copied}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "multiplex" }

// Has reports whether a provider is registered under name.
func (p *Provider) Has(name string) bool {
	_, ok := p.providers[name]
	return ok
}

// StreamPrompt routes a prompt request to the provider that serves req.Model.
func (p *Provider) StreamPrompt(ctx context.Context, req providers.PromptRequest, callbacks providers.StreamCallbacks) error {
	provider, model, err := p.providerFor(req.Model)
	if err != nil {
		return err
	}
	req.Model = model
	return provider.StreamPrompt(ctx, req, callbacks)
}

// StreamChat routes a chat request to the provider that serves req.Model.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, callbacks providers.StreamCallbacks) error {
	provider, model, err := p.providerFor(req.Model)
	if err != nil {
		return err
	}
	req.Model = model
	return provider.StreamChat(ctx, req, callbacks)
}

// Close cleans up any resources used by the provider.
func (p *Provider) Close() error {
	var firstErr error
	seen := map[providers.StreamProvider]struct{}{}
	for _, provider := range p.providers {
		if _, ok := seen[provider]; ok {
			continue
		}
		seen[provider] = struct{}{}
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Provider) providerFor(modelID string) (providers.StreamProvider, string, error) {
	route, err := providers.Resolve(modelID)
	if err != nil {
		return nil, "", apperr.ValidationWrap(err, err.Error())
	}
	provider, ok := p.providers[route.Provider]
	if !ok {
		return nil, "", apperr.MissingCredential(route.Provider, appconfig.CredentialEnv(route.Provider))
	}
	return provider, route.Model, nil
}
