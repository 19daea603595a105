// Package openrouter provides a StreamProvider for the OpenRouter API, which hosts
// Claude and other vendors' models behind an OpenAI-compatible endpoint.
package openrouter

import (
	"net/http"
	"time"

	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/providers/openai"
)

const (
	refererHeader = "https://github.com/mwiater/pagesmith"
	titleHeader   = "pagesmith"
)

// headerTransport injects the OpenRouter attribution headers into every request.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("HTTP-Referer", refererHeader)
	clone.Header.Set("X-Title", titleHeader)
	return t.base.RoundTrip(clone)
}

// Options configures the OpenRouter provider.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// New builds an OpenAI-compatible provider pointed at OpenRouter.
func New(opts Options) *openai.Provider {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return openai.New(openai.Options{
		Name:      appconfig.ProviderOpenRouter,
		BaseURL:   opts.BaseURL,
		APIKey:    opts.APIKey,
		Timeout:   opts.Timeout,
		Transport: &headerTransport{base: base},
	})
}
