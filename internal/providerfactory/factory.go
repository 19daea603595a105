// internal/providerfactory/factory.go
package providerfactory

import (
	"context"
	"fmt"

	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/metrics"
	"github.com/mwiater/pagesmith/internal/providers"
	"github.com/mwiater/pagesmith/internal/providers/gemini"
	"github.com/mwiater/pagesmith/internal/providers/multiplex"
	"github.com/mwiater/pagesmith/internal/providers/openai"
	"github.com/mwiater/pagesmith/internal/providers/openrouter"
)

// NewStreamProvider builds an adapter for every provider with a configured API key
// and returns a multiplex provider that routes by model identifier. When metrics
// are enabled each adapter is wrapped with the metrics decorator feeding aggregator.
func NewStreamProvider(ctx context.Context, cfg *appconfig.Config, aggregator *metrics.Aggregator) (*multiplex.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	timeout := cfg.RequestTimeout()
	built := make(map[string]providers.StreamProvider, 3)

	if key := cfg.APIKey(appconfig.ProviderGemini); key != "" {
		provider, err := gemini.New(ctx, gemini.Options{APIKey: key, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		built[appconfig.ProviderGemini] = provider
	}
	if key := cfg.APIKey(appconfig.ProviderOpenRouter); key != "" {
		built[appconfig.ProviderOpenRouter] = openrouter.New(openrouter.Options{
			BaseURL: cfg.OpenRouterURL(),
			APIKey:  key,
			Timeout: timeout,
		})
	}
	if key := cfg.APIKey(appconfig.ProviderOpenAI); key != "" {
		built[appconfig.ProviderOpenAI] = openai.New(openai.Options{
			BaseURL: cfg.OpenAIURL(),
			APIKey:  key,
			Timeout: timeout,
		})
	}

	for name, provider := range built {
		logging.LogEvent("provider ready: %s", name)
		if cfg.Metrics && aggregator != nil {
			built[name] = metrics.NewProvider(provider, aggregator)
		}
	}
	if len(built) == 0 {
		logging.LogEvent("no provider API keys configured")
	}

	return multiplex.New(built), nil
}
