// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/providers"
)

// Provider is a decorator that wraps a StreamProvider to record metrics.
type Provider struct {
	wrapped    providers.StreamProvider
	aggregator *Aggregator
	now        func() time.Time
}

// NewProvider creates a new metrics-enabled provider that wraps an existing StreamProvider.
func NewProvider(wrapped providers.StreamProvider, aggregator *Aggregator) *Provider {
	logging.LogEvent("[METRICS] Wrapping %s provider with metrics provider", wrapped.Name())
	return &Provider{wrapped: wrapped, aggregator: aggregator, now: time.Now}
}

// Name passes the call through to the wrapped provider.
func (p *Provider) Name() string { return p.wrapped.Name() }

// StreamPrompt records metrics around the wrapped provider's StreamPrompt.
func (p *Provider) StreamPrompt(ctx context.Context, req providers.PromptRequest, callbacks providers.StreamCallbacks) error {
	return p.observe(req.Model, callbacks, func(cb providers.StreamCallbacks) error {
		return p.wrapped.StreamPrompt(ctx, req, cb)
	})
}

// StreamChat records metrics around the wrapped provider's StreamChat.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, callbacks providers.StreamCallbacks) error {
	return p.observe(req.Model, callbacks, func(cb providers.StreamCallbacks) error {
		return p.wrapped.StreamChat(ctx, req, cb)
	})
}

// Close passes the call through to the wrapped provider.
func (p *Provider) Close() error {
	return p.wrapped.Close()
}

func (p *Provider) observe(model string, callbacks providers.StreamCallbacks, run func(providers.StreamCallbacks) error) error {
	start := p.now()
	var firstChunk time.Time
	gotChunk := false
	outputChars := 0

	wrapped := providers.StreamCallbacks{
		OnChunk: func(delta string) error {
			if !gotChunk {
				firstChunk = p.now()
				gotChunk = true
			}
			if callbacks.OnChunk != nil {
				return callbacks.OnChunk(delta)
			}
			return nil
		},
		OnComplete: func(full string) error {
			outputChars = len([]rune(full))
			if callbacks.OnComplete != nil {
				return callbacks.OnComplete(full)
			}
			return nil
		},
	}

	err := run(wrapped)

	sample := Sample{
		Model:       model,
		Duration:    p.now().Sub(start),
		OutputChars: outputChars,
		FirstChunk:  gotChunk,
	}
	if gotChunk {
		sample.TTFT = firstChunk.Sub(start)
	}
	switch {
	case err == nil:
		sample.Outcome = OutcomeCompleted
	case apperr.IsAborted(err):
		sample.Outcome = OutcomeAborted
	default:
		sample.Outcome = OutcomeFailed
	}
	if p.aggregator != nil {
		p.aggregator.Record(sample)
	}
	return err
}
