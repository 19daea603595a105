// Package gemini provides a StreamProvider backed by the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/providers"
)

// contentStreamer is the subset of the SDK's Models service the provider uses.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Options configures a Provider.
type Options struct {
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Provider implements providers.StreamProvider over the SDK's streaming iterator.
type Provider struct {
	models  contentStreamer
	timeout time.Duration
}

// New creates a Gemini API client.
func New(ctx context.Context, opts Options) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithStreamer(client.Models, opts.Timeout), nil
}

func newWithStreamer(models contentStreamer, timeout time.Duration) *Provider {
	return &Provider{models: models, timeout: timeout}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return appconfig.ProviderGemini }

// StreamPrompt streams a completion for a single prompt.
func (p *Provider) StreamPrompt(ctx context.Context, req providers.PromptRequest, callbacks providers.StreamCallbacks) error {
	return p.StreamChat(ctx, providers.ChatRequest{
		Model:     req.Model,
		Messages:  providers.PromptMessages(req),
		RequestID: req.RequestID,
	}, callbacks)
}

// StreamChat streams the next model turn for the given history.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, callbacks providers.StreamCallbacks) error {
	name := p.Name()
	if err := apperr.FromContext(ctx, name); err != nil {
		return err
	}

	contents, config := toContents(req.Messages)
	logging.LogRequest("PAGESMITH->LLM", name, req.Model, req.RequestID, map[string]any{
		"turns":  len(contents),
		"system": config != nil,
	})

	streamCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var full strings.Builder
	for resp, err := range p.models.GenerateContentStream(streamCtx, req.Model, contents, config) {
		if ctxErr := apperr.FromContext(streamCtx, name); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return apperr.Transport(name, 0, "", err)
		}
		if reason := blockedPrompt(resp); reason != "" {
			return apperr.ContentFiltered(name, reason)
		}

		text := responseText(resp)
		if text != "" {
			logging.LogRequest("LLM->PAGESMITH", name, req.Model, req.RequestID, text)
			full.WriteString(text)
			if callbacks.OnChunk != nil {
				if err := callbacks.OnChunk(text); err != nil {
					return err
				}
			}
		}
		if reason := filteredFinish(resp); reason != "" {
			return apperr.ContentFiltered(name, "finish reason "+reason)
		}
	}
	if err := apperr.FromContext(streamCtx, name); err != nil {
		return err
	}

	if callbacks.OnComplete != nil {
		return callbacks.OnComplete(full.String())
	}
	return nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error { return nil }

// toContents maps a chat history onto Gemini contents. System messages become
// the system instruction; assistant turns use the "model" role.
func toContents(messages []providers.ChatMessage) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
		case providers.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser),
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func blockedPrompt(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	reason := string(resp.PromptFeedback.BlockReason)
	if reason == "" || reason == "BLOCKED_REASON_UNSPECIFIED" {
		return ""
	}
	if msg := strings.TrimSpace(resp.PromptFeedback.BlockReasonMessage); msg != "" {
		return reason + ": " + msg
	}
	return reason
}

var safetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

func filteredFinish(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if reason := string(candidate.FinishReason); safetyFinishReasons[reason] {
			return reason
		}
	}
	return ""
}
