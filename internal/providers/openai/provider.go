// internal/providers/openai/provider.go
// Package openai provides a StreamProvider backed by an OpenAI-compatible chat completions API.
// The same adapter serves api.openai.com and, wrapped by package openrouter, OpenRouter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/providers"
	"github.com/mwiater/pagesmith/internal/providers/sse"
)

// maxErrorBody bounds how much of a failed response body is kept as error detail.
const maxErrorBody = 64 << 10

// Options configures a Provider.
type Options struct {
	// Name identifies the provider in logs and errors. Defaults to "openai".
	Name    string
	BaseURL string
	APIKey  string
	// Timeout bounds a whole streamed request, including reading the body.
	Timeout time.Duration
	// Transport overrides the HTTP transport; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Provider implements the providers.StreamProvider interface over HTTP event streams.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

// New constructs a Provider.
func New(opts Options) *Provider {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = appconfig.ProviderOpenAI
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Transport: transport},
		timeout: opts.Timeout,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.name }

// StreamPrompt streams a completion for a single prompt.
func (p *Provider) StreamPrompt(ctx context.Context, req providers.PromptRequest, callbacks providers.StreamCallbacks) error {
	return p.StreamChat(ctx, providers.ChatRequest{
		Model:     req.Model,
		Messages:  providers.PromptMessages(req),
		RequestID: req.RequestID,
	}, callbacks)
}

// StreamChat issues a streaming chat request and forwards deltas to the callbacks.
func (p *Provider) StreamChat(ctx context.Context, req providers.ChatRequest, callbacks providers.StreamCallbacks) error {
	if err := apperr.FromContext(ctx, p.name); err != nil {
		return err
	}

	payload := chatPayload{
		Model:    req.Model,
		Messages: sanitizeMessages(req.Messages),
		Stream:   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	logging.LogRequest("PAGESMITH->LLM", p.name, req.Model, req.RequestID, body)

	streamCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := apperr.FromContext(streamCtx, p.name); ctxErr != nil {
			return ctxErr
		}
		return apperr.Transport(p.name, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.LogRequest("LLM->PAGESMITH", p.name, req.Model, req.RequestID, raw)
		return classifyFailure(p.name, resp.StatusCode, raw)
	}

	var full strings.Builder
	err = sse.Read(streamCtx, p.name, resp.Body, func(data []byte) error {
		logging.LogRequest("LLM->PAGESMITH", p.name, req.Model, req.RequestID, data)

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return fmt.Errorf("%w: %v", sse.ErrMalformed, err)
		}
		if chunk.Error != nil {
			return chunk.Error.classify(p.name)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]
		content := choice.Delta.Content
		if content == "" {
			content = choice.Message.Content
		}
		if content != "" {
			full.WriteString(content)
			if callbacks.OnChunk != nil {
				if err := callbacks.OnChunk(content); err != nil {
					return err
				}
			}
		}
		if choice.FinishReason == "content_filter" {
			return apperr.ContentFiltered(p.name, "finish_reason=content_filter")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if callbacks.OnComplete != nil {
		return callbacks.OnComplete(full.String())
	}
	return nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type chatPayload struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

func (e *apiError) codeString() string {
	if e == nil || len(e.Code) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Code))
}

func (e *apiError) filtered() bool {
	code := strings.ToLower(e.codeString())
	kind := strings.ToLower(e.Type)
	msg := strings.ToLower(e.Message)
	switch {
	case code == "content_filter", code == "content_policy_violation":
		return true
	case kind == "content_filter":
		return true
	case strings.Contains(msg, "flagged"), strings.Contains(msg, "moderation"):
		return true
	}
	return false
}

func (e *apiError) classify(provider string) error {
	if e.filtered() {
		return apperr.ContentFiltered(provider, e.Message)
	}
	var status int
	_, _ = fmt.Sscanf(e.codeString(), "%d", &status)
	return apperr.Transport(provider, status, e.Message, nil)
}

// classifyFailure turns a non-2xx response into a ContentFiltered or Transport error.
func classifyFailure(provider string, status int, body []byte) error {
	var wrapped struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.filtered() {
		return apperr.ContentFiltered(provider, wrapped.Error.Message)
	}
	return apperr.Transport(provider, status, string(body), nil)
}

func sanitizeMessages(messages []providers.ChatMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = providers.RoleUser
		}
		if role != providers.RoleAssistant && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, openAIMessage{Role: role, Content: msg.Content})
	}
	return out
}
