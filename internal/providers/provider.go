// internal/providers/provider.go

// Package providers defines the interfaces for streaming completions from hosted model vendors.
// It provides a common abstraction layer over the vendor wire formats (OpenAI-compatible event
// streams and the Gemini SDK iterator) so sessions and the stage controller never inspect
// which vendor is serving a request.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/pagesmith/internal/appconfig"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
// It contains the role of the message sender (e.g., "user", "assistant") and the message content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptRequest is a single-turn generation from a fully formed prompt.
type PromptRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	// RequestID correlates log lines for one operation.
	RequestID string
}

// ChatRequest is a chat turn over an ordered message history. System messages may
// appear anywhere in Messages; adapters hoist them as their wire format requires.
type ChatRequest struct {
	Model     string
	Messages  []ChatMessage
	RequestID string
}

// StreamCallbacks defines the callback functions that are invoked during a stream.
// OnChunk is called for each non-empty text delta in arrival order; OnComplete is
// called once with the full concatenated text when the stream finishes successfully.
// An error returned from either callback ends the stream with that error.
type StreamCallbacks struct {
	OnChunk    func(delta string) error
	OnComplete func(full string) error
}

// StreamProvider is the interface every vendor adapter implements.
//
// Every call delivers zero or more OnChunk calls followed by exactly one terminal
// event: OnComplete, or a returned error. Cancelling ctx makes the adapter return
// an apperr Aborted error promptly.
type StreamProvider interface {
	// Name returns the provider identifier, e.g. "openai".
	Name() string
	// StreamPrompt streams a first-turn generation for a single prompt.
	StreamPrompt(ctx context.Context, req PromptRequest, callbacks StreamCallbacks) error
	// StreamChat streams the next assistant turn for a message history.
	StreamChat(ctx context.Context, req ChatRequest, callbacks StreamCallbacks) error
	// Close cleans up any resources used by the provider.
	Close() error
}

// Route is the result of resolving a model identifier.
type Route struct {
	Provider string
	// Model is the provider-native model ID with any routing prefix removed.
	Model string
}

// Resolve maps a model identifier to the provider that serves it. An explicit
// "provider:" prefix wins; otherwise the identifier's shape decides.
func Resolve(modelID string) (Route, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return Route{}, fmt.Errorf("empty model identifier")
	}

	if prefix, rest, ok := strings.Cut(id, ":"); ok {
		switch strings.ToLower(prefix) {
		case appconfig.ProviderGemini, appconfig.ProviderOpenRouter, appconfig.ProviderOpenAI:
			if strings.TrimSpace(rest) == "" {
				return Route{}, fmt.Errorf("model identifier %q has no model after the provider prefix", modelID)
			}
			return Route{Provider: strings.ToLower(prefix), Model: strings.TrimSpace(rest)}, nil
		}
	}

	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "gemini-"), strings.HasPrefix(lower, "models/gemini-"):
		return Route{Provider: appconfig.ProviderGemini, Model: id}, nil
	case strings.Contains(id, "/"):
		return Route{Provider: appconfig.ProviderOpenRouter, Model: id}, nil
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "chatgpt-"),
		strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return Route{Provider: appconfig.ProviderOpenAI, Model: id}, nil
	}
	return Route{}, fmt.Errorf("cannot determine provider for model %q (use a gemini:, openrouter: or openai: prefix)", modelID)
}

// PromptMessages converts a prompt request into the equivalent chat history.
func PromptMessages(req PromptRequest) []ChatMessage {
	messages := make([]ChatMessage, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	return append(messages, ChatMessage{Role: RoleUser, Content: req.Prompt})
}
