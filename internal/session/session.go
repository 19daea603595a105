// Package session implements a multi-turn chat over a StreamProvider. A Session
// starts from a seed exchange describing the artifact being refined and keeps
// the turn history that gives follow-up instructions their context.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mwiater/pagesmith/internal/providers"
)

// ErrBusy is returned when a message is sent while another is still streaming.
var ErrBusy = errors.New("session: a message is already streaming")

// ErrEmptySeed is returned by New when the seed exchange is incomplete.
var ErrEmptySeed = errors.New("session: seed user and assistant content are required")

// Seed is the system instruction plus the synthetic first user/assistant pair.
type Seed struct {
	System    string
	User      string
	Assistant string
}

// Session holds the history of one refinement conversation.
type Session struct {
	provider providers.StreamProvider
	model    string

	mu        sync.Mutex
	history   []providers.ChatMessage
	streaming bool
}

// New creates a Session seeded with seed.
func New(provider providers.StreamProvider, model string, seed Seed) (*Session, error) {
	if provider == nil {
		return nil, errors.New("session: nil provider")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("session: empty model")
	}
	if strings.TrimSpace(seed.User) == "" || strings.TrimSpace(seed.Assistant) == "" {
		return nil, ErrEmptySeed
	}

	history := make([]providers.ChatMessage, 0, 8)
	if strings.TrimSpace(seed.System) != "" {
		history = append(history, providers.ChatMessage{Role: providers.RoleSystem, Content: seed.System})
	}
	history = append(history,
		providers.ChatMessage{Role: providers.RoleUser, Content: seed.User},
		providers.ChatMessage{Role: providers.RoleAssistant, Content: seed.Assistant},
	)
	return &Session{provider: provider, model: model, history: history}, nil
}

// Model returns the model identifier the session sends to.
func (s *Session) Model() string { return s.model }

// History returns a copy of the turn history.
func (s *Session) History() []providers.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]providers.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// SendMessageStream appends message as a user turn and streams the reply.
// The assistant turn is appended only when the stream completes and
// callbacks.OnComplete accepts the reply; after an abort, an error or a
// rejected reply the unanswered user turn stays in the history.
func (s *Session) SendMessageStream(ctx context.Context, message string, callbacks providers.StreamCallbacks) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.streaming = true
	s.history = append(s.history, providers.ChatMessage{Role: providers.RoleUser, Content: message})
	messages := make([]providers.ChatMessage, len(s.history))
	copy(messages, s.history)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
	}()

	return s.provider.StreamChat(ctx, providers.ChatRequest{
		Model:    s.model,
		Messages: messages,
	}, providers.StreamCallbacks{
		OnChunk: callbacks.OnChunk,
		OnComplete: func(full string) error {
			if callbacks.OnComplete != nil {
				if err := callbacks.OnComplete(full); err != nil {
					return err
				}
			}
			s.mu.Lock()
			s.history = append(s.history, providers.ChatMessage{Role: providers.RoleAssistant, Content: full})
			s.mu.Unlock()
			return nil
		},
	})
}
