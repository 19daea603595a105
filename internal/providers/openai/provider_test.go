// internal/providers/openai/provider_test.go
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/providers"
)

func sseChunk(content string) string {
	payload := map[string]any{
		"model": "gpt-test",
		"choices": []map[string]any{
			{"delta": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(payload)
	return "data: " + string(data) + "\n\n"
}

func TestProviderStreamChat(t *testing.T) {
	t.Parallel()

	var captured chatPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": ping\n\n")
		_, _ = io.WriteString(w, sseChunk("Theme: X"))
		_, _ = io.WriteString(w, "data: {not json}\n\n")
		_, _ = io.WriteString(w, sseChunk("\nSections: ..."))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := New(Options{BaseURL: server.URL + "/v1/", APIKey: "sk-test", Timeout: 5 * time.Second})

	var chunks []string
	var full string
	err := provider.StreamChat(context.Background(), providers.ChatRequest{
		Model: "gpt-test",
		Messages: []providers.ChatMessage{
			{Role: providers.RoleSystem, Content: "sys"},
			{Role: providers.RoleUser, Content: "hello"},
			{Role: providers.RoleUser, Content: "   "},
		},
	}, providers.StreamCallbacks{
		OnChunk: func(delta string) error {
			chunks = append(chunks, delta)
			return nil
		},
		OnComplete: func(text string) error {
			full = text
			return nil
		},
	})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}

	if len(chunks) != 2 || chunks[0] != "Theme: X" || chunks[1] != "\nSections: ..." {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	if full != "Theme: X\nSections: ..." {
		t.Fatalf("unexpected full text: %q", full)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if !captured.Stream || captured.Model != "gpt-test" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestProviderStreamPromptIncludesSystemPrompt(t *testing.T) {
	t.Parallel()

	var captured chatPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = io.WriteString(w, sseChunk("ok"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := New(Options{BaseURL: server.URL})
	err := provider.StreamPrompt(context.Background(), providers.PromptRequest{
		Model:        "gpt-test",
		Prompt:       "make a plan",
		SystemPrompt: "you are a planner",
	}, providers.StreamCallbacks{})
	if err != nil {
		t.Fatalf("StreamPrompt returned error: %v", err)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Content != "you are a planner" || captured.Messages[1].Content != "make a plan" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestProviderNon2xxIsTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	provider := New(Options{BaseURL: server.URL})
	chunkCalls := 0
	err := provider.StreamChat(context.Background(), providers.ChatRequest{
		Model:    "gpt-test",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{OnChunk: func(string) error { chunkCalls++; return nil }})

	var appErr *apperr.Error
	if !asAppErr(err, &appErr) || appErr.Kind != apperr.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if appErr.Status != http.StatusUnauthorized || !strings.Contains(appErr.Detail, "invalid api key") {
		t.Fatalf("expected status and body detail, got %+v", appErr)
	}
	if chunkCalls != 0 {
		t.Fatalf("expected no chunks, got %d", chunkCalls)
	}
}

func TestProviderContentFilter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseChunk("partial"))
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{},"finish_reason":"content_filter"}]}`+"\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := New(Options{BaseURL: server.URL})
	completed := false
	err := provider.StreamChat(context.Background(), providers.ChatRequest{
		Model:    "gpt-test",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{OnComplete: func(string) error { completed = true; return nil }})
	if apperr.KindOf(err) != apperr.KindContentFiltered {
		t.Fatalf("expected content filtered error, got %v", err)
	}
	if completed {
		t.Fatal("OnComplete must not run after a terminal error")
	}
}

func TestProviderModerationRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"message":"Input was flagged by moderation","code":403}}`)
	}))
	defer server.Close()

	err := New(Options{BaseURL: server.URL}).StreamChat(context.Background(), providers.ChatRequest{
		Model:    "x/y",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{})
	if apperr.KindOf(err) != apperr.KindContentFiltered {
		t.Fatalf("expected content filtered error, got %v", err)
	}
}

func TestProviderInStreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseChunk("a"))
		_, _ = io.WriteString(w, `data: {"error":{"message":"upstream overloaded","code":502}}`+"\n\n")
	}))
	defer server.Close()

	err := New(Options{BaseURL: server.URL}).StreamChat(context.Background(), providers.ChatRequest{
		Model:    "x/y",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{})
	var appErr *apperr.Error
	if !asAppErr(err, &appErr) || appErr.Kind != apperr.KindTransport || appErr.Status != 502 {
		t.Fatalf("expected transport error with status 502, got %v", err)
	}
}

func TestProviderAbortMidStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, sseChunk("first"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var chunks []string
	completed := false
	err := New(Options{BaseURL: server.URL}).StreamChat(ctx, providers.ChatRequest{
		Model:    "gpt-test",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{
		OnChunk: func(delta string) error {
			chunks = append(chunks, delta)
			cancel()
			return nil
		},
		OnComplete: func(string) error { completed = true; return nil },
	})
	if !apperr.IsAborted(err) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if completed || len(chunks) != 1 {
		t.Fatalf("unexpected callbacks after abort: chunks=%v completed=%v", chunks, completed)
	}
}

func TestProviderCancelledBeforeRequest(t *testing.T) {
	t.Parallel()

	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = true }))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(Options{BaseURL: server.URL}).StreamPrompt(ctx, providers.PromptRequest{Model: "m", Prompt: "p"}, providers.StreamCallbacks{})
	if !apperr.IsAborted(err) {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if hit {
		t.Fatal("expected no request after cancellation")
	}
}

func TestProviderCallbackErrorStopsStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseChunk("a"))
		_, _ = io.WriteString(w, sseChunk("b"))
	}))
	defer server.Close()

	calls := 0
	err := New(Options{BaseURL: server.URL}).StreamChat(context.Background(), providers.ChatRequest{
		Model:    "m",
		Messages: []providers.ChatMessage{{Role: "user", Content: "hi"}},
	}, providers.StreamCallbacks{OnChunk: func(string) error {
		calls++
		return fmt.Errorf("stop")
	}})
	if err == nil || err.Error() != "stop" || calls != 1 {
		t.Fatalf("expected callback error after one chunk, got %v (calls=%d)", err, calls)
	}
}

func asAppErr(err error, target **apperr.Error) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*apperr.Error)
	if ok {
		*target = e
	}
	return ok
}
