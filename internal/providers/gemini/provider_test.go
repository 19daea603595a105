package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/providers"
)

type fakeStreamer struct {
	responses []*genai.GenerateContentResponse
	err       error
	// onYield runs after each response is consumed.
	onYield func(i int)

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (f *fakeStreamer) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for i, resp := range f.responses {
			if !yield(resp, nil) {
				return
			}
			if f.onYield != nil {
				f.onYield(i)
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestStreamPromptForwardsChunks(t *testing.T) {
	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{
		textResponse("Theme: X"),
		textResponse(""),
		textResponse("\nSections: ..."),
	}}
	provider := newWithStreamer(fake, 0)

	var chunks []string
	var full string
	err := provider.StreamPrompt(context.Background(), providers.PromptRequest{
		Model:        "gemini-2.5-flash",
		Prompt:       "plan this",
		SystemPrompt: "you plan websites",
	}, providers.StreamCallbacks{
		OnChunk:    func(d string) error { chunks = append(chunks, d); return nil },
		OnComplete: func(text string) error { full = text; return nil },
	})
	if err != nil {
		t.Fatalf("StreamPrompt returned error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected empty chunk to be skipped, got %q", chunks)
	}
	if full != "Theme: X\nSections: ..." {
		t.Fatalf("unexpected full text %q", full)
	}
	if fake.gotModel != "gemini-2.5-flash" {
		t.Fatalf("unexpected model %q", fake.gotModel)
	}
	if fake.gotConfig == nil || fake.gotConfig.SystemInstruction == nil {
		t.Fatal("expected system instruction in config")
	}
	if len(fake.gotContents) != 1 || fake.gotContents[0].Role != "user" {
		t.Fatalf("unexpected contents %+v", fake.gotContents)
	}
}

func TestStreamChatMapsRoles(t *testing.T) {
	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{textResponse("ok")}}
	provider := newWithStreamer(fake, 0)

	err := provider.StreamChat(context.Background(), providers.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []providers.ChatMessage{
			{Role: providers.RoleSystem, Content: "refine html"},
			{Role: providers.RoleUser, Content: "here is the page"},
			{Role: providers.RoleAssistant, Content: "<html></html>"},
			{Role: providers.RoleUser, Content: "make it blue"},
		},
	}, providers.StreamCallbacks{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}
	if len(fake.gotContents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(fake.gotContents))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, want := range wantRoles {
		if fake.gotContents[i].Role != want {
			t.Fatalf("content %d role %q want %q", i, fake.gotContents[i].Role, want)
		}
	}
}

func TestStreamSafetyFinishIsContentFiltered(t *testing.T) {
	blocked := textResponse("")
	blocked.Candidates[0].FinishReason = genai.FinishReason("SAFETY")
	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{textResponse("part"), blocked}}

	completed := false
	err := newWithStreamer(fake, 0).StreamPrompt(context.Background(), providers.PromptRequest{Model: "gemini-2.5-flash", Prompt: "x"},
		providers.StreamCallbacks{OnComplete: func(string) error { completed = true; return nil }})
	if apperr.KindOf(err) != apperr.KindContentFiltered {
		t.Fatalf("expected content filtered, got %v", err)
	}
	if completed {
		t.Fatal("OnComplete must not run after a filtered response")
	}
}

func TestStreamPromptBlockIsContentFiltered(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReason("PROHIBITED_CONTENT")},
	}
	fake := &fakeStreamer{responses: []*genai.GenerateContentResponse{resp}}
	err := newWithStreamer(fake, 0).StreamPrompt(context.Background(), providers.PromptRequest{Model: "gemini-2.5-flash", Prompt: "x"}, providers.StreamCallbacks{})
	if apperr.KindOf(err) != apperr.KindContentFiltered {
		t.Fatalf("expected content filtered, got %v", err)
	}
}

func TestStreamSDKErrorIsTransport(t *testing.T) {
	fake := &fakeStreamer{err: errors.New("503 unavailable")}
	err := newWithStreamer(fake, 0).StreamPrompt(context.Background(), providers.PromptRequest{Model: "gemini-2.5-flash", Prompt: "x"}, providers.StreamCallbacks{})
	if apperr.KindOf(err) != apperr.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestStreamAbortStopsIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeStreamer{
		responses: []*genai.GenerateContentResponse{textResponse("a"), textResponse("b"), textResponse("c")},
		onYield: func(i int) {
			if i == 0 {
				cancel()
			}
		},
	}

	var chunks []string
	completed := false
	err := newWithStreamer(fake, 0).StreamPrompt(ctx, providers.PromptRequest{Model: "gemini-2.5-flash", Prompt: "x"}, providers.StreamCallbacks{
		OnChunk:    func(d string) error { chunks = append(chunks, d); return nil },
		OnComplete: func(string) error { completed = true; return nil },
	})
	if !apperr.IsAborted(err) {
		t.Fatalf("expected aborted, got %v", err)
	}
	if len(chunks) != 1 || completed {
		t.Fatalf("unexpected callbacks after abort: chunks=%q completed=%v", chunks, completed)
	}
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "thinking", Thought: true}, {Text: "answer"}}},
		}},
	}
	if got := responseText(resp); got != "answer" {
		t.Fatalf("responseText=%q want answer", got)
	}
}
