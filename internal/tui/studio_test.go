// internal/tui/studio_test.go
package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/pipeline"
	"github.com/mwiater/pagesmith/internal/providers"
)

// testProvider streams a fixed reply for every request and records prompts.
type testProvider struct {
	reply   string
	prompts []string
}

func (p *testProvider) Name() string { return "test" }

func (p *testProvider) StreamPrompt(ctx context.Context, req providers.PromptRequest, cb providers.StreamCallbacks) error {
	p.prompts = append(p.prompts, req.Prompt)
	return p.stream(cb)
}

func (p *testProvider) StreamChat(ctx context.Context, req providers.ChatRequest, cb providers.StreamCallbacks) error {
	return p.stream(cb)
}

func (p *testProvider) stream(cb providers.StreamCallbacks) error {
	if err := cb.OnChunk(p.reply); err != nil {
		return err
	}
	return cb.OnComplete(p.reply)
}

func (p *testProvider) Close() error { return nil }

func newTestModel(t *testing.T, reply string) *model {
	t.Helper()
	return newTestModelWith(t, &testProvider{reply: reply})
}

func newTestModelWith(t *testing.T, provider *testProvider) *model {
	t.Helper()
	controller, err := pipeline.New(pipeline.Options{
		Provider: provider,
		Config:   appconfig.Config{Model: "gemini-2.5-flash", GeminiAPIKey: "k"},
	})
	if err != nil {
		t.Fatalf("pipeline.New returned error: %v", err)
	}
	m := newModel(context.Background(), controller, filepath.Join(t.TempDir(), "page.html"))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(*model)
}

// run executes cmd and feeds the resulting message back into the model.
func run(m *model, cmd tea.Cmd) *model {
	if cmd == nil {
		return m
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			inner := c()
			if _, isTick := inner.(spinner.TickMsg); isTick {
				continue
			}
			updated, _ := m.Update(inner)
			m = updated.(*model)
		}
		return m
	}
	updated, _ := m.Update(msg)
	return updated.(*model)
}

func TestUpdateQuitAndResize(t *testing.T) {
	m := newTestModel(t, "x")
	if m.width != 100 || m.height != 40 {
		t.Fatalf("expected window size to be stored, got %dx%d", m.width, m.height)
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC}); cmd == nil {
		t.Fatal("expected a quit command")
	}
}

func TestPlanKeyWithShortReportShowsValidation(t *testing.T) {
	m := newTestModel(t, "x")
	m.report.SetValue("too short")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	m = run(m, cmd)

	if !m.statusIsError || !strings.Contains(m.status, "too short") {
		t.Fatalf("expected validation status, got %q", m.status)
	}
	if m.snap.Stage != pipeline.StageInitial {
		t.Fatalf("stage=%s", m.snap.Stage)
	}
}

func TestPlanThenSave(t *testing.T) {
	m := newTestModel(t, "<!DOCTYPE html><html></html>")
	m.report.SetValue(strings.Repeat("report text ", 20))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	m = run(m, cmd)
	if m.snap.Stage != pipeline.StagePlanReady {
		t.Fatalf("stage=%s status=%q", m.snap.Stage, m.status)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlG})
	m = run(m, cmd)
	if m.snap.Stage != pipeline.StageHTMLReady {
		t.Fatalf("stage=%s status=%q", m.snap.Stage, m.status)
	}
	if !strings.Contains(m.View(), "htmlReady") {
		t.Fatal("view should show the stage badge")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = run(m, cmd)
	data, err := os.ReadFile(m.outPath)
	if err != nil {
		t.Fatalf("expected saved file: %v (status %q)", err, m.status)
	}
	if string(data) != "<!DOCTYPE html><html></html>" {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	m := newTestModel(t, "x")
	m.snap.Version = 10
	updated, _ := m.Update(snapshotMsg(pipeline.Snapshot{Version: 3, Plan: "stale"}))
	m = updated.(*model)
	if m.snap.Plan == "stale" {
		t.Fatal("older snapshot must be ignored")
	}

	updated, _ = m.Update(snapshotMsg(pipeline.Snapshot{Version: 11, Plan: "fresh"}))
	m = updated.(*model)
	if m.snap.Plan != "fresh" {
		t.Fatal("newer snapshot must be applied")
	}
}

func TestSaveWithoutHTML(t *testing.T) {
	m := newTestModel(t, "x")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = updated.(*model)
	if cmd != nil || !m.statusIsError {
		t.Fatalf("expected an error status and no command, got %q", m.status)
	}
}

func TestChatTargetToggle(t *testing.T) {
	m := newTestModel(t, "x")
	m.snap.HasPlanSession = true
	m.snap.HasHTMLSession = true
	if m.chatTarget() {
		t.Fatal("plan chat is the default when both sessions exist")
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	if !updated.(*model).chatTarget() {
		t.Fatal("ctrl+t should switch chat to html")
	}
}

func press(m *model, key tea.KeyType) *model {
	updated, cmd := m.Update(tea.KeyMsg{Type: key})
	return run(updated.(*model), cmd)
}

func TestModelKeyCyclesModels(t *testing.T) {
	m := newTestModel(t, "x")
	if m.models[0] != "gemini-2.5-flash" || m.models[1] != "gemini-2.5-pro" {
		t.Fatalf("unexpected model list %v", m.models)
	}

	m = press(m, tea.KeyCtrlO)
	if got := m.controller.Snapshot().Model; got != "gemini-2.5-pro" {
		t.Fatalf("controller model=%q", got)
	}
	if m.snap.Model != "gemini-2.5-pro" || m.statusIsError {
		t.Fatalf("model=%q status=%q", m.snap.Model, m.status)
	}
	if !strings.Contains(m.View(), "Model: gemini-2.5-pro") {
		t.Fatal("view should show the new model")
	}

	for range len(m.models) - 1 {
		m = press(m, tea.KeyCtrlO)
	}
	if m.snap.Model != "gemini-2.5-flash" {
		t.Fatalf("model list should wrap around, got %q", m.snap.Model)
	}
}

func TestModelCommandInChat(t *testing.T) {
	m := newTestModel(t, "x")
	m = press(m, tea.KeyTab)

	m.input.SetValue("/model openai:gpt-4o-mini")
	m = press(m, tea.KeyEnter)
	if got := m.controller.Snapshot().Model; got != "openai:gpt-4o-mini" {
		t.Fatalf("controller model=%q status=%q", got, m.status)
	}
	if m.input.Value() != "" {
		t.Fatal("input should be cleared after the command")
	}

	m.input.SetValue("/model nonsense")
	m = press(m, tea.KeyEnter)
	if !m.statusIsError || !strings.Contains(m.status, "nonsense") {
		t.Fatalf("expected an unknown model error, got %q", m.status)
	}
	if got := m.controller.Snapshot().Model; got != "openai:gpt-4o-mini" {
		t.Fatalf("rejected model must not replace the current one, got %q", got)
	}
}

func TestPlanEditorCommitsHandWrittenPlan(t *testing.T) {
	m := newTestModel(t, "x")
	m.report.SetValue(strings.Repeat("report text ", 20))

	m = press(m, tea.KeyCtrlE)
	if m.focus != focusPlan || !strings.Contains(m.View(), "Edit plan") {
		t.Fatal("ctrl+e should open the plan editor")
	}
	m.planEditor.SetValue("Theme: written by hand")
	m = press(m, tea.KeyCtrlE)

	if m.focus != focusReport {
		t.Fatal("committing should return to the report")
	}
	snap := m.controller.Snapshot()
	if snap.Stage != pipeline.StagePlanReady || snap.Plan != "Theme: written by hand" || !snap.HasPlanSession {
		t.Fatalf("unexpected snapshot stage=%s plan=%q", snap.Stage, snap.Plan)
	}
}

func TestPlanEditorEmptyPlanShowsValidation(t *testing.T) {
	m := newTestModel(t, "x")
	m = press(m, tea.KeyCtrlE)
	m = press(m, tea.KeyCtrlE)
	if !m.statusIsError || m.focus != focusPlan {
		t.Fatalf("expected an error and the editor to stay open, got %q", m.status)
	}
	if m.controller.Snapshot().Stage != pipeline.StageInitial {
		t.Fatal("an empty plan must not advance the stage")
	}
}

func TestPlanEditorBuildsPageFromEditedPlan(t *testing.T) {
	provider := &testProvider{reply: "Theme: generated"}
	m := newTestModelWith(t, provider)
	m.report.SetValue(strings.Repeat("report text ", 20))

	m = press(m, tea.KeyCtrlP)
	if m.snap.Stage != pipeline.StagePlanReady {
		t.Fatalf("stage=%s status=%q", m.snap.Stage, m.status)
	}

	m = press(m, tea.KeyCtrlE)
	if m.planEditor.Value() != "Theme: generated" {
		t.Fatalf("editor should start from the current plan, got %q", m.planEditor.Value())
	}
	m.planEditor.SetValue("Theme: edited by hand")
	m = press(m, tea.KeyCtrlG)

	if m.snap.Stage != pipeline.StageHTMLReady {
		t.Fatalf("stage=%s status=%q", m.snap.Stage, m.status)
	}
	if m.snap.Plan != "Theme: edited by hand" {
		t.Fatalf("edited plan should be committed, got %q", m.snap.Plan)
	}
	last := provider.prompts[len(provider.prompts)-1]
	if !strings.Contains(last, "Theme: edited by hand") || strings.Contains(last, "Theme: generated") {
		t.Fatal("page should be built from the edited plan")
	}
}
