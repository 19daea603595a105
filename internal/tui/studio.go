// Package tui provides the interactive terminal studio for pagesmith.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/pipeline"
	"github.com/mwiater/pagesmith/internal/providers"
	"github.com/mwiater/pagesmith/internal/util"
)

// focus is the input that receives keystrokes.
type focus int

const (
	focusReport focus = iota
	focusChat
	focusPlan
)

// modelCommand switches the model when typed into the chat input.
const modelCommand = "/model"

// studioModels are offered by the model key after the configured model.
var studioModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"openai:gpt-4o-mini",
	"openrouter:openai/gpt-4o-mini",
}

// snapshotMsg carries a controller snapshot into the update loop.
type snapshotMsg pipeline.Snapshot

// opDoneMsg is sent when a controller operation returns.
type opDoneMsg struct {
	what string
	err  error
}

// savedMsg reports the result of writing the HTML document.
type savedMsg struct {
	path string
	err  error
}

var (
	headerStyle    = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Bold(true)
	assistStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	paneTitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// stageColors maps each stage to its badge color.
var stageColors = map[pipeline.Stage]string{
	pipeline.StageInitial:     "240",
	pipeline.StagePlanPending: "214",
	pipeline.StagePlanReady:   "33",
	pipeline.StageHTMLPending: "214",
	pipeline.StageHTMLReady:   "40",
}

// model is the Bubble Tea model of the studio.
type model struct {
	ctx        context.Context
	controller *pipeline.Controller
	outPath    string

	snap     pipeline.Snapshot
	focus    focus
	htmlChat bool
	models   []string

	report     textarea.Model
	planEditor textarea.Model
	input      textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	status           string
	statusIsError    bool
	requestStartTime time.Time
	width, height    int
}

func newModel(ctx context.Context, controller *pipeline.Controller, outPath string) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	report := textarea.New()
	report.Placeholder = "Paste the report here, then press ctrl+p to generate a plan..."
	report.ShowLineNumbers = false
	report.CharLimit = -1
	report.SetHeight(8)
	report.Focus()

	planEditor := textarea.New()
	planEditor.Placeholder = "Write or edit the plan, then press ctrl+g to build the page..."
	planEditor.ShowLineNumbers = false
	planEditor.CharLimit = -1
	planEditor.SetHeight(8)

	input := textarea.New()
	input.Placeholder = "Describe a change, or /model <id>..."
	input.Prompt = "Refine: "
	input.ShowLineNumbers = false
	input.CharLimit = -1
	input.SetHeight(1)
	input.KeyMap.InsertNewline.SetEnabled(false)

	snap := controller.Snapshot()
	models := []string{snap.Model}
	for _, id := range studioModels {
		if id != snap.Model {
			models = append(models, id)
		}
	}

	return &model{
		ctx:        ctx,
		controller: controller,
		outPath:    outPath,
		snap:       snap,
		models:     models,
		report:     report,
		planEditor: planEditor,
		input:      input,
		viewport:   viewport.New(100, 10),
		spinner:    s,
	}
}

// runOp runs a blocking controller operation off the update loop.
func runOp(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{what: what, err: fn()}
	}
}

func saveCmd(path, html string) tea.Cmd {
	return func() tea.Msg {
		return savedMsg{path: path, err: util.WriteFile(path, []byte(html))}
	}
}

// Init initializes the Bubble Tea model and returns a command to start the spinner animation.
func (m *model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m *model) busy() bool {
	return m.snap.PlanBusy || m.snap.HTMLBusy
}

// chatTarget reports whether chat input goes to the HTML session.
func (m *model) chatTarget() bool {
	if !m.snap.HasHTMLSession {
		return false
	}
	if !m.snap.HasPlanSession {
		return true
	}
	return m.htmlChat
}

func (m *model) setStatus(text string, isError bool) {
	m.status = text
	m.statusIsError = isError
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.controller.Stop()
			return m, tea.Quit
		case "tab":
			m.toggleFocus()
			return m, nil
		case "ctrl+t":
			m.htmlChat = !m.htmlChat
			return m, nil
		case "esc":
			m.controller.Stop()
			return m, nil
		case "ctrl+r":
			m.controller.Reset()
			m.setStatus("Reset.", false)
			return m, nil
		case "ctrl+p":
			m.controller.SetReport(m.report.Value())
			m.requestStartTime = time.Now()
			m.setStatus("", false)
			return m, tea.Batch(m.spinner.Tick, runOp("Plan generation", func() error {
				return m.controller.GeneratePlan(m.ctx)
			}))
		case "ctrl+e":
			if m.focus != focusPlan {
				m.planEditor.SetValue(m.snap.Plan)
				m.setFocus(focusPlan)
				return m, nil
			}
			if err := m.commitPlanEdit(); err != nil {
				m.setStatus(apperr.UserMessage("Plan edit", err), true)
				return m, nil
			}
			m.setFocus(focusReport)
			return m, nil
		case "ctrl+o":
			m.switchModel(m.nextModel())
			return m, nil
		case "ctrl+g":
			plan := m.snap.Plan
			if m.focus == focusPlan {
				m.controller.SetReport(m.report.Value())
				if err := m.commitPlanEdit(); err != nil {
					m.setStatus(apperr.UserMessage("Plan edit", err), true)
					return m, nil
				}
				plan = m.planEditor.Value()
			}
			m.requestStartTime = time.Now()
			m.setStatus("", false)
			return m, tea.Batch(m.spinner.Tick, runOp("HTML generation", func() error {
				return m.controller.GenerateHTMLFromPlan(m.ctx, plan)
			}))
		case "ctrl+s":
			if strings.TrimSpace(m.snap.HTML) == "" || m.snap.HTMLBusy {
				m.setStatus("No finished HTML document to save yet.", true)
				return m, nil
			}
			return m, saveCmd(m.outPath, m.snap.HTML)
		case "enter":
			if m.focus == focusChat {
				return m, m.sendChat()
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.report.SetWidth(msg.Width - 2)
		m.planEditor.SetWidth(msg.Width - 2)
		m.input.SetWidth(msg.Width - 3)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-16, 3)
		m.refreshViewport()
		return m, nil

	case snapshotMsg:
		snap := pipeline.Snapshot(msg)
		if snap.Version <= m.snap.Version {
			return m, nil
		}
		m.snap = snap
		m.refreshViewport()
		if m.busy() {
			return m, m.spinner.Tick
		}
		return m, nil

	case opDoneMsg:
		m.snap = m.controller.Snapshot()
		m.refreshViewport()
		if msg.err != nil {
			logging.LogEvent("[STUDIO] %s ended: %v", msg.what, msg.err)
			if apperr.IsAborted(msg.err) && m.busy() {
				// Superseded by the operation now running.
				return m, nil
			}
			m.setStatus(apperr.UserMessage(msg.what, msg.err), !apperr.IsAborted(msg.err))
		} else {
			m.setStatus(fmt.Sprintf("%s finished in %.1fs.", msg.what, time.Since(m.requestStartTime).Seconds()), false)
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Save failed: %v", msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Saved HTML to %s.", msg.path), false)
		}
		return m, nil

	case spinner.TickMsg:
		if m.busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	switch m.focus {
	case focusReport:
		m.report, cmd = m.report.Update(msg)
	case focusPlan:
		m.planEditor, cmd = m.planEditor.Update(msg)
	default:
		m.input, cmd = m.input.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) setFocus(f focus) {
	m.focus = f
	m.report.Blur()
	m.planEditor.Blur()
	m.input.Blur()
	switch f {
	case focusReport:
		m.report.Focus()
	case focusPlan:
		m.planEditor.Focus()
	default:
		m.input.Focus()
	}
}

func (m *model) toggleFocus() {
	if m.focus == focusReport {
		m.setFocus(focusChat)
		return
	}
	m.setFocus(focusReport)
}

// commitPlanEdit hands the plan editor's text to the controller when it
// differs from the current plan.
func (m *model) commitPlanEdit() error {
	edited := strings.TrimSpace(m.planEditor.Value())
	if edited == strings.TrimSpace(m.snap.Plan) && m.snap.Stage != pipeline.StageInitial {
		return nil
	}
	if err := m.controller.EditPlan(edited); err != nil {
		return err
	}
	m.snap = m.controller.Snapshot()
	m.refreshViewport()
	m.setStatus("Plan saved.", false)
	return nil
}

// nextModel returns the model after the current one in the studio list.
func (m *model) nextModel() string {
	for i, id := range m.models {
		if id == m.snap.Model {
			return m.models[(i+1)%len(m.models)]
		}
	}
	return m.models[0]
}

func (m *model) switchModel(id string) {
	if err := m.controller.SetModel(id); err != nil {
		m.setStatus(apperr.UserMessage("Model switch", err), true)
		return
	}
	m.snap = m.controller.Snapshot()
	m.refreshViewport()
	m.setStatus(fmt.Sprintf("Model set to %s.", m.snap.Model), false)
}

func (m *model) sendChat() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	if rest, ok := strings.CutPrefix(text, modelCommand); ok && (rest == "" || rest[0] == ' ') {
		m.switchModel(rest)
		return nil
	}
	m.requestStartTime = time.Now()
	m.setStatus("", false)
	if m.chatTarget() {
		return tea.Batch(m.spinner.Tick, runOp("HTML refinement", func() error {
			return m.controller.SendChatMessage(m.ctx, text)
		}))
	}
	return tea.Batch(m.spinner.Tick, runOp("Plan refinement", func() error {
		return m.controller.SendPlanChatMessage(m.ctx, text)
	}))
}

// refreshViewport renders the artifact being worked on and its chat transcript.
func (m *model) refreshViewport() {
	width := m.width
	if width <= 0 {
		width = 100
	}

	var b strings.Builder
	title, body := "Plan", m.snap.Plan
	transcript := m.snap.PlanChat
	if m.snap.Stage == pipeline.StageHTMLPending || m.snap.Stage == pipeline.StageHTMLReady {
		title, body = "HTML", m.snap.HTML
	}
	if m.chatTarget() {
		transcript = m.snap.HTMLChat
	}

	b.WriteString(paneTitleStyle.Render(title) + "\n")
	if body == "" {
		b.WriteString(helpStyle.Render("(nothing yet)") + "\n")
	} else {
		b.WriteString(util.WrapToWidth(body, width-2) + "\n")
	}

	for _, entry := range transcript {
		role := userStyle.Render("You: ")
		text := entry.Text
		if entry.Role == providers.RoleAssistant {
			role = assistStyle.Render("Assistant: ")
			if entry.Failed {
				text = errorStyle.Render(text)
			}
		}
		wrapped := lipgloss.NewStyle().Width(max(width-lipgloss.Width(role)-2, 10)).Render(text)
		b.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Top, role, wrapped))
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the studio.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var builder strings.Builder

	stageBadge := lipgloss.NewStyle().
		Background(lipgloss.Color(stageColors[m.snap.Stage])).
		Foreground(lipgloss.Color("0")).
		Padding(0, 1).
		MarginLeft(1).
		Render(m.snap.Stage.String())
	target := "plan"
	if m.chatTarget() {
		target = "html"
	}
	status := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("pagesmith"),
		headerStyle.MarginLeft(1).Render("Model: "+m.snap.Model),
		stageBadge,
		headerStyle.MarginLeft(1).Render("Chat: "+target),
	)
	builder.WriteString(status + "\n\n")

	switch m.focus {
	case focusReport:
		builder.WriteString(m.report.View() + "\n")
	case focusPlan:
		builder.WriteString(paneTitleStyle.Render("Edit plan") + "\n" + m.planEditor.View() + "\n")
	}
	builder.WriteString(m.viewport.View() + "\n")

	if m.busy() {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		builder.WriteString(m.spinner.View() + fmt.Sprintf(" Streaming... %ss (esc to stop)", timer) + "\n")
	} else if m.focus == focusChat {
		builder.WriteString(m.input.View() + "\n")
	}

	if m.status != "" {
		style := noticeStyle
		if m.statusIsError {
			style = errorStyle
		}
		builder.WriteString(style.Render(m.status) + "\n")
	}

	builder.WriteString(helpStyle.Render("ctrl+p plan · ctrl+e edit plan · ctrl+g html · enter send · tab focus · ctrl+t chat target · ctrl+o model · esc stop · ctrl+r reset · ctrl+s save · ctrl+c quit"))
	return builder.String()
}

// Run starts the studio and blocks until the user quits.
func Run(ctx context.Context, cfg *appconfig.Config, provider providers.StreamProvider, outPath string) error {
	if cfg == nil {
		return fmt.Errorf("studio: configuration is not loaded")
	}

	var program *tea.Program
	controller, err := pipeline.New(pipeline.Options{
		Provider: provider,
		Config:   *cfg,
		Listener: func(s pipeline.Snapshot) {
			// Send blocks while Update runs, and Update itself triggers
			// snapshots; stale ones are dropped by Version.
			if program != nil {
				go program.Send(snapshotMsg(s))
			}
		},
	})
	if err != nil {
		return err
	}
	defer controller.Stop()

	m := newModel(ctx, controller, outPath)
	program = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run studio: %w", err)
	}
	return nil
}
