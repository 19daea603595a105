// Package pipeline implements the stage controller that drives a report through
// plan generation, HTML generation and chat refinement of either artifact.
//
// A Controller owns all pipeline state. Operations block until their stream
// reaches a terminal event, so callers run them on their own goroutines and
// observe progress through the Listener. Starting an operation cancels the
// previous operation of the same Class and waits for it to unwind; a
// superseded operation can no longer write state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/prompts"
	"github.com/mwiater/pagesmith/internal/providers"
	"github.com/mwiater/pagesmith/internal/session"
	"github.com/mwiater/pagesmith/internal/util"
)

// ErrNoSession is wrapped by the validation error returned when a chat message
// is sent before the matching artifact exists.
var ErrNoSession = errors.New("no active chat session")

const processingText = "Processing…"

// Listener receives a snapshot after every state change. It is called outside
// the controller lock, possibly from several goroutines; use Snapshot.Version
// to discard stale values.
type Listener func(Snapshot)

// Options configures a Controller.
type Options struct {
	Provider providers.StreamProvider
	Config   appconfig.Config
	Listener Listener
}

type operation struct {
	id        uint64
	class     Class
	requestID string
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// Controller is the pipeline stage controller.
type Controller struct {
	provider providers.StreamProvider
	cfg      appconfig.Config
	settings prompts.Settings
	listener Listener

	mu      sync.Mutex
	version uint64
	nextID  uint64

	stage  Stage
	model  string
	report string
	// plan and html are the live texts; the committed values are the last
	// accepted artifacts and survive failed refinements.
	plan          string
	html          string
	committedPlan string
	committedHTML string
	message       string

	planSession *session.Session
	htmlSession *session.Session
	planChat    []ChatEntry
	htmlChat    []ChatEntry

	ops [2]*operation
}

// New creates a Controller in the initial stage.
func New(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("pipeline: nil provider")
	}
	return &Controller{
		provider: opts.Provider,
		cfg:      opts.Config,
		settings: prompts.Settings{
			Language:   opts.Config.Language,
			Theme:      opts.Config.Theme,
			OutputType: opts.Config.OutputType,
		},
		listener: opts.Listener,
		model:    opts.Config.SelectedModel(),
	}, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SetReport replaces the report text. Running operations keep the report they started with.
func (c *Controller) SetReport(text string) {
	c.mu.Lock()
	c.report = text
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// SetModel selects a new model. Live operations are cancelled and both chat
// sessions are rebuilt from the latest accepted artifacts, without history.
func (c *Controller) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return apperr.Validation("Model identifier is empty.")
	}
	if _, err := providers.Resolve(model); err != nil {
		return apperr.ValidationWrap(err, err.Error())
	}

	c.mu.Lock()
	c.abandonLocked()
	c.model = model
	c.planSession = nil
	c.htmlSession = nil
	if c.committedPlan != "" {
		c.planSession = c.newSessionLocked(prompts.PlanChatSeed(c.committedPlan, c.settings))
	}
	if c.committedHTML != "" {
		c.htmlSession = c.newSessionLocked(prompts.HTMLChatSeed(c.report, c.committedPlan, c.committedHTML, c.settings))
	}
	logging.LogEvent("[PIPELINE] model set to %s (stage %s)", model, c.stage)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// GeneratePlan streams a plan for the current report. It clears every
// artifact and chat from earlier runs.
func (c *Controller) GeneratePlan(ctx context.Context) error {
	c.mu.Lock()
	report, model := c.report, c.model
	if err := c.validateReportLocked(report); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.checkCredentialLocked(model); err != nil {
		c.mu.Unlock()
		return err
	}

	prevHTML := c.ops[ClassHTML]
	if prevHTML != nil {
		prevHTML.cancel()
		c.ops[ClassHTML] = nil
	}
	op, prevPlan := c.beginLocked(ctx, ClassPlan)
	c.plan, c.html = "", ""
	c.committedPlan, c.committedHTML = "", ""
	c.planSession, c.htmlSession = nil, nil
	c.planChat, c.htmlChat = nil, nil
	c.message = ""
	c.setStageLocked(op, StagePlanPending)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	defer c.finish(op)

	var full string
	err := c.waitFor(op, prevPlan, prevHTML)
	if err == nil {
		var acc strings.Builder
		err = c.provider.StreamPrompt(op.ctx, providers.PromptRequest{
			Model:     model,
			Prompt:    prompts.PlanPrompt(report, c.settings),
			RequestID: op.requestID,
		}, providers.StreamCallbacks{
			OnChunk: func(delta string) error {
				acc.WriteString(delta)
				return c.update(op, func() { c.plan = acc.String() })
			},
			OnComplete: func(text string) error {
				full = text
				return nil
			},
		})
	}

	cleaned := util.StripCodeFences(full)
	if err == nil && strings.TrimSpace(cleaned) == "" {
		err = fmt.Errorf("%s returned an empty plan", model)
	}

	c.mu.Lock()
	if !c.currentLocked(op) {
		c.mu.Unlock()
		return apperr.Aborted(c.provider.Name())
	}
	c.ops[ClassPlan] = nil
	if err != nil {
		c.plan, c.committedPlan = "", ""
		c.message = apperr.UserMessage(ClassPlan.label(false), err)
		c.setStageLocked(op, StageInitial)
	} else {
		c.plan, c.committedPlan = cleaned, cleaned
		c.planSession = c.newSessionLocked(prompts.PlanChatSeed(cleaned, c.settings))
		c.setStageLocked(op, StagePlanReady)
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return err
}

// GenerateHTMLFromPlan streams an HTML document built from the report and
// planText. planText may differ from the generated plan; it becomes the
// committed plan.
func (c *Controller) GenerateHTMLFromPlan(ctx context.Context, planText string) error {
	c.mu.Lock()
	report, model := c.report, c.model
	plan := util.StripCodeFences(strings.TrimSpace(planText))
	switch {
	case strings.TrimSpace(report) == "":
		c.mu.Unlock()
		return apperr.Validation("Report is empty.")
	case plan == "":
		c.mu.Unlock()
		return apperr.Validation("Plan is empty. Generate or write a plan first.")
	case c.stage != StagePlanReady && c.stage != StageHTMLPending && c.stage != StageHTMLReady:
		c.mu.Unlock()
		return apperr.Validation("No plan is ready (stage %s).", c.stage)
	}
	if err := c.checkCredentialLocked(model); err != nil {
		c.mu.Unlock()
		return err
	}

	prevPlan := c.ops[ClassPlan]
	if prevPlan != nil {
		prevPlan.cancel()
		c.ops[ClassPlan] = nil
	}
	op, prevHTML := c.beginLocked(ctx, ClassHTML)
	if plan != c.committedPlan || c.planSession == nil {
		c.planSession = c.newSessionLocked(prompts.PlanChatSeed(plan, c.settings))
	}
	c.plan, c.committedPlan = plan, plan
	c.html, c.committedHTML = "", ""
	c.htmlSession = nil
	c.htmlChat = nil
	c.message = ""
	c.setStageLocked(op, StageHTMLPending)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	defer c.finish(op)

	var full string
	err := c.waitFor(op, prevPlan, prevHTML)
	if err == nil {
		var acc strings.Builder
		err = c.provider.StreamPrompt(op.ctx, providers.PromptRequest{
			Model:     model,
			Prompt:    prompts.HTMLPrompt(report, plan, c.settings),
			RequestID: op.requestID,
		}, providers.StreamCallbacks{
			OnChunk: func(delta string) error {
				acc.WriteString(delta)
				return c.update(op, func() { c.html = acc.String() })
			},
			OnComplete: func(text string) error {
				full = text
				return nil
			},
		})
	}

	cleaned := util.StripCodeFences(full)
	if err == nil && strings.TrimSpace(cleaned) == "" {
		err = fmt.Errorf("%s returned an empty document", model)
	}

	c.mu.Lock()
	if !c.currentLocked(op) {
		c.mu.Unlock()
		return apperr.Aborted(c.provider.Name())
	}
	c.ops[ClassHTML] = nil
	if err != nil {
		c.html, c.committedHTML = "", ""
		c.message = apperr.UserMessage(ClassHTML.label(false), err)
		c.setStageLocked(op, StagePlanReady)
	} else {
		c.html, c.committedHTML = cleaned, cleaned
		c.htmlSession = c.newSessionLocked(prompts.HTMLChatSeed(report, plan, cleaned, c.settings))
		c.setStageLocked(op, StageHTMLReady)
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return err
}

// SendPlanChatMessage asks the plan-refinement session to revise the plan.
func (c *Controller) SendPlanChatMessage(ctx context.Context, text string) error {
	return c.chat(ctx, ClassPlan, text)
}

// SendChatMessage asks the HTML-refinement session to revise the HTML document.
func (c *Controller) SendChatMessage(ctx context.Context, text string) error {
	return c.chat(ctx, ClassHTML, text)
}

func (c *Controller) chat(ctx context.Context, class Class, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Validation("Message is empty.")
	}

	c.mu.Lock()
	sess := c.sessionLocked(class)
	if sess == nil {
		c.mu.Unlock()
		return apperr.ValidationWrap(ErrNoSession, fmt.Sprintf("No %s is ready to refine.", class))
	}

	op, prev := c.beginLocked(ctx, class)
	userID := c.appendEntryLocked(class, ChatEntry{Role: providers.RoleUser, Text: text})
	replyID := c.appendEntryLocked(class, ChatEntry{Role: providers.RoleAssistant, Text: processingText, Pending: true})
	c.message = ""
	logging.LogEvent("[PIPELINE] %s chat started request=%s entry=%d", class, op.requestID, userID)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	defer c.finish(op)

	var full string
	err := c.waitFor(op, prev)
	if err == nil {
		var acc strings.Builder
		err = sess.SendMessageStream(op.ctx, text, providers.StreamCallbacks{
			OnChunk: func(delta string) error {
				acc.WriteString(delta)
				return c.update(op, func() { c.setLiveLocked(class, acc.String()) })
			},
			OnComplete: func(reply string) error {
				if strings.TrimSpace(util.StripCodeFences(reply)) == "" {
					return fmt.Errorf("%s returned an empty %s", sess.Model(), class)
				}
				full = reply
				return nil
			},
		})
	}

	cleaned := util.StripCodeFences(full)

	c.mu.Lock()
	if !c.currentLocked(op) {
		// Superseded: the new owner of the live text decides its value.
		c.settleEntryLocked(class, replyID, apperr.UserMessage(class.label(true), apperr.Aborted("")), false)
		snap = c.changedLocked()
		c.mu.Unlock()
		c.notify(snap)
		return apperr.Aborted(c.provider.Name())
	}
	c.ops[class] = nil
	if err != nil {
		c.setLiveLocked(class, c.committedLocked(class))
		c.settleEntryLocked(class, replyID, apperr.UserMessage(class.label(true), err), !apperr.IsAborted(err))
	} else {
		if class == ClassPlan {
			c.plan, c.committedPlan = cleaned, cleaned
			c.settleEntryLocked(class, replyID, "Plan updated.", false)
		} else {
			c.html, c.committedHTML = cleaned, cleaned
			c.settleEntryLocked(class, replyID, "Page updated.", false)
		}
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return err
}

// EditPlan commits a plan written or edited by the user and reseeds the plan
// session with it.
func (c *Controller) EditPlan(text string) error {
	plan := strings.TrimSpace(text)
	if plan == "" {
		return apperr.Validation("Plan is empty.")
	}

	c.mu.Lock()
	if c.ops[ClassPlan] != nil {
		c.mu.Unlock()
		return apperr.Validation("The plan is being generated or refined; stop it before editing.")
	}
	c.plan, c.committedPlan = plan, plan
	c.planSession = c.newSessionLocked(prompts.PlanChatSeed(plan, c.settings))
	if c.stage == StageInitial {
		c.stage = StagePlanReady
		logging.LogEvent("[PIPELINE] stage initial -> planReady (edited plan)")
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Stop cancels every live operation. Each operation rolls its own state back
// when it observes the cancellation.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range c.ops {
		if op != nil {
			logging.LogEvent("[PIPELINE] stop requested for %s request=%s", op.class, op.requestID)
			op.cancel()
		}
	}
}

// Reset cancels everything and returns to the initial stage. The report and
// model are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.abandonLocked()
	c.stage = StageInitial
	c.plan, c.html = "", ""
	c.committedPlan, c.committedHTML = "", ""
	c.planSession, c.htmlSession = nil, nil
	c.planChat, c.htmlChat = nil, nil
	c.message = ""
	logging.LogEvent("[PIPELINE] reset")
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// beginLocked registers a new operation for class, cancelling the previous one.
// The previous operation is returned so the caller can wait for it outside the lock.
func (c *Controller) beginLocked(parent context.Context, class Class) (*operation, *operation) {
	prev := c.ops[class]
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.nextID++
	op := &operation{
		id:        c.nextID,
		class:     class,
		requestID: uuid.NewString(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.ops[class] = op
	return op, prev
}

// waitFor blocks until every previous operation has unwound, or op is cancelled.
func (c *Controller) waitFor(op *operation, prevs ...*operation) error {
	for _, prev := range prevs {
		if prev == nil {
			continue
		}
		select {
		case <-prev.done:
		case <-op.ctx.Done():
			return apperr.FromContext(op.ctx, c.provider.Name())
		}
	}
	return nil
}

func (c *Controller) finish(op *operation) {
	op.cancel()
	close(op.done)
}

// abandonLocked cancels every live operation and repairs the state they can no
// longer roll back themselves.
func (c *Controller) abandonLocked() {
	for class, op := range c.ops {
		if op == nil {
			continue
		}
		op.cancel()
		c.ops[class] = nil
	}
	switch c.stage {
	case StagePlanPending:
		c.stage = StageInitial
		c.plan, c.committedPlan = "", ""
	case StageHTMLPending:
		c.stage = StagePlanReady
		c.html, c.committedHTML = "", ""
	}
	c.plan = c.committedPlan
	c.html = c.committedHTML
}

func (c *Controller) currentLocked(op *operation) bool {
	return c.ops[op.class] == op
}

// update applies a streamed write if op still owns its class.
func (c *Controller) update(op *operation, mutate func()) error {
	c.mu.Lock()
	if !c.currentLocked(op) || op.ctx.Err() != nil {
		c.mu.Unlock()
		return apperr.Aborted(c.provider.Name())
	}
	mutate()
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

func (c *Controller) validateReportLocked(report string) error {
	minChars, maxChars := c.cfg.ReportBounds()
	n := utf8.RuneCountInString(strings.TrimSpace(report))
	switch {
	case n == 0:
		return apperr.Validation("Report is empty.")
	case n < minChars:
		return apperr.Validation("Report is too short: %d characters (minimum %d).", n, minChars)
	case n > maxChars:
		return apperr.Validation("Report is too long: %d characters (maximum %d).", n, maxChars)
	}
	return nil
}

func (c *Controller) checkCredentialLocked(model string) error {
	route, err := providers.Resolve(model)
	if err != nil {
		return apperr.ValidationWrap(err, err.Error())
	}
	if key, ok := c.cfg.Credential(route.Provider); !ok {
		return apperr.MissingCredential(route.Provider, key)
	}
	return nil
}

func (c *Controller) newSessionLocked(seed session.Seed) *session.Session {
	sess, err := session.New(c.provider, c.model, seed)
	if err != nil {
		logging.LogEvent("[PIPELINE] cannot create chat session: %v", err)
		return nil
	}
	return sess
}

func (c *Controller) sessionLocked(class Class) *session.Session {
	if class == ClassHTML {
		return c.htmlSession
	}
	return c.planSession
}

func (c *Controller) committedLocked(class Class) string {
	if class == ClassHTML {
		return c.committedHTML
	}
	return c.committedPlan
}

func (c *Controller) setLiveLocked(class Class, text string) {
	if class == ClassHTML {
		c.html = text
	} else {
		c.plan = text
	}
}

func (c *Controller) appendEntryLocked(class Class, entry ChatEntry) uint64 {
	c.nextID++
	entry.ID = c.nextID
	if class == ClassHTML {
		c.htmlChat = append(c.htmlChat, entry)
	} else {
		c.planChat = append(c.planChat, entry)
	}
	return entry.ID
}

// settleEntryLocked replaces a pending placeholder, if it still exists.
func (c *Controller) settleEntryLocked(class Class, id uint64, text string, failed bool) {
	entries := c.planChat
	if class == ClassHTML {
		entries = c.htmlChat
	}
	for i := range entries {
		if entries[i].ID == id && entries[i].Pending {
			entries[i].Text = text
			entries[i].Pending = false
			entries[i].Failed = failed
			return
		}
	}
}

func (c *Controller) setStageLocked(op *operation, stage Stage) {
	if c.stage != stage {
		logging.LogEvent("[PIPELINE] stage %s -> %s request=%s", c.stage, stage, op.requestID)
	}
	c.stage = stage
}

func (c *Controller) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Version:        c.version,
		Stage:          c.stage,
		Model:          c.model,
		Report:         c.report,
		Plan:           c.plan,
		HTML:           c.html,
		Message:        c.message,
		PlanBusy:       c.ops[ClassPlan] != nil,
		HTMLBusy:       c.ops[ClassHTML] != nil,
		HasPlanSession: c.planSession != nil,
		HasHTMLSession: c.htmlSession != nil,
		PlanChat:       copyEntries(c.planChat),
		HTMLChat:       copyEntries(c.htmlChat),
	}
}

func (c *Controller) notify(snap Snapshot) {
	if c.listener != nil {
		c.listener(snap)
	}
}
