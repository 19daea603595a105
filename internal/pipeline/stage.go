package pipeline

// Stage is the pipeline's position in the report to plan to HTML flow.
type Stage int

const (
	StageInitial Stage = iota
	StagePlanPending
	StagePlanReady
	StageHTMLPending
	StageHTMLReady
)

func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StagePlanPending:
		return "planPending"
	case StagePlanReady:
		return "planReady"
	case StageHTMLPending:
		return "htmlPending"
	case StageHTMLReady:
		return "htmlReady"
	default:
		return "unknown"
	}
}

// Pending reports whether a generation is streaming in this stage.
func (s Stage) Pending() bool {
	return s == StagePlanPending || s == StageHTMLPending
}

// Class is an operation class. Each class has at most one live operation.
type Class int

const (
	ClassPlan Class = iota
	ClassHTML
)

func (c Class) String() string {
	if c == ClassHTML {
		return "html"
	}
	return "plan"
}

// label names the class's operations in user-facing messages.
func (c Class) label(chat bool) string {
	switch {
	case c == ClassPlan && chat:
		return "Plan refinement"
	case c == ClassPlan:
		return "Plan generation"
	case chat:
		return "HTML refinement"
	default:
		return "HTML generation"
	}
}
