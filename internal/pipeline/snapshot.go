package pipeline

// ChatEntry is one line of a refinement transcript.
type ChatEntry struct {
	ID   uint64
	Role string
	Text string
	// Pending marks the placeholder shown while a reply streams.
	Pending bool
	Failed  bool
}

// Snapshot is an immutable view of the controller state.
type Snapshot struct {
	// Version increases with every state change.
	Version uint64
	Stage   Stage
	Model   string
	Report  string
	// Plan and HTML hold the live text, including partial streamed output.
	Plan    string
	HTML    string
	Message string

	PlanBusy bool
	HTMLBusy bool

	HasPlanSession bool
	HasHTMLSession bool
	PlanChat       []ChatEntry
	HTMLChat       []ChatEntry
}

func copyEntries(entries []ChatEntry) []ChatEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]ChatEntry, len(entries))
	copy(out, entries)
	return out
}
