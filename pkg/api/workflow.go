package api

// State is a named node in a Workflow. States are compared by ID only;
// Label exists for display and audit messages.
type State struct {
	ID        string
	Label     string
	Published bool
}

// Workflow is the set of valid states for documents of a given kind.
// It is read-only to the runner.
type Workflow struct {
	ID     string
	Label  string
	States map[string]State
}

// NewWorkflow builds a Workflow from the given states.
func NewWorkflow(id string, label string, states ...State) Workflow {
	m := make(map[string]State, len(states))
	for _, s := range states {
		m[s.ID] = s
	}
	return Workflow{ID: id, Label: label, States: m}
}

// StateOrPlaceholder returns the named state. When the workflow has no such
// state, it returns a placeholder carrying the raw id verbatim, with the id
// in brackets as its label. Transitions into unknown states are tolerated;
// the placeholder only affects message rendering.
func (w Workflow) StateOrPlaceholder(id string) State {
	if s, ok := w.States[id]; ok {
		return s
	}
	return State{ID: id, Label: "[" + id + "]"}
}
