package models

// State enumerates the workflow states of an archive item.
type State string

const (
	StateDraft          State = "draft"
	StateIngested       State = "ingested"
	StateFetched        State = "fetched"
	StateRouted         State = "routed"
	StateSubmitted      State = "submitted"
	StateInProgress     State = "in_progress"
	StateScheduled      State = "scheduled"
	StatePublished      State = "published"
	StateCorrected      State = "corrected"
	StateBeingCorrected State = "being_corrected"
	StateCorrection     State = "correction"
	StateKilled         State = "killed"
	StateRecalled       State = "recalled"
	StateSpiked         State = "spiked"
	StateUnpublished    State = "unpublished"
)

// Operation enumerates the verbs that produce a new item version.
type Operation string

const (
	OpCreate         Operation = "create"
	OpFetch          Operation = "fetch"
	OpUpdate         Operation = "update"
	OpCorrect        Operation = "correct"
	OpSpike          Operation = "spike"
	OpUnspike        Operation = "unspike"
	OpRewrite        Operation = "rewrite"
	OpLink           Operation = "link"
	OpUnlink         Operation = "unlink"
	OpDeschedule     Operation = "deschedule"
	OpRestore        Operation = "restore"
	OpDuplicate      Operation = "duplicate"
	OpDuplicatedFrom Operation = "duplicated_from"
	OpItemLock       Operation = "item_lock"
	OpItemUnlock     Operation = "item_unlock"
)

// ItemState reads the state field of a document.
func ItemState(doc Doc) State {
	return State(doc.GetString(FieldState))
}

// PublishedStates are states reached through the publishing pipeline.
var PublishedStates = map[State]struct{}{
	StatePublished:   {},
	StateCorrected:   {},
	StateKilled:      {},
	StateRecalled:    {},
	StateUnpublished: {},
	StateScheduled:   {},
}

// TerminalStates reject any further content updates.
var TerminalStates = map[State]struct{}{
	StateKilled:   {},
	StateRecalled: {},
}

// IsPublished reports whether the state belongs to the publishing pipeline.
func IsPublished(s State) bool {
	_, ok := PublishedStates[s]
	return ok
}

// IsTerminal reports whether the state is terminal.
func IsTerminal(s State) bool {
	_, ok := TerminalStates[s]
	return ok
}
