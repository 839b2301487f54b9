// Package workflow implements the archive state machine: guarded
// transitions of an item's state field, the save/create pipelines, and
// the editorial actions built on them (spike, unspike, correction,
// rewrite, duplication, deschedule).
package workflow

import (
	"fmt"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// Action names an editorial verb that may change an item's state.
type Action string

const (
	ActionSave       Action = "save"
	ActionSchedule   Action = "schedule"
	ActionDeschedule Action = "deschedule"
	ActionSpike      Action = "spike"
	ActionUnspike    Action = "unspike"
	ActionCorrect    Action = "correct"
	ActionRewrite    Action = "rewrite"
	ActionKill       Action = "kill"
	ActionRecall     Action = "recall"
)

// transitions maps each action to the states it may start from. Built
// once at init and never mutated afterwards.
var transitions = map[Action]map[models.State]struct{}{
	ActionSave: stateSet(
		models.StateDraft, models.StateIngested, models.StateFetched,
		models.StateRouted, models.StateSubmitted, models.StateInProgress,
		models.StateScheduled, models.StatePublished, models.StateCorrected,
		models.StateBeingCorrected, models.StateCorrection, models.StateUnpublished,
	),
	ActionSchedule:   stateSet(models.StateSubmitted, models.StateInProgress),
	ActionDeschedule: stateSet(models.StateScheduled),
	ActionSpike: stateSet(
		models.StateDraft, models.StateIngested, models.StateFetched,
		models.StateRouted, models.StateSubmitted, models.StateInProgress,
		models.StateCorrection, models.StateUnpublished,
	),
	ActionUnspike: stateSet(models.StateSpiked),
	ActionCorrect: stateSet(models.StatePublished, models.StateCorrected),
	ActionRewrite: stateSet(models.StatePublished, models.StateCorrected),
	ActionKill: stateSet(
		models.StateDraft, models.StateIngested, models.StateFetched,
		models.StateRouted, models.StateSubmitted, models.StateInProgress,
		models.StateScheduled, models.StatePublished, models.StateCorrected,
		models.StateBeingCorrected, models.StateCorrection, models.StateSpiked,
		models.StateUnpublished,
	),
	ActionRecall: stateSet(models.StateKilled),
}

func stateSet(states ...models.State) map[models.State]struct{} {
	set := make(map[models.State]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return set
}

// CanTransition reports whether the action is allowed from the state.
func CanTransition(action Action, from models.State) bool {
	allowed, ok := transitions[action]
	if !ok {
		return false
	}
	_, ok = allowed[from]
	return ok
}

// EnsureTransition rejects an action that is not allowed from the state.
func EnsureTransition(action Action, from models.State) error {
	if CanTransition(action, from) {
		return nil
	}
	return appErrors.Transition(string(action), string(from))
}

// saveStates are the pre-publication states a client payload may name
// directly. Every other state is owned by a dedicated action (publish,
// schedule, spike, kill, correction) and is unreachable through a save.
var saveStates = stateSet(
	models.StateDraft, models.StateRouted,
	models.StateSubmitted, models.StateInProgress,
)

// ValidateSaveState checks an explicit state carried in a save payload
// against the transition table. scheduled additionally requires a
// publish schedule on the merged document.
func ValidateSaveState(current, target models.State, hasSchedule bool) error {
	if target == current {
		return nil
	}
	if target == models.StateScheduled {
		if err := EnsureTransition(ActionSchedule, current); err != nil {
			return err
		}
		if !hasSchedule {
			return appErrors.Clone(appErrors.ErrBadRequest, "scheduling requires a publish schedule")
		}
		return nil
	}
	// Leaving scheduled goes through the deschedule action, never a save.
	if current == models.StateScheduled {
		return appErrors.Transition(string(ActionSave), string(current))
	}
	if _, ok := saveStates[target]; !ok {
		return appErrors.Transition(string(ActionSave), string(current))
	}
	return EnsureTransition(ActionSave, current)
}

// ResolveSaveState computes the state a genuine save moves the item to.
// A draft stays a draft until it lands on a desk; placing it on a desk
// submits it; saves on pre-publication desk states move the item to
// in_progress; setting a publish schedule moves the item to scheduled;
// publication-pipeline states are left untouched.
func ResolveSaveState(original, updates models.Doc) (models.State, bool) {
	current := models.ItemState(original)
	if s := updates.GetString(models.FieldState); s != "" {
		current = models.State(s)
	}

	if updates.Has(models.FieldPublishSchedule) && CanTransition(ActionSchedule, current) {
		return models.StateScheduled, true
	}

	switch current {
	case models.StateDraft:
		hadDesk := original.Task().GetString(models.TaskDesk) != ""
		getsDesk := updates.GetDoc(models.FieldTask).GetString(models.TaskDesk) != ""
		if !hadDesk && getsDesk {
			return models.StateSubmitted, true
		}
		if hadDesk {
			return models.StateInProgress, true
		}
		return models.StateDraft, false
	case models.StateIngested, models.StateFetched, models.StateRouted, models.StateSubmitted:
		return models.StateInProgress, true
	}
	return current, false
}

// ordinalTakeKey renders the take key for the n-th rewrite of an event:
// the first update is plain "update", later ones carry their ordinal.
func ordinalTakeKey(n int) string {
	if n <= 1 {
		return "update"
	}
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s update", n, suffix)
}
