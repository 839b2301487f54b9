package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		action  Action
		from    models.State
		allowed bool
	}{
		{ActionSave, models.StateDraft, true},
		{ActionSave, models.StatePublished, true},
		{ActionSave, models.StateSpiked, false},
		{ActionSave, models.StateKilled, false},
		{ActionSchedule, models.StateInProgress, true},
		{ActionSchedule, models.StateDraft, false},
		{ActionDeschedule, models.StateScheduled, true},
		{ActionDeschedule, models.StateInProgress, false},
		{ActionSpike, models.StateDraft, true},
		{ActionSpike, models.StatePublished, false},
		{ActionSpike, models.StateSpiked, false},
		{ActionUnspike, models.StateSpiked, true},
		{ActionUnspike, models.StateDraft, false},
		{ActionCorrect, models.StatePublished, true},
		{ActionCorrect, models.StateCorrected, true},
		{ActionCorrect, models.StateInProgress, false},
		{ActionRewrite, models.StatePublished, true},
		{ActionRewrite, models.StateDraft, false},
		{ActionKill, models.StateSpiked, true},
		{ActionKill, models.StateKilled, false},
		{ActionRecall, models.StateKilled, true},
		{ActionRecall, models.StatePublished, false},
		{Action("unknown"), models.StateDraft, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.action, tc.from),
			"%s from %s", tc.action, tc.from)
	}
}

func TestEnsureTransition(t *testing.T) {
	assert.NoError(t, EnsureTransition(ActionSpike, models.StateDraft))

	err := EnsureTransition(ActionSpike, models.StatePublished)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestResolveSaveState(t *testing.T) {
	cases := []struct {
		name     string
		original models.Doc
		updates  models.Doc
		want     models.State
		changed  bool
	}{
		{
			name:     "draft without desk stays draft",
			original: models.Doc{"state": "draft"},
			updates:  models.Doc{"headline": "h"},
			want:     models.StateDraft,
			changed:  false,
		},
		{
			name:     "draft gaining a desk is submitted",
			original: models.Doc{"state": "draft"},
			updates:  models.Doc{"task": map[string]interface{}{"desk": "d1"}},
			want:     models.StateSubmitted,
			changed:  true,
		},
		{
			name:     "draft already on a desk moves to in_progress",
			original: models.Doc{"state": "draft", "task": map[string]interface{}{"desk": "d1"}},
			updates:  models.Doc{"headline": "h"},
			want:     models.StateInProgress,
			changed:  true,
		},
		{
			name:     "ingested save moves to in_progress",
			original: models.Doc{"state": "ingested"},
			updates:  models.Doc{"headline": "h"},
			want:     models.StateInProgress,
			changed:  true,
		},
		{
			name:     "submitted save moves to in_progress",
			original: models.Doc{"state": "submitted"},
			updates:  models.Doc{"headline": "h"},
			want:     models.StateInProgress,
			changed:  true,
		},
		{
			name:     "published save keeps its state",
			original: models.Doc{"state": "published"},
			updates:  models.Doc{"headline": "h"},
			want:     models.StatePublished,
			changed:  false,
		},
		{
			name:     "explicit state in the payload wins",
			original: models.Doc{"state": "draft"},
			updates:  models.Doc{"state": "routed"},
			want:     models.StateInProgress,
			changed:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, changed := ResolveSaveState(tc.original, tc.updates)
			assert.Equal(t, tc.want, state)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestOrdinalTakeKey(t *testing.T) {
	cases := map[int]string{
		1:   "update",
		2:   "2nd update",
		3:   "3rd update",
		4:   "4th update",
		11:  "11th update",
		12:  "12th update",
		13:  "13th update",
		21:  "21st update",
		22:  "22nd update",
		103: "103rd update",
	}
	for n, want := range cases {
		assert.Equal(t, want, ordinalTakeKey(n))
	}
}

func TestValidateSaveState(t *testing.T) {
	cases := []struct {
		name        string
		current     models.State
		target      models.State
		hasSchedule bool
		wantErr     *appErrors.Error
	}{
		{name: "same state is a no-op", current: models.StatePublished, target: models.StatePublished},
		{name: "draft may move to in_progress", current: models.StateDraft, target: models.StateInProgress},
		{name: "routed may move to submitted", current: models.StateRouted, target: models.StateSubmitted},
		{name: "draft cannot jump to published", current: models.StateDraft, target: models.StatePublished,
			wantErr: appErrors.ErrInvalidTransition},
		{name: "draft cannot jump to killed", current: models.StateDraft, target: models.StateKilled,
			wantErr: appErrors.ErrInvalidTransition},
		{name: "in_progress cannot jump to spiked", current: models.StateInProgress, target: models.StateSpiked,
			wantErr: appErrors.ErrInvalidTransition},
		{name: "scheduling from in_progress", current: models.StateInProgress, target: models.StateScheduled,
			hasSchedule: true},
		{name: "scheduling needs a publish schedule", current: models.StateInProgress, target: models.StateScheduled,
			wantErr: appErrors.ErrBadRequest},
		{name: "scheduling from published is not allowed", current: models.StatePublished, target: models.StateScheduled,
			hasSchedule: true, wantErr: appErrors.ErrInvalidTransition},
		{name: "spiked items cannot be saved into a working state", current: models.StateSpiked, target: models.StateDraft,
			wantErr: appErrors.ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSaveState(tc.current, tc.target, tc.hasSchedule)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, appErrors.Is(err, tc.wantErr))
		})
	}
}
