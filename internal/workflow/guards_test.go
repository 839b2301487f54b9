package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

type fakeStages []models.Doc

func (f fakeStages) FindOne(_ context.Context, where store.Cond) (models.Doc, error) {
	for _, stage := range f {
		if where.Matches(stage) {
			return stage.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func testGuards(stages fakeStages) *Guards {
	return NewGuards(stages, config.EditorialConfig{BroadcastGenre: "Broadcast Script"})
}

func TestValidateScheduleEmbargoRules(t *testing.T) {
	future := models.FormatTime(time.Now().Add(time.Hour))
	past := models.FormatTime(time.Now().Add(-time.Hour))

	assert.NoError(t, ValidateSchedule(models.Doc{"state": "in_progress"}))
	assert.NoError(t, ValidateSchedule(models.Doc{"state": "in_progress", "embargo": future}))
	assert.NoError(t, ValidateSchedule(models.Doc{"state": "in_progress", "publish_schedule": future}))

	err := ValidateSchedule(models.Doc{"embargo": future, "publish_schedule": future})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	err = ValidateSchedule(models.Doc{"state": "in_progress", "embargo": past})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	err = ValidateSchedule(models.Doc{"state": "in_progress", "embargo": "garbage"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	// A past embargo survives on items already past the gate.
	assert.NoError(t, ValidateSchedule(models.Doc{"state": "killed", "embargo": past}))
	assert.NoError(t, ValidateSchedule(models.Doc{"state": "scheduled", "embargo": past}))

	err = ValidateSchedule(models.Doc{"type": "composite", "embargo": future})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestCheckDuplicateCodes(t *testing.T) {
	assert.NoError(t, CheckDuplicateCodes(models.Doc{
		"anpa_category": []interface{}{
			map[string]interface{}{"qcode": "a"},
			map[string]interface{}{"qcode": "b"},
		},
	}))

	// Category qcodes compare case-insensitively.
	err := CheckDuplicateCodes(models.Doc{
		"anpa_category": []interface{}{
			map[string]interface{}{"qcode": "A"},
			map[string]interface{}{"qcode": "a"},
		},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErrors.FromError(err).Fields, models.FieldAnpaCategory)

	// Subjects are keyed by scheme and qcode together.
	assert.NoError(t, CheckDuplicateCodes(models.Doc{
		"subject": []interface{}{
			map[string]interface{}{"scheme": "topic", "qcode": "01"},
			map[string]interface{}{"scheme": "desk", "qcode": "01"},
		},
	}))
	err = CheckDuplicateCodes(models.Doc{
		"subject": []interface{}{
			map[string]interface{}{"scheme": "topic", "qcode": "01"},
			map[string]interface{}{"scheme": "topic", "qcode": "01"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, models.FieldSubject)
}

func TestCheckTerminal(t *testing.T) {
	assert.NoError(t, CheckTerminal(models.Doc{"state": "in_progress"}))

	err := CheckTerminal(models.Doc{"state": "killed"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	err = CheckTerminal(models.Doc{"state": "recalled"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCheckReadonlyStage(t *testing.T) {
	g := testGuards(fakeStages{
		{"_id": "s-open", "name": "Incoming", "local_readonly": false},
		{"_id": "s-frozen", "name": "Output", "local_readonly": true},
	})
	ctx := context.Background()

	onOpen := models.Doc{"task": map[string]interface{}{"desk": "d1", "stage": "s-open"}}
	onFrozen := models.Doc{"task": map[string]interface{}{"desk": "d1", "stage": "s-frozen"}}

	assert.NoError(t, g.CheckReadonlyStage(ctx, onOpen, models.Doc{"headline": "h"}, false))

	err := g.CheckReadonlyStage(ctx, onFrozen, models.Doc{"headline": "h"}, false)
	assert.True(t, appErrors.Is(err, appErrors.ErrReadonlyStage))

	// Moving onto a readonly stage is rejected as well.
	err = g.CheckReadonlyStage(ctx, onOpen, models.Doc{
		"task": map[string]interface{}{"desk": "d1", "stage": "s-frozen"},
	}, false)
	assert.True(t, appErrors.Is(err, appErrors.ErrReadonlyStage))

	// Ingest writes bypass the stage check.
	assert.NoError(t, g.CheckReadonlyStage(ctx, onFrozen, models.Doc{"headline": "h"}, true))

	// An unknown stage id is ignored rather than fatal.
	stale := models.Doc{"task": map[string]interface{}{"desk": "d1", "stage": "gone"}}
	assert.NoError(t, g.CheckReadonlyStage(ctx, stale, models.Doc{"headline": "h"}, false))
}

func TestCheckBroadcastGenre(t *testing.T) {
	g := testGuards(nil)

	broadcast := models.Doc{"broadcast": map[string]interface{}{"master_id": "m1"}}
	plain := models.Doc{"headline": "h"}

	newsGenre := models.Doc{"genre": []interface{}{
		map[string]interface{}{"name": "Article"},
	}}
	scriptGenre := models.Doc{"genre": []interface{}{
		map[string]interface{}{"name": "Broadcast Script"},
	}}

	assert.NoError(t, g.CheckBroadcastGenre(plain, newsGenre))
	assert.NoError(t, g.CheckBroadcastGenre(broadcast, scriptGenre))
	assert.NoError(t, g.CheckBroadcastGenre(broadcast, models.Doc{"headline": "h"}))

	err := g.CheckBroadcastGenre(broadcast, newsGenre)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestCheckRunsLockAndScheduleGuards(t *testing.T) {
	g := testGuards(nil)
	ctx := context.Background()

	locked := models.Doc{"state": "in_progress", "lock_user": "other"}
	err := g.Check(ctx, locked, models.Doc{"headline": "h"}, CheckRequest{UserID: "me"})
	assert.True(t, appErrors.Is(err, appErrors.ErrLocked))

	// The lock holder and forced callers pass.
	assert.NoError(t, g.Check(ctx, locked, models.Doc{"headline": "h"}, CheckRequest{UserID: "other"}))
	assert.NoError(t, g.Check(ctx, locked, models.Doc{"headline": "h"}, CheckRequest{UserID: "me", Force: true}))

	// Schedule validation runs on the merged document.
	item := models.Doc{"state": "in_progress", "embargo": models.FormatTime(time.Now().Add(time.Hour))}
	err = g.Check(ctx, item, models.Doc{
		"publish_schedule": models.FormatTime(time.Now().Add(2 * time.Hour)),
	}, CheckRequest{UserID: "me"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	// Force skips schedule validation but not terminal states.
	err = g.Check(ctx, models.Doc{"state": "killed"}, models.Doc{"headline": "h"}, CheckRequest{UserID: "me", Force: true})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}
