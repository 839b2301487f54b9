package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/lock"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// Spike parks an item outside the active workflow: its pre-spike state
// is saved in revert_state, rewrite links and broadcast markers are
// cleared, packages are emptied, and a spike expiry starts the clock on
// hard deletion.
func (w *ItemWorkflow) Spike(ctx context.Context, id, userID string) (models.Doc, error) {
	item, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, err
	}
	if err := lock.Guard(item, userID, false); err != nil {
		return nil, err
	}
	if err := EnsureTransition(ActionSpike, models.ItemState(item)); err != nil {
		return nil, err
	}
	if linked := packages.LinkedPackageIDs(item, true); len(linked) > 0 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest,
			fmt.Sprintf("item is used in package %s and cannot be spiked", linked[0]))
	}
	lastTake, err := w.pkgGuard.IsLastTake(ctx, item)
	if err != nil {
		return nil, err
	}
	if !lastTake {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "only the last take of a story can be spiked")
	}

	updates := models.Doc{
		models.FieldState:       string(models.StateSpiked),
		models.FieldRevertState: item.GetString(models.FieldState),
		models.FieldOperation:   string(models.OpSpike),
		models.FieldRewriteOf:   nil,
		models.FieldRewrittenBy: nil,
		models.FieldBroadcast:   nil,
	}
	if expiry := w.placement.SpikeExpiry(ctx, item.Task()); expiry != "" {
		updates[models.FieldExpiry] = expiry
	}

	if models.IsPackage(item) {
		w.pkgGuard.RemoveBacklinks(ctx, item)
		updates.Apply(packages.EmptyGroups(item))
	}

	// If this item was a rewrite, the take it updated gets its forward
	// link back so it can be rewritten again.
	if rewriteOf := item.GetString(models.FieldRewriteOf); rewriteOf != "" {
		if _, err := w.archive.SystemUpdate(ctx, rewriteOf, models.Doc{models.FieldRewrittenBy: nil}); err != nil {
			w.logger.Warn("rewrite link cleanup failed",
				zap.String("item", id), zap.String("rewrite_of", rewriteOf), zap.Error(err))
		}
	}

	updated, err := w.archive.Update(ctx, id, updates, "")
	if err != nil {
		return nil, err
	}

	w.history.Record(ctx, updated, models.OpSpike, userID, nil)
	w.notify.Push(ctx, "item:spike", map[string]interface{}{
		"item": id,
		"user": userID,
	})
	return updated, nil
}

// Unspike restores an item's pre-spike state. Placement is recomputed
// fresh rather than restored: the item lands on its desk's current
// incoming stage, and expiry restarts from the new placement.
func (w *ItemWorkflow) Unspike(ctx context.Context, id, userID string) (models.Doc, error) {
	item, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, err
	}
	if err := EnsureTransition(ActionUnspike, models.ItemState(item)); err != nil {
		return nil, err
	}

	revertState := item.GetString(models.FieldRevertState)
	if revertState == "" {
		revertState = string(models.StateDraft)
	}

	updates := models.Doc{
		models.FieldState:       revertState,
		models.FieldRevertState: nil,
		models.FieldOperation:   string(models.OpUnspike),
		models.FieldExpiry:      nil,
	}

	task := item.Task()
	if deskID := task.GetString(models.TaskDesk); deskID != "" {
		newTask := task.Clone()
		if stage := w.placement.IncomingStage(ctx, deskID); stage != "" {
			newTask[models.TaskStage] = stage
		}
		updates[models.FieldTask] = map[string]interface{}(newTask)
		if expiry := w.placement.ContentExpiry(ctx, newTask); expiry != "" {
			updates[models.FieldExpiry] = expiry
		}
	} else {
		updates[models.FieldTask] = nil
	}

	updated, err := w.archive.Update(ctx, id, updates, "")
	if err != nil {
		return nil, err
	}

	w.history.Record(ctx, updated, models.OpUnspike, userID, nil)
	w.notify.Push(ctx, "item:unspike", map[string]interface{}{
		"item": id,
		"user": userID,
	})
	return updated, nil
}
