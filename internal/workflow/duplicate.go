package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// duplicationDenylist names the fields a duplicate never inherits.
var duplicationDenylist = []string{
	models.FieldETag, models.FieldCreated, models.FieldUpdated,
	models.FieldLatestVersion, models.FieldUniqueID, models.FieldUniqueName,
	models.FieldLockUser, models.FieldLockSession,
	models.FieldLockAction, models.FieldLockTime,
	models.FieldEmbargo, models.FieldPublishSchedule, models.FieldScheduleSettings,
	models.FieldLinkedInPackages, models.FieldSignOff,
	models.FieldRewriteOf, models.FieldRewrittenBy,
	models.FieldHighlights, models.FieldProcessedFrom,
	models.FieldTranslations, models.FieldTranslatedFrom,
	models.FieldFirstPublished, models.FieldExpiryStatus,
	models.FieldCorrectionBy,
}

// DuplicateOptions parameterizes item duplication.
type DuplicateOptions struct {
	UserID string
	// State overrides the duplicate's workflow state; empty applies the
	// default resolution.
	State models.State
	// ExtraRemove lists additional fields to drop from the copy.
	ExtraRemove []string
	// Operation overrides the stamped operation, OpDuplicate by default.
	Operation models.Operation
}

// Duplicate deep-copies an item into a new document with fresh identity,
// carries its version history and audit trail forward, and recursively
// duplicates package members. Returns the new item id.
func (w *ItemWorkflow) Duplicate(ctx context.Context, originalID string, opts DuplicateOptions) (string, error) {
	original, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, originalID))
	if err != nil {
		return "", err
	}
	if models.IsTerminal(models.ItemState(original)) {
		return "", appErrors.Transition("duplicate", original.GetString(models.FieldState))
	}

	copy := original.Clone()
	copy.Remove(duplicationDenylist...)
	copy.Remove(opts.ExtraRemove...)

	newID := uuid.NewString()
	copy[models.FieldID] = newID
	copy[models.FieldGUID] = newID
	copy[models.FieldDuplicatedFrom] = originalID
	// The duplicate continues the original's version line so version
	// numbers copied from the history never collide with its own.
	copy[models.FieldCurrentVersion] = original.GetInt(models.FieldCurrentVersion) + 1

	state := opts.State
	if state == "" {
		state = models.ItemState(original)
		if original.Task().GetString(models.TaskDesk) != "" {
			state = models.StateSubmitted
		}
	}
	copy[models.FieldState] = string(state)
	copy.Remove(models.FieldRevertState)

	operation := opts.Operation
	if operation == "" {
		operation = models.OpDuplicate
	}
	copy[models.FieldOperation] = string(operation)
	if opts.UserID != "" {
		copy[models.FieldVersionCreator] = opts.UserID
	}

	if models.IsPackage(copy) {
		if err := w.duplicateMembers(ctx, copy, opts.UserID); err != nil {
			return "", err
		}
	}

	if _, err := w.archive.Create(ctx, []models.Doc{copy}); err != nil {
		return "", err
	}

	if versionStore := w.archive.Versions(); versionStore != nil {
		if _, err := versionStore.DuplicateVersions(ctx, w.archive.Name(), originalID, copy); err != nil {
			w.logger.Warn("version history duplication failed",
				zap.String("original", originalID), zap.String("duplicate", newID), zap.Error(err))
		}
	}
	if _, err := w.history.Duplicate(ctx, originalID, newID); err != nil {
		w.logger.Warn("audit history duplication failed",
			zap.String("original", originalID), zap.String("duplicate", newID), zap.Error(err))
	}

	w.history.Record(ctx, copy, models.OpDuplicate, opts.UserID, nil)
	w.history.Record(ctx, original, models.OpDuplicatedFrom, opts.UserID, models.Doc{"duplicate_id": newID})

	task := original.Task()
	w.notify.Push(ctx, "item:duplicate", map[string]interface{}{
		"item":           newID,
		"original":       originalID,
		"user":           opts.UserID,
		models.TaskDesk:  task.GetString(models.TaskDesk),
		models.TaskStage: task.GetString(models.TaskStage),
	})
	w.notify.Push(ctx, "item:duplicated_from", map[string]interface{}{
		"item":      originalID,
		"duplicate": newID,
		"user":      opts.UserID,
	})
	return newID, nil
}

// duplicateMembers recursively duplicates every referenced item of a
// package copy and rewrites the reference ids in place.
func (w *ItemWorkflow) duplicateMembers(ctx context.Context, pkg models.Doc, userID string) error {
	idMap := map[string]string{}
	for _, memberID := range packages.ReferencedIDs(pkg) {
		if _, done := idMap[memberID]; done {
			continue
		}
		newID, err := w.Duplicate(ctx, memberID, DuplicateOptions{UserID: userID})
		if err != nil {
			return err
		}
		idMap[memberID] = newID
	}

	for _, rawGroup := range pkg.GetList(models.FieldGroups) {
		group, ok := rawGroup.(map[string]interface{})
		if !ok {
			continue
		}
		for _, rawRef := range models.Doc(group).GetList(models.FieldRefs) {
			ref, ok := rawRef.(map[string]interface{})
			if !ok {
				continue
			}
			if newID, mapped := idMap[models.Doc(ref).GetString(models.RefResidRef)]; mapped {
				ref[models.RefResidRef] = newID
			}
		}
	}
	return nil
}
