// Package audit records every mutating editorial operation into the
// archive_history collection: actor, operation, version and the update
// payload. Writes are best-effort; a failed history write never fails
// the operation it describes.
package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
)

// FieldItemID links a history entry to its item.
const FieldItemID = "item_id"

// History writes operation records for archive items.
type History struct {
	docs   store.DocumentStore
	logger *zap.Logger
}

// NewHistory builds the history recorder.
func NewHistory(docs store.DocumentStore, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{docs: docs, logger: logger}
}

// Record appends one history entry. update may be nil for operations
// without a payload (lock, unlock, spike).
func (h *History) Record(ctx context.Context, item models.Doc, operation models.Operation, userID string, update models.Doc) {
	entry := models.Doc{
		models.FieldID:             uuid.NewString(),
		FieldItemID:                item.ID(),
		models.FieldOperation:      string(operation),
		models.FieldCurrentVersion: item.GetInt(models.FieldCurrentVersion),
		"user_id":                  userID,
	}
	if update != nil {
		entry["update"] = map[string]interface{}(update.Clone())
	}
	if _, err := h.docs.Insert(ctx, models.ResourceArchiveHistory, entry); err != nil {
		h.logger.Warn("history write failed",
			zap.String("item", item.ID()), zap.String("operation", string(operation)), zap.Error(err))
	}
}

// ListForItem returns the history of one item ordered by insertion.
func (h *History) ListForItem(ctx context.Context, itemID string) ([]models.Doc, error) {
	result, err := h.docs.Find(ctx, models.ResourceArchiveHistory, store.Query{
		Where: store.Eq(FieldItemID, itemID),
		Sort:  []store.SortField{{Field: models.FieldUniqueID}},
	})
	if err != nil {
		return nil, err
	}
	return result.Docs, nil
}

// Duplicate copies every history entry of oldID onto the new item id;
// used by item duplication. Returns the number of copied entries.
func (h *History) Duplicate(ctx context.Context, oldID, newID string) (int, error) {
	entries, err := h.ListForItem(ctx, oldID)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, entry := range entries {
		dup := entry.Clone()
		dup[models.FieldID] = uuid.NewString()
		dup[FieldItemID] = newID
		dup.Remove(models.FieldUniqueID)
		if _, err := h.docs.Insert(ctx, models.ResourceArchiveHistory, dup); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// DeleteForItem removes the history of one item; used on hard delete.
func (h *History) DeleteForItem(ctx context.Context, itemID string) {
	if _, err := h.docs.DeleteWhere(ctx, models.ResourceArchiveHistory, store.Eq(FieldItemID, itemID)); err != nil {
		h.logger.Warn("history delete failed", zap.String("item", itemID), zap.Error(err))
	}
}
