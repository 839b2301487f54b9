// Package published manages the published-copy collection: one document
// per publish event of an item, referenced by item_id. Correction,
// rewrite and the expiry reaper patch these copies alongside the archive
// original.
package published

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
)

// Service wraps the published resource.
type Service struct {
	resource *resource.Service
	logger   *zap.Logger
}

// NewService builds the published service.
func NewService(res *resource.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resource: res, logger: logger}
}

// CopiesOf returns every published copy of an item.
func (s *Service) CopiesOf(ctx context.Context, itemID string) ([]models.Doc, error) {
	result, _, err := s.resource.Find(ctx, store.Query{
		Where:    store.Eq(models.FieldItemID, itemID),
		Sort:     []store.SortField{{Field: models.FieldCurrentVersion}},
		PageSize: 200,
	})
	if err != nil {
		return nil, err
	}
	return result.Docs, nil
}

// PatchCopies applies a system update to every published copy of an
// item. Failures on individual copies are logged and skipped so one bad
// copy does not abort the editorial action.
func (s *Service) PatchCopies(ctx context.Context, itemID string, updates models.Doc) {
	copies, err := s.CopiesOf(ctx, itemID)
	if err != nil {
		s.logger.Warn("published lookup failed", zap.String("item", itemID), zap.Error(err))
		return
	}
	for _, copy := range copies {
		if _, err := s.resource.SystemUpdate(ctx, copy.ID(), updates); err != nil {
			s.logger.Warn("published patch failed",
				zap.String("item", itemID), zap.String("copy", copy.ID()), zap.Error(err))
		}
	}
}

// Record stores a new published copy of an item.
func (s *Service) Record(ctx context.Context, item models.Doc) (string, error) {
	copy := item.Clone()
	copy[models.FieldItemID] = item.ID()
	copy[models.FieldID] = uuid.NewString()
	copy.Remove(models.FieldUniqueID)
	ids, err := s.resource.Create(ctx, []models.Doc{copy})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// DeleteCopies removes all published copies of an item, returning the
// number removed.
func (s *Service) DeleteCopies(ctx context.Context, itemID string) (int, error) {
	return s.resource.DeleteWhere(ctx, store.Eq(models.FieldItemID, itemID))
}
