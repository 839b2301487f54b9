package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/published"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// correctionFields is the content carried from a published item into its
// correction document.
var correctionFields = []string{
	models.FieldType, models.FieldHeadline, models.FieldSlugline,
	models.FieldAbstract, models.FieldBodyHTML, models.FieldBodyFooter,
	models.FieldGenre, models.FieldAnpaCategory, models.FieldAnpaTakeKey,
	models.FieldSubject, models.FieldPriority, models.FieldUrgency,
	models.FieldLanguage, models.FieldSource, models.FieldProfile,
	models.FieldWordCount, models.FieldEventID, models.FieldFamilyID,
	models.FieldAssociations, models.FieldExtra, models.FieldFieldsMeta,
}

// CorrectionService creates and withdraws standalone correction
// documents for published items.
type CorrectionService struct {
	archive   *resource.Service
	placement *Placement
	published *published.Service
	history   *audit.History
	notify    notify.Publisher
	logger    *zap.Logger
}

// NewCorrectionService wires the correction service.
func NewCorrectionService(
	archive *resource.Service,
	placement *Placement,
	pub *published.Service,
	history *audit.History,
	publisher notify.Publisher,
	logger *zap.Logger,
) *CorrectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &CorrectionService{
		archive:   archive,
		placement: placement,
		published: pub,
		history:   history,
		notify:    publisher,
		logger:    logger,
	}
}

// Create builds a correction document for the published original, routes
// it to the original desk's working stage, and marks the original and
// every published copy as being corrected.
func (s *CorrectionService) Create(ctx context.Context, originalID, userID string) (models.Doc, error) {
	original, err := s.archive.FindOne(ctx, store.Eq(models.FieldID, originalID))
	if err != nil {
		return nil, err
	}
	if err := EnsureTransition(ActionCorrect, models.ItemState(original)); err != nil {
		return nil, err
	}
	if original.Has(models.FieldCorrectionBy) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "item is already being corrected")
	}

	correction := models.Doc{}
	for _, field := range correctionFields {
		if v, ok := original[field]; ok && v != nil {
			correction[field] = v
		}
	}
	correction = correction.Clone()

	correctionID := uuid.NewString()
	correction[models.FieldID] = correctionID
	correction[models.FieldGUID] = correctionID
	correction[models.FieldState] = string(models.StateCorrection)
	correction[models.FieldOperation] = string(models.OpCorrect)
	correction[models.FieldCorrectedOf] = originalID
	correction[models.FieldCorrectionSequence] = original.GetInt(models.FieldCorrectionSequence) + 1
	if userID != "" {
		correction[models.FieldVersionCreator] = userID
	}

	task := original.Task().Clone()
	if deskID := task.GetString(models.TaskDesk); deskID != "" {
		if stage := s.placement.WorkingStage(ctx, deskID); stage != "" {
			task[models.TaskStage] = stage
		}
	}
	task[models.TaskUser] = userID
	correction[models.FieldTask] = map[string]interface{}(task)

	if _, err := s.archive.Create(ctx, []models.Doc{correction}); err != nil {
		return nil, err
	}

	marking := models.Doc{
		models.FieldCorrectionBy: correctionID,
		models.FieldState:        string(models.StateBeingCorrected),
	}
	if _, err := s.archive.SystemUpdate(ctx, originalID, marking); err != nil {
		s.logger.Warn("original correction marking failed",
			zap.String("item", originalID), zap.Error(err))
	}
	s.published.PatchCopies(ctx, originalID, marking)

	s.history.Record(ctx, correction, models.OpCorrect, userID, nil)
	s.notify.Push(ctx, "item:correction", map[string]interface{}{
		"item":       originalID,
		"correction": correctionID,
		"user":       userID,
	})
	return correction, nil
}

// Delete withdraws an unpublished correction: the original and its
// published copies return to published, and the correction document is
// hard-deleted along with its history.
func (s *CorrectionService) Delete(ctx context.Context, correctionID, userID string) error {
	correction, err := s.archive.FindOne(ctx, store.Eq(models.FieldID, correctionID))
	if err != nil {
		return err
	}
	originalID := correction.GetString(models.FieldCorrectedOf)
	if originalID == "" {
		return appErrors.Clone(appErrors.ErrBadRequest, "document is not a correction")
	}

	restore := models.Doc{
		models.FieldCorrectionBy: nil,
		models.FieldState:        string(models.StatePublished),
	}
	if _, err := s.archive.SystemUpdate(ctx, originalID, restore); err != nil {
		s.logger.Warn("original restore failed", zap.String("item", originalID), zap.Error(err))
	}
	s.published.PatchCopies(ctx, originalID, restore)

	if err := s.archive.Delete(ctx, correction, ""); err != nil {
		return err
	}
	s.history.DeleteForItem(ctx, correctionID)

	s.notify.Push(ctx, "item:correction_removed", map[string]interface{}{
		"item":       originalID,
		"correction": correctionID,
		"user":       userID,
	})
	return nil
}
