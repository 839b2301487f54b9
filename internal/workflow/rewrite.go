package workflow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/published"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// rewriteFields is the content carried from an original into a fresh
// rewrite document.
var rewriteFields = []string{
	models.FieldType, models.FieldHeadline, models.FieldSlugline,
	models.FieldAbstract, models.FieldGenre, models.FieldAnpaCategory,
	models.FieldSubject, models.FieldPriority, models.FieldUrgency,
	models.FieldLanguage, models.FieldSource, models.FieldProfile,
	models.FieldEventID, models.FieldFamilyID,
}

// RewriteService links update stories onto published originals.
type RewriteService struct {
	archive   *resource.Service
	placement *Placement
	pkgGuard  *packages.Guard
	published *published.Service
	history   *audit.History
	notify    notify.Publisher
	cfg       config.EditorialConfig
	logger    *zap.Logger
}

// NewRewriteService wires the rewrite service.
func NewRewriteService(
	archive *resource.Service,
	placement *Placement,
	pkgGuard *packages.Guard,
	pub *published.Service,
	history *audit.History,
	publisher notify.Publisher,
	cfg config.EditorialConfig,
	logger *zap.Logger,
) *RewriteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &RewriteService{
		archive:   archive,
		placement: placement,
		pkgGuard:  pkgGuard,
		published: pub,
		history:   history,
		notify:    publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// RewriteOptions parameterizes a rewrite.
type RewriteOptions struct {
	UserID string
	// UpdateID attaches the rewrite to an existing document instead of
	// creating a fresh one.
	UpdateID string
}

// Rewrite creates or links the update story of a published original,
// stamps its ordinal take key, and maintains the bidirectional
// rewrite_of/rewritten_by links across original, takes package and
// published copies.
func (s *RewriteService) Rewrite(ctx context.Context, originalID string, opts RewriteOptions) (models.Doc, error) {
	original, err := s.archive.FindOne(ctx, store.Eq(models.FieldID, originalID))
	if err != nil {
		return nil, err
	}
	if err := s.validateOriginal(ctx, original); err != nil {
		return nil, err
	}

	takeKey, err := s.nextTakeKey(ctx, original.GetString(models.FieldEventID))
	if err != nil {
		return nil, err
	}

	// A takes package stands in for the original as the link target so
	// the chain follows the digital story.
	rewriteTarget := originalID
	takesPkg, err := s.pkgGuard.TakesPackageOf(ctx, original)
	if err != nil {
		return nil, err
	}
	if takesPkg != nil {
		rewriteTarget = takesPkg.ID()
	}

	var rewrite models.Doc
	if opts.UpdateID != "" {
		update, err := s.archive.FindOne(ctx, store.Eq(models.FieldID, opts.UpdateID))
		if err != nil {
			return nil, err
		}
		if err := validateLinkTarget(update); err != nil {
			return nil, err
		}
		rewrite, err = s.archive.SystemUpdate(ctx, opts.UpdateID, models.Doc{
			models.FieldRewriteOf:   rewriteTarget,
			models.FieldAnpaTakeKey: takeKey,
		})
		if err != nil {
			return nil, err
		}
	} else {
		rewrite = models.Doc{}
		for _, field := range rewriteFields {
			if v, ok := original[field]; ok && v != nil {
				rewrite[field] = v
			}
		}
		rewrite = rewrite.Clone()

		rewriteID := uuid.NewString()
		rewrite[models.FieldID] = rewriteID
		rewrite[models.FieldGUID] = rewriteID
		rewrite[models.FieldState] = string(models.StateInProgress)
		rewrite[models.FieldOperation] = string(models.OpRewrite)
		rewrite[models.FieldRewriteOf] = rewriteTarget
		rewrite[models.FieldAnpaTakeKey] = takeKey
		if opts.UserID != "" {
			rewrite[models.FieldVersionCreator] = opts.UserID
			rewrite[models.FieldOriginalCreator] = opts.UserID
		}

		task := original.Task().Clone()
		if deskID := task.GetString(models.TaskDesk); deskID != "" {
			if stage := s.placement.WorkingStage(ctx, deskID); stage != "" {
				task[models.TaskStage] = stage
			}
		}
		task[models.TaskUser] = opts.UserID
		rewrite[models.FieldTask] = map[string]interface{}(task)

		if _, err := s.archive.Create(ctx, []models.Doc{rewrite}); err != nil {
			return nil, err
		}
	}

	link := models.Doc{models.FieldRewrittenBy: rewrite.ID()}
	if _, err := s.archive.SystemUpdate(ctx, originalID, link); err != nil {
		s.logger.Warn("rewrite link on original failed", zap.String("item", originalID), zap.Error(err))
	}
	if takesPkg != nil {
		if _, err := s.archive.SystemUpdate(ctx, takesPkg.ID(), link); err != nil {
			s.logger.Warn("rewrite link on takes package failed",
				zap.String("package", takesPkg.ID()), zap.Error(err))
		}
	}
	s.published.PatchCopies(ctx, originalID, link)

	s.history.Record(ctx, rewrite, models.OpRewrite, opts.UserID, nil)
	s.notify.Push(ctx, "item:rewrite", map[string]interface{}{
		"item":    originalID,
		"rewrite": rewrite.ID(),
		"user":    opts.UserID,
	})
	return rewrite, nil
}

func (s *RewriteService) validateOriginal(ctx context.Context, original models.Doc) error {
	if original.GetString(models.FieldEventID) == "" {
		return appErrors.Clone(appErrors.ErrBadRequest, "item has no event identifier and cannot be rewritten")
	}
	if original.Has(models.FieldRewrittenBy) {
		return appErrors.Clone(appErrors.ErrConflict, "item has already been rewritten")
	}
	lastTake, err := s.pkgGuard.IsLastTake(ctx, original)
	if err != nil {
		return err
	}
	if !lastTake {
		return appErrors.Clone(appErrors.ErrBadRequest, "only the last take of a story can be rewritten")
	}
	return EnsureTransition(ActionRewrite, models.ItemState(original))
}

func validateLinkTarget(update models.Doc) error {
	if update.Has(models.FieldRewriteOf) {
		return appErrors.Clone(appErrors.ErrConflict, "update item is already a rewrite")
	}
	switch update.GetString(models.FieldType) {
	case models.TypeText, models.TypePreformatted:
	default:
		return appErrors.Clone(appErrors.ErrBadRequest, "only text items can be linked as updates")
	}
	if update.Has(models.FieldBroadcast) {
		return appErrors.Clone(appErrors.ErrBadRequest, "a broadcast item cannot be linked as an update")
	}
	return nil
}

// nextTakeKey counts the rewrites already recorded for the event and
// renders the ordinal take key of the next one.
func (s *RewriteService) nextTakeKey(ctx context.Context, eventID string) (string, error) {
	prior, err := s.archive.Count(ctx, store.And(
		store.Eq(models.FieldEventID, eventID),
		store.Exists(models.FieldRewriteOf),
	))
	if err != nil {
		return "", err
	}
	return ordinalTakeKey(prior + 1), nil
}
