package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opennewsroom/newsdesk-api/internal/lock"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

type stageLoader interface {
	FindOne(ctx context.Context, where store.Cond) (models.Doc, error)
}

// Guards evaluates the preconditions every content transition must pass.
type Guards struct {
	stages stageLoader
	cfg    config.EditorialConfig
}

// NewGuards builds the guard set over the stages resource.
func NewGuards(stages stageLoader, cfg config.EditorialConfig) *Guards {
	return &Guards{stages: stages, cfg: cfg}
}

// CheckRequest carries the caller context a guard evaluation needs.
type CheckRequest struct {
	UserID     string
	Force      bool
	FromIngest bool
}

// Check runs every guard against an update of original. Any failure
// aborts the whole operation before anything is persisted.
func (g *Guards) Check(ctx context.Context, original, updates models.Doc, req CheckRequest) error {
	if err := lock.Guard(original, req.UserID, req.Force); err != nil {
		return err
	}
	if err := CheckTerminal(original); err != nil {
		return err
	}
	if err := g.CheckReadonlyStage(ctx, original, updates, req.FromIngest); err != nil {
		return err
	}
	if !req.Force {
		merged := original.Clone()
		merged.Apply(updates)
		if err := ValidateSchedule(merged); err != nil {
			return err
		}
	}
	if err := CheckDuplicateCodes(updates); err != nil {
		return err
	}
	if err := g.CheckBroadcastGenre(original, updates); err != nil {
		return err
	}
	return nil
}

// CheckTerminal rejects content updates on killed or recalled items.
func CheckTerminal(original models.Doc) error {
	if state := models.ItemState(original); models.IsTerminal(state) {
		return appErrors.Transition("update", string(state))
	}
	return nil
}

// CheckReadonlyStage rejects edits on items sitting on, or moving to, a
// stage flagged local_readonly. Ingest-originated writes bypass the
// check.
func (g *Guards) CheckReadonlyStage(ctx context.Context, original, updates models.Doc, fromIngest bool) error {
	if fromIngest {
		return nil
	}
	stageIDs := make([]string, 0, 2)
	if id := original.Task().GetString(models.TaskStage); id != "" {
		stageIDs = append(stageIDs, id)
	}
	if task := updates.GetDoc(models.FieldTask); task != nil {
		if id := task.GetString(models.TaskStage); id != "" && (len(stageIDs) == 0 || id != stageIDs[0]) {
			stageIDs = append(stageIDs, id)
		}
	}
	for _, id := range stageIDs {
		stage, err := g.stages.FindOne(ctx, store.Eq(models.FieldID, id))
		if err != nil {
			continue
		}
		if stage.GetBool(models.FieldLocalReadonly) {
			return appErrors.Clone(appErrors.ErrReadonlyStage,
				fmt.Sprintf("stage %s does not accept changes", stage.GetString(models.FieldName)))
		}
	}
	return nil
}

// ValidateSchedule enforces the temporal invariants on the merged
// document: embargo and publish_schedule are mutually exclusive, embargo
// must lie strictly in the future outside terminal and scheduled states,
// and packages cannot be embargoed.
func ValidateSchedule(doc models.Doc) error {
	hasEmbargo := doc.Has(models.FieldEmbargo)
	hasSchedule := doc.Has(models.FieldPublishSchedule)
	if hasEmbargo && hasSchedule {
		return appErrors.Clone(appErrors.ErrBadRequest, "an item cannot have both embargo and publish schedule")
	}
	if !hasEmbargo {
		return nil
	}
	if models.IsPackage(doc) {
		return appErrors.Clone(appErrors.ErrBadRequest, "a package may not be embargoed")
	}
	state := models.ItemState(doc)
	if models.IsTerminal(state) || state == models.StateScheduled {
		return nil
	}
	embargo, ok := doc.GetTime(models.FieldEmbargo)
	if !ok {
		return appErrors.Clone(appErrors.ErrBadRequest, "embargo is not a valid timestamp")
	}
	if !embargo.After(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrBadRequest, "embargo must be in the future")
	}
	return nil
}

// CheckDuplicateCodes rejects payloads carrying the same category qcode
// or the same subject scheme:qcode key more than once.
func CheckDuplicateCodes(updates models.Doc) error {
	if dup := firstDuplicateKey(updates.GetList(models.FieldAnpaCategory), false); dup != "" {
		return appErrors.Validation(appErrors.FieldErrors{
			models.FieldAnpaCategory: {"duplicate": fmt.Sprintf("category %s is selected twice", dup)},
		})
	}
	if dup := firstDuplicateKey(updates.GetList(models.FieldSubject), true); dup != "" {
		return appErrors.Validation(appErrors.FieldErrors{
			models.FieldSubject: {"duplicate": fmt.Sprintf("subject %s is selected twice", dup)},
		})
	}
	return nil
}

func firstDuplicateKey(entries []interface{}, withScheme bool) string {
	seen := map[string]struct{}{}
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		doc := models.Doc(entry)
		key := strings.ToLower(doc.GetString(models.FieldQCode))
		if key == "" {
			continue
		}
		if withScheme {
			key = strings.ToLower(doc.GetString(models.FieldScheme)) + ":" + key
		}
		if _, dup := seen[key]; dup {
			return key
		}
		seen[key] = struct{}{}
	}
	return ""
}

// CheckBroadcastGenre pins the genre of broadcast-flagged items to the
// configured broadcast genre.
func (g *Guards) CheckBroadcastGenre(original, updates models.Doc) error {
	if !original.Has(models.FieldBroadcast) || !updates.Has(models.FieldGenre) {
		return nil
	}
	for _, raw := range updates.GetList(models.FieldGenre) {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if name := models.Doc(entry).GetString(models.FieldName); name != "" && name != g.cfg.BroadcastGenre {
			return appErrors.Clone(appErrors.ErrBadRequest,
				fmt.Sprintf("genre of a broadcast item cannot change to %s", name))
		}
	}
	return nil
}
