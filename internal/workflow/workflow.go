package workflow

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/lock"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
)

// Notification events emitted by the workflow engine.
const (
	EventItemCreate  = "item:create"
	EventItemUpdate  = "item:update"
	EventItemUpdated = "item:updated"
)

// fieldsStrippedOnSave are system-managed fields a client payload may
// never set directly.
var fieldsStrippedOnSave = []string{
	models.FieldETag, models.FieldCreated, models.FieldUpdated,
	models.FieldLatestVersion, models.FieldUniqueID,
	models.FieldLockUser, models.FieldLockSession,
	models.FieldLockAction, models.FieldLockTime,
	models.FieldExpiry, models.FieldExpiryStatus,
	models.FieldOperation, models.FieldFirstPublished,
	models.FieldRevertState,
}

// ItemWorkflow drives the archive item lifecycle on top of the generic
// resource engine.
type ItemWorkflow struct {
	archive   *resource.Service
	placement *Placement
	guards    *Guards
	pkgGuard  *packages.Guard
	history   *audit.History
	notify    notify.Publisher
	cfg       config.EditorialConfig
	logger    *zap.Logger
}

// NewItemWorkflow wires the workflow engine.
func NewItemWorkflow(
	archive *resource.Service,
	placement *Placement,
	guards *Guards,
	pkgGuard *packages.Guard,
	history *audit.History,
	publisher notify.Publisher,
	cfg config.EditorialConfig,
	logger *zap.Logger,
) *ItemWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &ItemWorkflow{
		archive:   archive,
		placement: placement,
		guards:    guards,
		pkgGuard:  pkgGuard,
		history:   history,
		notify:    publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Archive exposes the underlying archive resource for read paths.
func (w *ItemWorkflow) Archive() *resource.Service { return w.archive }

// CreateOptions parameterizes item creation.
type CreateOptions struct {
	UserID     string
	SignOff    string
	FromIngest bool
}

// Create runs the creation pipeline on each document and persists the
// batch: field hygiene, author stamping, word count, initial expiry,
// package validation, embargo validation and association bookkeeping.
func (w *ItemWorkflow) Create(ctx context.Context, docs []models.Doc, opts CreateOptions) ([]string, error) {
	now := models.FormatTime(time.Now())
	for _, doc := range docs {
		if err := packages.ValidateContent(doc); err != nil {
			return nil, err
		}
		doc.Remove(fieldsStrippedOnSave...)

		if doc.GetString(models.FieldState) == "" {
			if opts.FromIngest {
				doc[models.FieldState] = string(models.StateIngested)
			} else {
				doc[models.FieldState] = string(models.StateDraft)
			}
		}
		operation := models.OpCreate
		if opts.FromIngest {
			operation = models.OpFetch
		}
		doc[models.FieldOperation] = string(operation)
		if opts.UserID != "" {
			doc[models.FieldOriginalCreator] = opts.UserID
			doc[models.FieldVersionCreator] = opts.UserID
		}
		if opts.SignOff != "" {
			doc[models.FieldSignOff] = opts.SignOff
		}
		doc[models.FieldFirstCreated] = now
		doc[models.FieldVersionCreated] = now
		if doc.GetString(models.FieldFamilyID) == "" && doc.GetString(models.FieldGUID) != "" {
			doc[models.FieldFamilyID] = doc.GetString(models.FieldGUID)
		}

		stampWordCount(doc)
		canonicalizeSchedule(doc)
		if expiry := w.placement.ContentExpiry(ctx, doc.Task()); expiry != "" {
			doc[models.FieldExpiry] = expiry
		}
		if err := ValidateSchedule(doc); err != nil {
			return nil, err
		}
		if models.IsPackage(doc) {
			if err := w.pkgGuard.ValidateComposition(ctx, doc); err != nil {
				return nil, err
			}
		}
		stampAssociationTimes(doc, now)
		doc[models.FieldRefs] = buildRefs(doc)
	}

	ids, err := w.archive.Create(ctx, docs)
	if err != nil {
		return ids, err
	}

	for _, doc := range docs {
		if models.IsPackage(doc) {
			w.pkgGuard.AddBacklinks(ctx, doc)
		}
		w.history.Record(ctx, doc, models.OpCreate, opts.UserID, nil)
		w.notify.Push(ctx, EventItemCreate, map[string]interface{}{
			"item": doc.ID(),
			"user": opts.UserID,
		})
	}
	return ids, nil
}

// UpdateOptions parameterizes an item update.
type UpdateOptions struct {
	UserID     string
	SignOff    string
	ETag       string
	Force      bool
	FromIngest bool
	// SystemPatch marks internal maintenance writes that must not move
	// the workflow state.
	SystemPatch bool
}

// Update applies an editorial save: guards, state resolution, field
// hygiene, word count, association bookkeeping and expiry reset, then a
// versioned write under the etag precondition.
func (w *ItemWorkflow) Update(ctx context.Context, id string, updates models.Doc, opts UpdateOptions) (models.Doc, error) {
	original, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, err
	}

	if err := w.guards.Check(ctx, original, updates, CheckRequest{
		UserID:     opts.UserID,
		Force:      opts.Force,
		FromIngest: opts.FromIngest,
	}); err != nil {
		return nil, err
	}

	updates = updates.Clone()
	updates.Remove(fieldsStrippedOnSave...)
	canonicalizeSchedule(updates)

	if !opts.SystemPatch {
		if updates.Has(models.FieldState) {
			target := models.State(updates.GetString(models.FieldState))
			if err := ValidateSaveState(models.ItemState(original), target,
				mergedHas(original, updates, models.FieldPublishSchedule)); err != nil {
				return nil, err
			}
		}
		if state, changed := ResolveSaveState(original, updates); changed {
			updates[models.FieldState] = string(state)
		} else if updates.Has(models.FieldState) {
			updates[models.FieldState] = string(state)
		}
		// A holder's save releases the soft lock.
		if holder := original.GetString(models.FieldLockUser); holder != "" && holder == opts.UserID {
			for field := range lock.Clear() {
				updates[field] = nil
			}
		}
		updates[models.FieldOperation] = string(models.OpUpdate)
		updates[models.FieldVersionCreated] = models.FormatTime(time.Now())
		if opts.UserID != "" {
			updates[models.FieldVersionCreator] = opts.UserID
		}
		if opts.SignOff != "" {
			updates[models.FieldSignOff] = mergeSignOff(original.GetString(models.FieldSignOff), opts.SignOff)
		}
	}

	if updates.Has(models.FieldBodyHTML) {
		merged := original.Clone()
		merged.Apply(updates)
		stampWordCount(merged)
		updates[models.FieldWordCount] = merged[models.FieldWordCount]
	}

	task := original.Task()
	if t := updates.GetDoc(models.FieldTask); t != nil {
		task = t
	}
	if expiry := w.placement.ContentExpiry(ctx, task); expiry != "" {
		updates[models.FieldExpiry] = expiry
	}

	if updates.Has(models.FieldAssociations) {
		w.processAssociations(ctx, original, updates)
		merged := original.Clone()
		merged.Apply(updates)
		updates[models.FieldRefs] = buildRefs(merged)
	}

	if models.IsPackage(original) && updates.Has(models.FieldGroups) {
		merged := original.Clone()
		merged.Apply(updates)
		if err := w.pkgGuard.ValidateComposition(ctx, merged); err != nil {
			return nil, err
		}
	}

	w.notify.Push(ctx, EventItemUpdate, map[string]interface{}{
		"item": id,
		"user": opts.UserID,
	})

	updated, err := w.archive.Update(ctx, id, updates, opts.ETag)
	if err != nil {
		return nil, err
	}

	if models.IsPackage(updated) && updates.Has(models.FieldGroups) {
		w.pkgGuard.AddBacklinks(ctx, updated)
	}
	w.history.Record(ctx, updated, models.OpUpdate, opts.UserID, updates)
	w.notify.Push(ctx, EventItemUpdated, map[string]interface{}{
		"item": id,
		"user": opts.UserID,
	})
	return updated, nil
}

// Deschedule takes a scheduled item back to in_progress, dropping its
// publish schedule.
func (w *ItemWorkflow) Deschedule(ctx context.Context, id, userID string) (models.Doc, error) {
	original, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, err
	}
	if err := lock.Guard(original, userID, false); err != nil {
		return nil, err
	}
	if err := EnsureTransition(ActionDeschedule, models.ItemState(original)); err != nil {
		return nil, err
	}

	updated, err := w.archive.Update(ctx, id, models.Doc{
		models.FieldState:            string(models.StateInProgress),
		models.FieldOperation:        string(models.OpDeschedule),
		models.FieldPublishSchedule:  nil,
		models.FieldScheduleSettings: nil,
	}, "")
	if err != nil {
		return nil, err
	}

	w.history.Record(ctx, updated, models.OpDeschedule, userID, nil)
	w.notify.Push(ctx, EventItemUpdated, map[string]interface{}{
		"item": id,
		"user": userID,
	})
	return updated, nil
}

// processAssociations tracks media usage and pushes caption edits into
// the body. The use counter on a referenced media item is bumped once
// per distinct association change, not once per save.
func (w *ItemWorkflow) processAssociations(ctx context.Context, original, updates models.Doc) {
	next := updates.GetDoc(models.FieldAssociations)
	prev := original.GetDoc(models.FieldAssociations)

	for slot, raw := range next {
		ref, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		refDoc := models.Doc(ref)
		refID := refDoc.ID()
		if refID == "" || !models.IsMediaType(refDoc.GetString(models.FieldType)) {
			continue
		}
		var prevID string
		if prevRef := prev.GetDoc(slot); prevRef != nil {
			prevID = prevRef.ID()
		}
		if prevID == refID {
			if prevRef := prev.GetDoc(slot); prevRef != nil {
				w.propagateCaption(original, updates, prevRef, refDoc)
			}
			continue
		}
		w.bumpUsage(ctx, refID)
	}
}

func (w *ItemWorkflow) bumpUsage(ctx context.Context, mediaID string) {
	media, err := w.archive.FindOne(ctx, store.Eq(models.FieldID, mediaID))
	if err != nil {
		w.logger.Warn("usage tracking skipped, media not found", zap.String("media", mediaID), zap.Error(err))
		return
	}
	if _, err := w.archive.SystemUpdate(ctx, mediaID, models.Doc{
		models.FieldUsed:        true,
		models.FieldUsedCount:   media.GetInt(models.FieldUsedCount) + 1,
		models.FieldUsedUpdated: models.FormatTime(time.Now()),
	}); err != nil {
		w.logger.Warn("usage tracking failed", zap.String("media", mediaID), zap.Error(err))
	}
}

// propagateCaption rewrites a changed association caption inside the
// body HTML so embedded figures stay in sync with the association.
func (w *ItemWorkflow) propagateCaption(original, updates models.Doc, prevRef, nextRef models.Doc) {
	oldCaption := prevRef.GetString(models.FieldDescriptionText)
	newCaption := nextRef.GetString(models.FieldDescriptionText)
	if oldCaption == "" || oldCaption == newCaption {
		return
	}
	body := updates.GetString(models.FieldBodyHTML)
	if body == "" {
		body = original.GetString(models.FieldBodyHTML)
	}
	if body == "" {
		return
	}
	oldTag := fmt.Sprintf("<figcaption>%s</figcaption>", oldCaption)
	newTag := fmt.Sprintf("<figcaption>%s</figcaption>", newCaption)
	if strings.Contains(body, oldTag) {
		updates[models.FieldBodyHTML] = strings.ReplaceAll(body, oldTag, newTag)
	}
}

// buildRefs projects associations into the flat refs list used by
// queries.
func buildRefs(doc models.Doc) []interface{} {
	assoc := doc.GetDoc(models.FieldAssociations)
	refs := make([]interface{}, 0, len(assoc))
	for slot, raw := range assoc {
		ref, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		refDoc := models.Doc(ref)
		if refDoc.ID() == "" {
			continue
		}
		refs = append(refs, map[string]interface{}{
			"key":               slot,
			models.FieldID:      refDoc.ID(),
			models.FieldType:    refDoc.GetString(models.FieldType),
			models.FieldSource:  refDoc.GetString(models.FieldSource),
			models.RefItemClass: "icls:" + refDoc.GetString(models.FieldType),
		})
	}
	return refs
}

func stampAssociationTimes(doc models.Doc, now string) {
	for _, raw := range doc.GetDoc(models.FieldAssociations) {
		if ref, ok := raw.(map[string]interface{}); ok {
			if _, has := ref[models.FieldVersionCreated]; !has {
				ref[models.FieldVersionCreated] = now
			}
		}
	}
}

// canonicalizeSchedule rewrites client-supplied schedule stamps into the
// canonical document encoding so stored timestamps stay uniformly
// comparable as text.
func canonicalizeSchedule(doc models.Doc) {
	for _, field := range []string{models.FieldEmbargo, models.FieldPublishSchedule} {
		if raw := doc.GetString(field); raw != "" {
			if t, ok := models.ParseTime(raw); ok {
				doc[field] = models.FormatTime(t)
			}
		}
	}
}

// mergedHas reports whether the field survives the update: set by the
// payload, or present on the original and not removed by it.
func mergedHas(original, updates models.Doc, field string) bool {
	if v, ok := updates[field]; ok {
		return v != nil
	}
	return original.Has(field)
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stampWordCount recomputes word_count from the body text.
func stampWordCount(doc models.Doc) {
	body := doc.GetString(models.FieldBodyHTML)
	if body == "" {
		if !doc.Has(models.FieldWordCount) {
			doc[models.FieldWordCount] = 0
		}
		return
	}
	text := html.UnescapeString(htmlTagPattern.ReplaceAllString(body, " "))
	doc[models.FieldWordCount] = len(strings.Fields(text))
}

// mergeSignOff appends an author's sign-off to the existing chain unless
// it is already the last entry.
func mergeSignOff(existing, signOff string) string {
	if existing == "" {
		return signOff
	}
	parts := strings.Split(existing, "/")
	if parts[len(parts)-1] == signOff {
		return existing
	}
	return existing + "/" + signOff
}

// Placement resolves desk and stage expiry policy for an item's task.
type Placement struct {
	desks  stageLoader
	stages stageLoader
	cfg    config.EditorialConfig
}

// NewPlacement builds the placement resolver.
func NewPlacement(desks, stages stageLoader, cfg config.EditorialConfig) *Placement {
	return &Placement{desks: desks, stages: stages, cfg: cfg}
}

// ContentExpiry computes an item's expiry from its placement: the
// stage's policy wins over the desk's, which wins over the global
// default. Returns "" when no policy applies.
func (p *Placement) ContentExpiry(ctx context.Context, task models.Doc) string {
	minutes := p.expiryMinutes(ctx, task, models.FieldContentExpiryMinutes)
	if minutes <= 0 {
		minutes = p.cfg.ContentExpiryMinutes
	}
	if minutes <= 0 {
		return ""
	}
	return models.FormatTime(time.Now().Add(time.Duration(minutes) * time.Minute))
}

// SpikeExpiry computes the expiry stamped on a spiked item.
func (p *Placement) SpikeExpiry(ctx context.Context, task models.Doc) string {
	minutes := p.expiryMinutes(ctx, task, models.FieldSpikeExpiryMinutes)
	if minutes <= 0 {
		minutes = p.cfg.SpikeExpiryMinutes
	}
	if minutes <= 0 {
		return ""
	}
	return models.FormatTime(time.Now().Add(time.Duration(minutes) * time.Minute))
}

// IncomingStage resolves the incoming stage of a desk, "" when the desk
// is unknown.
func (p *Placement) IncomingStage(ctx context.Context, deskID string) string {
	if deskID == "" {
		return ""
	}
	desk, err := p.desks.FindOne(ctx, store.Eq(models.FieldID, deskID))
	if err != nil {
		return ""
	}
	return desk.GetString(models.FieldIncomingStage)
}

// WorkingStage resolves the working stage of a desk.
func (p *Placement) WorkingStage(ctx context.Context, deskID string) string {
	if deskID == "" {
		return ""
	}
	desk, err := p.desks.FindOne(ctx, store.Eq(models.FieldID, deskID))
	if err != nil {
		return ""
	}
	return desk.GetString(models.FieldWorkingStage)
}

func (p *Placement) expiryMinutes(ctx context.Context, task models.Doc, field string) int {
	if stageID := task.GetString(models.TaskStage); stageID != "" {
		if stage, err := p.stages.FindOne(ctx, store.Eq(models.FieldID, stageID)); err == nil {
			if m := stage.GetInt(field); m > 0 {
				return m
			}
		}
	}
	if deskID := task.GetString(models.TaskDesk); deskID != "" {
		if desk, err := p.desks.FindOne(ctx, store.Eq(models.FieldID, deskID)); err == nil {
			if m := desk.GetInt(field); m > 0 {
				return m
			}
		}
	}
	return 0
}
