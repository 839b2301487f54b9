package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/internal/versions"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

type workflowHarness struct {
	wf      *ItemWorkflow
	archive *resource.Service
	history *audit.History
	events  *notify.Recorder
}

func newWorkflowHarness(t *testing.T, cfg config.EditorialConfig, desks, stages fakeStages) *workflowHarness {
	t.Helper()
	docs := store.NewMemoryStore()
	dual := store.NewDualStore(docs, store.NewMemoryIndex(), []string{models.ResourceArchive}, nil)
	archive := resource.NewService(resource.Config{
		Name:      models.ResourceArchive,
		Versioned: true,
	}, dual, versions.NewStore(docs, nil), nil)

	history := audit.NewHistory(docs, nil)
	events := &notify.Recorder{}
	wf := NewItemWorkflow(
		archive,
		NewPlacement(desks, stages, cfg),
		NewGuards(stages, cfg),
		packages.NewGuard(archive, nil),
		history,
		events,
		cfg,
		nil,
	)
	return &workflowHarness{wf: wf, archive: archive, history: history, events: events}
}

func (h *workflowHarness) eventNames() []string {
	names := make([]string, 0, len(h.events.Events))
	for _, e := range h.events.Events {
		names = append(names, e.Event)
	}
	return names
}

func TestCreatePipeline(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{
		"guid":      "item-1",
		"type":      "text",
		"body_html": "<p>one two three</p>",
		"lock_user": "sneaky",
		"expiry":    "2020-01-01T00:00:00Z",
	}
	ids, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{UserID: "u1", SignOff: "ABC"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	assert.Equal(t, "draft", doc.GetString(models.FieldState))
	assert.Equal(t, "create", doc.GetString(models.FieldOperation))
	assert.Equal(t, "u1", doc.GetString(models.FieldOriginalCreator))
	assert.Equal(t, "u1", doc.GetString(models.FieldVersionCreator))
	assert.Equal(t, "ABC", doc.GetString(models.FieldSignOff))
	assert.Equal(t, "item-1", doc.GetString(models.FieldFamilyID))
	assert.Equal(t, 3, doc.GetInt(models.FieldWordCount))
	assert.NotEmpty(t, doc.GetString(models.FieldFirstCreated))
	assert.NotEmpty(t, doc.GetString(models.FieldVersionCreated))

	// Client-supplied system fields never survive the pipeline.
	assert.False(t, doc.Has(models.FieldLockUser))
	assert.False(t, doc.Has(models.FieldExpiry))

	entries, err := h.history.ListForItem(ctx, doc.ID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "create", entries[0].GetString(models.FieldOperation))

	assert.Equal(t, []string{EventItemCreate}, h.eventNames())
}

func TestCreateFromIngest(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)

	doc := models.Doc{"guid": "wire-1", "type": "text"}
	_, err := h.wf.Create(context.Background(), []models.Doc{doc}, CreateOptions{FromIngest: true})
	require.NoError(t, err)

	assert.Equal(t, "ingested", doc.GetString(models.FieldState))
	assert.Equal(t, "fetch", doc.GetString(models.FieldOperation))
}

func TestCreateStampsContentExpiry(t *testing.T) {
	desks := fakeStages{{"_id": "d1", "content_expiry_minutes": 60}}
	h := newWorkflowHarness(t, config.EditorialConfig{}, desks, nil)

	doc := models.Doc{
		"guid": "item-1", "type": "text",
		"task": map[string]interface{}{"desk": "d1"},
	}
	_, err := h.wf.Create(context.Background(), []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	expiry, ok := doc.GetTime(models.FieldExpiry)
	require.True(t, ok)
	assert.True(t, expiry.After(time.Now().Add(30*time.Minute)))
}

func TestCreateRejectsPackageContent(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	_, err := h.wf.Create(ctx, []models.Doc{{
		"type": "composite", "body_footer": "not allowed",
	}}, CreateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	_, err = h.wf.Create(ctx, []models.Doc{{
		"type": "composite",
		"groups": []interface{}{map[string]interface{}{
			"id": "main",
			"refs": []interface{}{
				map[string]interface{}{"residRef": "missing-item"},
			},
		}},
	}}, CreateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestUpdateResolvesSaveStateAndSignOff(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "submitted"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{UserID: "u1", SignOff: "ABC"})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h"},
		UpdateOptions{UserID: "u2", SignOff: "XYZ"})
	require.NoError(t, err)

	assert.Equal(t, "in_progress", updated.GetString(models.FieldState))
	assert.Equal(t, "update", updated.GetString(models.FieldOperation))
	assert.Equal(t, "u2", updated.GetString(models.FieldVersionCreator))
	assert.Equal(t, "ABC/XYZ", updated.GetString(models.FieldSignOff))
	assert.Equal(t, 2, updated.GetInt(models.FieldCurrentVersion))

	// Saving again with the same sign-off does not duplicate the chain tail.
	updated, err = h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h2"},
		UpdateOptions{UserID: "u2", SignOff: "XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "ABC/XYZ", updated.GetString(models.FieldSignOff))
}

func TestUpdateRecomputesWordCount(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "body_html": "<p>one two</p>"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.GetInt(models.FieldWordCount))

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{
		"body_html": "<p>one two three four</p>",
	}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.GetInt(models.FieldWordCount))
}

func TestUpdateSystemPatchKeepsState(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "submitted"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{"priority": 2},
		UpdateOptions{SystemPatch: true})
	require.NoError(t, err)
	assert.Equal(t, "submitted", updated.GetString(models.FieldState))
	assert.Equal(t, "create", updated.GetString(models.FieldOperation))
}

func TestUpdateRejectsLockedItem(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.archive.SystemUpdate(ctx, doc.ID(), models.Doc{"lock_user": "other"})
	require.NoError(t, err)

	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h"}, UpdateOptions{UserID: "me"})
	assert.True(t, appErrors.Is(err, appErrors.ErrLocked))

	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h"},
		UpdateOptions{UserID: "me", Force: true})
	assert.NoError(t, err)
}

func TestUpdateBumpsMediaUsageOncePerChange(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	media := models.Doc{"guid": "pic-1", "type": "picture", "state": "in_progress"}
	story := models.Doc{"guid": "story-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{media, story}, CreateOptions{})
	require.NoError(t, err)

	link := models.Doc{"associations": map[string]interface{}{
		"featuremedia": map[string]interface{}{"_id": media.ID(), "type": "picture"},
	}}
	updated, err := h.wf.Update(ctx, story.ID(), link, UpdateOptions{})
	require.NoError(t, err)

	got, err := h.archive.FindByID(ctx, media.ID())
	require.NoError(t, err)
	assert.True(t, got.GetBool(models.FieldUsed))
	assert.Equal(t, 1, got.GetInt(models.FieldUsedCount))

	refs := updated.GetList(models.FieldRefs)
	require.Len(t, refs, 1)
	ref := models.Doc(refs[0].(map[string]interface{}))
	assert.Equal(t, media.ID(), ref.ID())
	assert.Equal(t, "icls:picture", ref.GetString(models.RefItemClass))

	// Re-saving the unchanged association does not count as another use.
	_, err = h.wf.Update(ctx, story.ID(), link.Clone(), UpdateOptions{})
	require.NoError(t, err)
	got, err = h.archive.FindByID(ctx, media.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, got.GetInt(models.FieldUsedCount))
}

func TestUpdatePropagatesCaptionIntoBody(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	media := models.Doc{"guid": "pic-1", "type": "picture", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{media}, CreateOptions{})
	require.NoError(t, err)

	story := models.Doc{
		"guid": "story-1", "type": "text", "state": "in_progress",
		"body_html": `<figure><img src="x"><figcaption>old cap</figcaption></figure>`,
		"associations": map[string]interface{}{
			"featuremedia": map[string]interface{}{
				"_id": media.ID(), "type": "picture", "description_text": "old cap",
			},
		},
	}
	_, err = h.wf.Create(ctx, []models.Doc{story}, CreateOptions{})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, story.ID(), models.Doc{
		"associations": map[string]interface{}{
			"featuremedia": map[string]interface{}{
				"_id": media.ID(), "type": "picture", "description_text": "new cap",
			},
		},
	}, UpdateOptions{})
	require.NoError(t, err)

	assert.Contains(t, updated.GetString(models.FieldBodyHTML), "<figcaption>new cap</figcaption>")
	assert.NotContains(t, updated.GetString(models.FieldBodyHTML), "old cap")
}

func TestDeschedule(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{
		"guid": "item-1", "type": "text", "state": "scheduled",
		"publish_schedule": models.FormatTime(time.Now().Add(time.Hour)),
	}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	updated, err := h.wf.Deschedule(ctx, doc.ID(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", updated.GetString(models.FieldState))
	assert.Equal(t, "deschedule", updated.GetString(models.FieldOperation))
	assert.False(t, updated.Has(models.FieldPublishSchedule))

	_, err = h.wf.Deschedule(ctx, doc.ID(), "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestStampWordCount(t *testing.T) {
	doc := models.Doc{"body_html": "<p>one <b>two</b> three</p>"}
	stampWordCount(doc)
	assert.Equal(t, 3, doc.GetInt(models.FieldWordCount))

	// An empty body only zeroes a missing count.
	kept := models.Doc{"body_html": "", "word_count": 5}
	stampWordCount(kept)
	assert.Equal(t, 5, kept.GetInt(models.FieldWordCount))

	fresh := models.Doc{}
	stampWordCount(fresh)
	assert.Equal(t, 0, fresh.GetInt(models.FieldWordCount))
}

func TestMergeSignOff(t *testing.T) {
	assert.Equal(t, "ABC", mergeSignOff("", "ABC"))
	assert.Equal(t, "ABC/XYZ", mergeSignOff("ABC", "XYZ"))
	assert.Equal(t, "ABC/XYZ", mergeSignOff("ABC/XYZ", "XYZ"))
	assert.Equal(t, "ABC/XYZ/ABC", mergeSignOff("ABC/XYZ", "ABC"))
}

func TestPlacementExpiryPrecedence(t *testing.T) {
	desks := fakeStages{{"_id": "d1", "content_expiry_minutes": 120, "incoming_stage": "s-in", "working_stage": "s-work"}}
	stages := fakeStages{{"_id": "s1", "content_expiry_minutes": 10}}
	ctx := context.Background()

	// The stage policy wins over the desk policy.
	p := NewPlacement(desks, stages, config.EditorialConfig{ContentExpiryMinutes: 60 * 24})
	expiry, ok := models.ParseTime(p.ContentExpiry(ctx, models.Doc{"desk": "d1", "stage": "s1"}))
	require.True(t, ok)
	assert.True(t, expiry.Before(time.Now().Add(11*time.Minute)))

	// Without a stage policy the desk policy applies.
	expiry, ok = models.ParseTime(p.ContentExpiry(ctx, models.Doc{"desk": "d1"}))
	require.True(t, ok)
	assert.True(t, expiry.After(time.Now().Add(119*time.Minute)))
	assert.True(t, expiry.Before(time.Now().Add(121*time.Minute)))

	// The global default is the last resort, and zero disables expiry.
	expiry, ok = models.ParseTime(p.ContentExpiry(ctx, models.Doc{}))
	require.True(t, ok)
	assert.True(t, expiry.After(time.Now().Add(23*time.Hour)))

	disabled := NewPlacement(desks, stages, config.EditorialConfig{})
	assert.Equal(t, "", disabled.ContentExpiry(ctx, models.Doc{}))

	assert.Equal(t, "s-in", p.IncomingStage(ctx, "d1"))
	assert.Equal(t, "s-work", p.WorkingStage(ctx, "d1"))
	assert.Equal(t, "", p.IncomingStage(ctx, "missing"))
}

func TestUpdateReleasesHolderLock(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.archive.SystemUpdate(ctx, doc.ID(), models.Doc{
		"lock_user": "u1", "lock_session": "s1", "lock_action": "edit",
		"lock_time": models.FormatTime(time.Now()),
	})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h"}, UpdateOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, updated.GetString(models.FieldLockUser))
	assert.False(t, updated.Has(models.FieldLockSession))
	assert.False(t, updated.Has(models.FieldLockAction))
	assert.False(t, updated.Has(models.FieldLockTime))
}

func TestUpdateSystemPatchKeepsLock(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.archive.SystemUpdate(ctx, doc.ID(), models.Doc{"lock_user": "u1", "lock_session": "s1"})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{"priority": 2},
		UpdateOptions{UserID: "u1", SystemPatch: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", updated.GetString(models.FieldLockUser))
}

func TestUpdateRejectsDirectStateJump(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	for _, state := range []string{"published", "killed", "spiked"} {
		_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"state": state}, UpdateOptions{UserID: "u1"})
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition), state)
	}

	got, err := h.archive.FindByID(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "draft", got.GetString(models.FieldState))
}

func TestUpdateSchedulesWithPublishSchedule(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{
		"publish_schedule": models.FormatTime(time.Now().Add(time.Hour)),
	}, UpdateOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", updated.GetString(models.FieldState))

	// Naming the state explicitly requires the schedule as well.
	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"state": "in_progress"}, UpdateOptions{UserID: "u1"})
	require.Error(t, err)

	descheduled, err := h.wf.Deschedule(ctx, doc.ID(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", descheduled.GetString(models.FieldState))
}

func TestUpdateRejectsScheduledStateWithoutSchedule(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"state": "scheduled"}, UpdateOptions{UserID: "u1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	updated, err := h.wf.Update(ctx, doc.ID(), models.Doc{
		"state":            "scheduled",
		"publish_schedule": models.FormatTime(time.Now().Add(time.Hour)),
	}, UpdateOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", updated.GetString(models.FieldState))
}

func TestDescheduleRespectsLock(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{
		"guid": "item-1", "type": "text", "state": "scheduled",
		"publish_schedule": models.FormatTime(time.Now().Add(time.Hour)),
	}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.archive.SystemUpdate(ctx, doc.ID(), models.Doc{"lock_user": "u1", "lock_session": "s1"})
	require.NoError(t, err)

	_, err = h.wf.Deschedule(ctx, doc.ID(), "u2")
	assert.True(t, appErrors.Is(err, appErrors.ErrLocked))

	updated, err := h.wf.Deschedule(ctx, doc.ID(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", updated.GetString(models.FieldState))
}
