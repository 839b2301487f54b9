package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/published"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/internal/versions"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

type rewriteHarness struct {
	svc     *RewriteService
	archive *resource.Service
	pub     *published.Service
}

func newRewriteHarness(t *testing.T, desks fakeStages) *rewriteHarness {
	t.Helper()
	docs := store.NewMemoryStore()
	dual := store.NewDualStore(docs, store.NewMemoryIndex(), []string{models.ResourceArchive, models.ResourcePublished}, nil)
	versionStore := versions.NewStore(docs, nil)

	archive := resource.NewService(resource.Config{
		Name: models.ResourceArchive, Versioned: true,
	}, dual, versionStore, nil)
	publishedRes := resource.NewService(resource.Config{
		Name: models.ResourcePublished, Versioned: true,
	}, dual, versionStore, nil)

	pub := published.NewService(publishedRes, nil)
	cfg := config.EditorialConfig{}
	svc := NewRewriteService(
		archive,
		NewPlacement(desks, nil, cfg),
		packages.NewGuard(archive, nil),
		pub,
		audit.NewHistory(docs, nil),
		&notify.Recorder{},
		cfg,
		nil,
	)
	return &rewriteHarness{svc: svc, archive: archive, pub: pub}
}

func TestRewriteCreatesLinkedUpdate(t *testing.T) {
	desks := fakeStages{{"_id": "d1", "working_stage": "s-work"}}
	h := newRewriteHarness(t, desks)
	ctx := context.Background()

	original := models.Doc{
		"_id": "story-1", "guid": "story-1", "type": "text",
		"state": "published", "event_id": "e1",
		"headline": "h", "slugline": "slug",
		"task": map[string]interface{}{"desk": "d1", "stage": "s-out"},
	}
	_, err := h.archive.Create(ctx, []models.Doc{original})
	require.NoError(t, err)
	_, err = h.pub.Record(ctx, original)
	require.NoError(t, err)

	rewrite, err := h.svc.Rewrite(ctx, "story-1", RewriteOptions{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "in_progress", rewrite.GetString(models.FieldState))
	assert.Equal(t, "story-1", rewrite.GetString(models.FieldRewriteOf))
	assert.Equal(t, "update", rewrite.GetString(models.FieldAnpaTakeKey))
	assert.Equal(t, "h", rewrite.GetString(models.FieldHeadline))
	assert.Equal(t, "e1", rewrite.GetString(models.FieldEventID))
	assert.Equal(t, "s-work", rewrite.Task().GetString(models.TaskStage))
	// Body content is never carried into a rewrite.
	assert.False(t, rewrite.Has(models.FieldBodyHTML))

	got, err := h.archive.FindByID(ctx, "story-1")
	require.NoError(t, err)
	assert.Equal(t, rewrite.ID(), got.GetString(models.FieldRewrittenBy))

	copies, err := h.pub.CopiesOf(ctx, "story-1")
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, rewrite.ID(), copies[0].GetString(models.FieldRewrittenBy))
}

func TestRewriteOrdinalTakeKeys(t *testing.T) {
	h := newRewriteHarness(t, nil)
	ctx := context.Background()

	first := models.Doc{
		"_id": "story-1", "guid": "story-1", "type": "text",
		"state": "published", "event_id": "e1",
	}
	_, err := h.archive.Create(ctx, []models.Doc{first})
	require.NoError(t, err)

	update1, err := h.svc.Rewrite(ctx, "story-1", RewriteOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "update", update1.GetString(models.FieldAnpaTakeKey))

	// Publish the first update so it can be rewritten in turn.
	_, err = h.archive.SystemUpdate(ctx, update1.ID(), models.Doc{models.FieldState: "published"})
	require.NoError(t, err)

	update2, err := h.svc.Rewrite(ctx, update1.ID(), RewriteOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "2nd update", update2.GetString(models.FieldAnpaTakeKey))
}

func TestRewriteValidatesOriginal(t *testing.T) {
	h := newRewriteHarness(t, nil)
	ctx := context.Background()

	noEvent := models.Doc{"_id": "a", "guid": "a", "type": "text", "state": "published"}
	unpublished := models.Doc{"_id": "b", "guid": "b", "type": "text", "state": "in_progress", "event_id": "e1"}
	taken := models.Doc{"_id": "c", "guid": "c", "type": "text", "state": "published", "event_id": "e2", "rewritten_by": "x"}
	_, err := h.archive.Create(ctx, []models.Doc{noEvent, unpublished, taken})
	require.NoError(t, err)

	_, err = h.svc.Rewrite(ctx, "a", RewriteOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	_, err = h.svc.Rewrite(ctx, "b", RewriteOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))

	_, err = h.svc.Rewrite(ctx, "c", RewriteOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestRewriteLinksExistingUpdate(t *testing.T) {
	h := newRewriteHarness(t, nil)
	ctx := context.Background()

	original := models.Doc{
		"_id": "story-1", "guid": "story-1", "type": "text",
		"state": "published", "event_id": "e1",
	}
	update := models.Doc{"_id": "update-1", "guid": "update-1", "type": "text", "state": "in_progress"}
	_, err := h.archive.Create(ctx, []models.Doc{original, update})
	require.NoError(t, err)

	rewrite, err := h.svc.Rewrite(ctx, "story-1", RewriteOptions{UserID: "u1", UpdateID: "update-1"})
	require.NoError(t, err)
	assert.Equal(t, "update-1", rewrite.ID())
	assert.Equal(t, "story-1", rewrite.GetString(models.FieldRewriteOf))
	assert.Equal(t, "update", rewrite.GetString(models.FieldAnpaTakeKey))
}

func TestRewriteRejectsBadLinkTargets(t *testing.T) {
	h := newRewriteHarness(t, nil)
	ctx := context.Background()

	original := models.Doc{
		"_id": "story-1", "guid": "story-1", "type": "text",
		"state": "published", "event_id": "e1",
	}
	picture := models.Doc{"_id": "pic-1", "guid": "pic-1", "type": "picture", "state": "in_progress"}
	alreadyRewrite := models.Doc{
		"_id": "up-1", "guid": "up-1", "type": "text",
		"state": "in_progress", "rewrite_of": "other",
	}
	broadcast := models.Doc{
		"_id": "bc-1", "guid": "bc-1", "type": "text", "state": "in_progress",
		"broadcast": map[string]interface{}{"master_id": "m1"},
	}
	_, err := h.archive.Create(ctx, []models.Doc{original, picture, alreadyRewrite, broadcast})
	require.NoError(t, err)

	_, err = h.svc.Rewrite(ctx, "story-1", RewriteOptions{UpdateID: "pic-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	_, err = h.svc.Rewrite(ctx, "story-1", RewriteOptions{UpdateID: "up-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = h.svc.Rewrite(ctx, "story-1", RewriteOptions{UpdateID: "bc-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestRewriteTargetsTakesPackage(t *testing.T) {
	h := newRewriteHarness(t, nil)
	ctx := context.Background()

	take := models.Doc{
		"_id": "take-1", "guid": "take-1", "type": "text",
		"state": "published", "event_id": "e1",
		"linked_in_packages": []interface{}{
			map[string]interface{}{"package": "takes-1", "package_type": "takes"},
		},
	}
	takesPkg := models.Doc{
		"_id": "takes-1", "guid": "takes-1", "type": "composite",
		"package_type": "takes", "state": "in_progress",
		"groups": []interface{}{
			map[string]interface{}{"id": "main", "refs": []interface{}{
				map[string]interface{}{"residRef": "take-1", "sequence": 1},
			}},
		},
	}
	_, err := h.archive.Create(ctx, []models.Doc{take, takesPkg})
	require.NoError(t, err)

	rewrite, err := h.svc.Rewrite(ctx, "take-1", RewriteOptions{UserID: "u1"})
	require.NoError(t, err)

	// The chain follows the takes package rather than the single take.
	assert.Equal(t, "takes-1", rewrite.GetString(models.FieldRewriteOf))

	pkg, err := h.archive.FindByID(ctx, "takes-1")
	require.NoError(t, err)
	assert.Equal(t, rewrite.ID(), pkg.GetString(models.FieldRewrittenBy))
	item, err := h.archive.FindByID(ctx, "take-1")
	require.NoError(t, err)
	assert.Equal(t, rewrite.ID(), item.GetString(models.FieldRewrittenBy))
}
