package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

func TestDuplicateCopiesItemWithFreshIdentity(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{
		"guid": "item-1", "type": "text", "state": "in_progress",
		"headline": "h", "body_html": "<p>one two</p>",
		"task": map[string]interface{}{"desk": "d1"},
	}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{UserID: "u1", SignOff: "ABC"})
	require.NoError(t, err)
	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h2"}, UpdateOptions{UserID: "u1"})
	require.NoError(t, err)

	newID, err := h.wf.Duplicate(ctx, doc.ID(), DuplicateOptions{UserID: "u2"})
	require.NoError(t, err)
	require.NotEqual(t, doc.ID(), newID)

	dup, err := h.archive.FindByID(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, newID, dup.GetString(models.FieldGUID))
	assert.Equal(t, doc.ID(), dup.GetString(models.FieldDuplicatedFrom))
	assert.Equal(t, "h2", dup.GetString(models.FieldHeadline))
	// Desk-owned items come back as submitted.
	assert.Equal(t, "submitted", dup.GetString(models.FieldState))
	assert.Equal(t, "duplicate", dup.GetString(models.FieldOperation))
	// The copy never inherits the sign-off chain.
	assert.False(t, dup.Has(models.FieldSignOff))
	// The version line continues past the original.
	assert.Equal(t, 3, dup.GetInt(models.FieldCurrentVersion))
}

func TestDuplicateCarriesVersionAndAuditHistory(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{UserID: "u1"})
	require.NoError(t, err)
	_, err = h.wf.Update(ctx, doc.ID(), models.Doc{"headline": "h2"}, UpdateOptions{UserID: "u1"})
	require.NoError(t, err)

	newID, err := h.wf.Duplicate(ctx, doc.ID(), DuplicateOptions{UserID: "u2"})
	require.NoError(t, err)

	versionHistory, err := h.archive.Versions().ListVersions(ctx, models.ResourceArchive, newID)
	require.NoError(t, err)
	require.Len(t, versionHistory, 3)
	for i, record := range versionHistory {
		assert.Equal(t, i+1, record.GetInt(models.FieldCurrentVersion))
	}

	entries, err := h.history.ListForItem(ctx, newID)
	require.NoError(t, err)
	// Two copied entries plus the duplicate record itself.
	require.Len(t, entries, 3)
	assert.Equal(t, "duplicate", entries[len(entries)-1].GetString(models.FieldOperation))

	originalEntries, err := h.history.ListForItem(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "duplicated_from", originalEntries[len(originalEntries)-1].GetString(models.FieldOperation))
}

func TestDuplicateDropsDenylistedFields(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{"guid": "item-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.archive.SystemUpdate(ctx, doc.ID(), models.Doc{
		"rewrite_of":         "other-item",
		"linked_in_packages": []interface{}{map[string]interface{}{"package": "p1"}},
		"unique_name":        "#42",
		"correction_by":      "c1",
	})
	require.NoError(t, err)

	newID, err := h.wf.Duplicate(ctx, doc.ID(), DuplicateOptions{ExtraRemove: []string{"headline"}})
	require.NoError(t, err)

	dup, err := h.archive.FindByID(ctx, newID)
	require.NoError(t, err)
	for _, field := range []string{"rewrite_of", "linked_in_packages", "unique_name", "correction_by"} {
		assert.False(t, dup.Has(field), field)
	}
}

func TestDuplicateStateOverrideAndTerminalReject(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	doc := models.Doc{
		"guid": "item-1", "type": "text", "state": "in_progress",
		"task": map[string]interface{}{"desk": "d1"},
	}
	_, err := h.wf.Create(ctx, []models.Doc{doc}, CreateOptions{})
	require.NoError(t, err)

	newID, err := h.wf.Duplicate(ctx, doc.ID(), DuplicateOptions{State: models.StateDraft})
	require.NoError(t, err)
	dup, err := h.archive.FindByID(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "draft", dup.GetString(models.FieldState))

	killed := models.Doc{"guid": "item-2", "type": "text", "state": "killed"}
	_, err = h.wf.Create(ctx, []models.Doc{killed}, CreateOptions{})
	require.NoError(t, err)
	_, err = h.wf.Duplicate(ctx, killed.ID(), DuplicateOptions{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestDuplicatePackageDuplicatesMembers(t *testing.T) {
	h := newWorkflowHarness(t, config.EditorialConfig{}, nil, nil)
	ctx := context.Background()

	member := models.Doc{"guid": "member-1", "type": "text", "state": "in_progress"}
	_, err := h.wf.Create(ctx, []models.Doc{member}, CreateOptions{})
	require.NoError(t, err)

	pkg := models.Doc{
		"guid": "pkg-1", "type": "composite", "state": "in_progress",
		"groups": []interface{}{
			map[string]interface{}{"id": "root", "refs": []interface{}{
				map[string]interface{}{"idRef": "main"},
			}},
			map[string]interface{}{"id": "main", "refs": []interface{}{
				map[string]interface{}{"residRef": member.ID(), "type": "text"},
			}},
		},
	}
	_, err = h.wf.Create(ctx, []models.Doc{pkg}, CreateOptions{})
	require.NoError(t, err)

	newID, err := h.wf.Duplicate(ctx, pkg.ID(), DuplicateOptions{UserID: "u1"})
	require.NoError(t, err)

	dup, err := h.archive.FindByID(ctx, newID)
	require.NoError(t, err)
	memberIDs := packages.ReferencedIDs(dup)
	require.Len(t, memberIDs, 1)
	assert.NotEqual(t, member.ID(), memberIDs[0])

	dupMember, err := h.archive.FindByID(ctx, memberIDs[0])
	require.NoError(t, err)
	assert.Equal(t, member.ID(), dupMember.GetString(models.FieldDuplicatedFrom))
}
