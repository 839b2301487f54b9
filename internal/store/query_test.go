package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

func TestLookupDottedPath(t *testing.T) {
	doc := models.Doc{
		"task": map[string]interface{}{
			"desk":  "politics",
			"stage": "incoming",
		},
		"slugline": "election",
	}

	v, ok := Lookup(doc, "task.desk")
	assert.True(t, ok)
	assert.Equal(t, "politics", v)

	v, ok = Lookup(doc, "slugline")
	assert.True(t, ok)
	assert.Equal(t, "election", v)

	_, ok = Lookup(doc, "task.user")
	assert.False(t, ok)

	_, ok = Lookup(doc, "missing.path")
	assert.False(t, ok)
}

func TestCondMatches(t *testing.T) {
	doc := models.Doc{
		"state":    "in_progress",
		"priority": float64(3),
		"expiry":   "2026-01-01T00:00:00Z",
		"task":     map[string]interface{}{"desk": "sports"},
	}

	assert.True(t, Eq("state", "in_progress").Matches(doc))
	assert.False(t, Eq("state", "draft").Matches(doc))
	assert.True(t, Ne("state", "draft").Matches(doc))
	// ne matches documents without the field at all.
	assert.True(t, Ne("embargo", "x").Matches(doc))

	assert.True(t, In("state", "draft", "in_progress").Matches(doc))
	assert.False(t, In("state", "draft", "submitted").Matches(doc))

	// Numbers compare numerically regardless of concrete type.
	assert.True(t, Eq("priority", 3).Matches(doc))
	assert.True(t, Gt("priority", 2).Matches(doc))
	assert.False(t, Lt("priority", 3).Matches(doc))
	assert.True(t, Lte("priority", 3).Matches(doc))

	// RFC3339 strings order lexically.
	assert.True(t, Lte("expiry", "2026-06-01T00:00:00Z").Matches(doc))
	assert.False(t, Gt("expiry", "2026-06-01T00:00:00Z").Matches(doc))

	assert.True(t, Exists("expiry").Matches(doc))
	assert.True(t, Missing("embargo").Matches(doc))
	assert.False(t, Missing("expiry").Matches(doc))

	assert.True(t, Eq("task.desk", "sports").Matches(doc))

	assert.True(t, And(Eq("state", "in_progress"), Exists("expiry")).Matches(doc))
	assert.False(t, And(Eq("state", "in_progress"), Exists("embargo")).Matches(doc))
	assert.True(t, Or(Eq("state", "draft"), Eq("task.desk", "sports")).Matches(doc))

	assert.True(t, Cond{}.Matches(doc))
}

func TestCondIsZero(t *testing.T) {
	assert.True(t, Cond{}.IsZero())
	assert.False(t, Eq("a", 1).IsZero())
	assert.False(t, And(Eq("a", 1)).IsZero())
}

func TestCondComparesTimestampsAcrossEncodings(t *testing.T) {
	// An exact-second stamp sorts after a sub-second stamp as text; as
	// instants the order is chronological.
	doc := models.Doc{"expiry": "2026-01-01T12:00:00Z"}

	assert.True(t, Lte("expiry", "2026-01-01T12:00:00.5Z").Matches(doc))
	assert.False(t, Gt("expiry", "2026-01-01T12:00:00.5Z").Matches(doc))
	assert.True(t, Gte("expiry", "2026-01-01T11:59:59.999Z").Matches(doc))
	assert.True(t, Lt("expiry", "2026-01-01T12:00:01Z").Matches(doc))
}
