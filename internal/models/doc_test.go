package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocGetters(t *testing.T) {
	doc := Doc{
		"headline": "Elections",
		"flag":     true,
		"a":        3,
		"b":        int64(4),
		"c":        float64(5),
		"task":     map[string]interface{}{"desk": "politics"},
		"codes":    []interface{}{"x", 7, "y"},
	}

	assert.Equal(t, "Elections", doc.GetString("headline"))
	assert.Equal(t, "", doc.GetString("flag"))
	assert.True(t, doc.GetBool("flag"))
	assert.Equal(t, 3, doc.GetInt("a"))
	assert.Equal(t, 4, doc.GetInt("b"))
	assert.Equal(t, 5, doc.GetInt("c"))
	assert.Equal(t, 0, doc.GetInt("headline"))
	assert.Equal(t, "politics", doc.GetDoc("task").GetString("desk"))
	assert.Nil(t, doc.GetDoc("headline"))
	assert.Equal(t, []string{"x", "y"}, doc.GetStringList("codes"))

	assert.True(t, doc.Has("flag"))
	assert.False(t, doc.Has("missing"))
	doc["blank"] = nil
	assert.False(t, doc.Has("blank"))

	var none Doc
	assert.Equal(t, "", none.GetString("x"))
	assert.False(t, none.Has("x"))
}

func TestDocGetTime(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	doc := Doc{"a": FormatTime(now), "b": now, "c": "garbage"}

	got, ok := doc.GetTime("a")
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	got, ok = doc.GetTime("b")
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	_, ok = doc.GetTime("c")
	assert.False(t, ok)
	_, ok = doc.GetTime("missing")
	assert.False(t, ok)
}

func TestDocCloneIsDeep(t *testing.T) {
	doc := Doc{
		"task":   map[string]interface{}{"desk": "sports"},
		"groups": []interface{}{map[string]interface{}{"id": "root"}},
	}

	clone := doc.Clone()
	clone.GetDoc("task")["desk"] = "politics"
	clone.GetList("groups")[0].(map[string]interface{})["id"] = "main"

	assert.Equal(t, "sports", doc.GetDoc("task").GetString("desk"))
	group := Doc(doc.GetList("groups")[0].(map[string]interface{}))
	assert.Equal(t, "root", group.GetString("id"))
}

func TestDocApply(t *testing.T) {
	doc := Doc{"headline": "old", "slugline": "keep", "embargo": "2030-01-01T00:00:00Z"}
	doc.Apply(Doc{"headline": "new", "priority": 3, "embargo": nil})

	assert.Equal(t, "new", doc.GetString("headline"))
	assert.Equal(t, "keep", doc.GetString("slugline"))
	assert.Equal(t, 3, doc.GetInt("priority"))
	// A nil update value removes the field.
	assert.False(t, doc.Has("embargo"))
}

func TestDocTask(t *testing.T) {
	doc := Doc{"task": map[string]interface{}{"desk": "d1"}}
	assert.Equal(t, "d1", doc.Task().GetString("desk"))
	// Items without placement still get a usable empty block.
	assert.NotNil(t, Doc{}.Task())
	assert.Equal(t, "", Doc{}.Task().GetString("desk"))
}

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2026-03-01T12:30:00+02:00")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 10, got.Hour())

	_, ok = ParseTime("not-a-time")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestFormatTimeIsFixedWidth(t *testing.T) {
	// Sub-second precision is dropped so stored stamps sort as text.
	stamp := FormatTime(time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC))
	assert.Equal(t, "2026-03-01T12:00:00Z", stamp)
}
