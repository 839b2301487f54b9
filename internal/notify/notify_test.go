package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCapturesEvents(t *testing.T) {
	rec := &Recorder{}
	rec.Push(context.Background(), "item:lock", map[string]interface{}{"item": "a", "user": "u1"})
	rec.Push(context.Background(), "item:unlock", nil)

	require.Len(t, rec.Events, 2)
	assert.Equal(t, "item:lock", rec.Events[0].Event)
	assert.Equal(t, "a", rec.Events[0].Payload["item"])
	assert.Nil(t, rec.Events[1].Payload)
	assert.False(t, rec.Events[0].Timestamp.IsZero())
}

func TestEventWireShape(t *testing.T) {
	raw, err := json.Marshal(Event{
		Event:     "item:expired",
		Payload:   map[string]interface{}{"item": "story"},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "item:expired", decoded["event"])
	assert.Equal(t, "story", decoded["extra"].(map[string]interface{})["item"])
	assert.Contains(t, decoded, "_created")

	// Empty payloads stay off the wire.
	raw, err = json.Marshal(Event{Event: "item:unlock"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "extra")
}

func TestNopDropsEverything(t *testing.T) {
	var p Publisher = Nop{}
	p.Push(context.Background(), "item:lock", map[string]interface{}{"item": "a"})
}
