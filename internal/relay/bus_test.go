package relay

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeKeepsDataAsRawJSON(t *testing.T) {
	env := Envelope{
		Origin:   "node-a",
		Receiver: "bob",
		Event:    Event{Type: EventNotification, Data: NotificationPayload{SenderName: "A", Message: "m"}},
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "node-a", decoded.Origin)
	assert.Equal(t, "bob", decoded.Receiver)
	assert.Equal(t, EventNotification, decoded.Event.Type)

	reencoded, err := json.Marshal(decoded.Event)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification","data":{"senderName":"A","message":"m"}}`, string(reencoded))
}

func TestNewRedisBus_RequiresAddress(t *testing.T) {
	_, err := NewRedisBus("", "", testLogger())
	assert.Error(t, err)
}

// TestRedisBus_RoundTrip needs a live Redis; it is skipped unless REDIS_ADDR is set.
func TestRedisBus_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	channel := "skillswap:test:" + uuid.NewString()
	bus, err := NewRedisBus(addr, channel, testLogger())
	require.NoError(t, err)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Envelope, 1)
	require.NoError(t, bus.StartForwarder(ctx, func(env Envelope) { got <- env }))

	require.NoError(t, bus.Publish(ctx, Envelope{
		Origin: "node-a", Receiver: "bob",
		Event: Event{Type: EventMessage, Data: ChatPayload{SenderID: "alice", Text: "hi"}},
	}))

	select {
	case env := <-got:
		assert.Equal(t, "bob", env.Receiver)
		assert.Equal(t, EventMessage, env.Event.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for redis message")
	}
}
