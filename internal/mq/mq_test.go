package mq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/xjson"
)

func TestParsePayload_RoundTripThroughWire(t *testing.T) {
	run := domain.NewRun("flow-1", domain.TriggerSchedule, nil)
	msg := NewMessage(MessageTypeRunRequested, RunRequestedPayload{RunID: run.ID, FlowID: run.FlowID})

	body, err := xjson.Marshal(msg)
	require.NoError(t, err)

	var received Message
	require.NoError(t, xjson.Unmarshal(body, &received))
	assert.Equal(t, MessageTypeRunRequested, received.Type)
	assert.Equal(t, msg.ID, received.ID)

	payload, err := ParsePayload[RunRequestedPayload](&received)
	require.NoError(t, err)
	assert.Equal(t, run.ID, payload.RunID)
	assert.Equal(t, "flow-1", payload.FlowID)
}

func TestParsePayload_WrongShape(t *testing.T) {
	msg := &Message{Type: MessageTypeRunRequested, Payload: map[string]any{"run_id": 42}}
	_, err := ParsePayload[RunRequestedPayload](msg)
	assert.Error(t, err)
}

func TestCompletedPayload(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	run := domain.NewRun("flow-1", domain.TriggerAPI, nil)
	run.Status = domain.RunStatusFailed
	run.Error = "node http1: unexpected HTTP status"
	run.StartedAt = &started
	run.FinishedAt = &finished

	p := CompletedPayload(run)
	assert.Equal(t, run.ID, p.RunID)
	assert.Equal(t, domain.RunStatusFailed, p.Status)
	assert.Equal(t, domain.TriggerAPI, p.Trigger)
	assert.Equal(t, int64(1500), p.DurationMs)
	assert.Equal(t, run.Error, p.Error)
}
