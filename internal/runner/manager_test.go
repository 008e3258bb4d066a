package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

const slowFlowDoc = `{"id": "slow", "nodes": [
	{"id": "wait", "type": "delay", "data": {"delayType": "hours", "value": 1}},
	{"id": "after", "type": "log", "data": {"message": "after"}}
], "edges": [{"id": "e1", "source": "wait", "target": "after"}]}`

// captureRecorder запоминает записанные run.
type captureRecorder struct {
	mu   sync.Mutex
	runs []domain.Run
}

func (c *captureRecorder) RecordRun(_ context.Context, run *domain.Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, *run)
	return nil
}

func (c *captureRecorder) recorded() []domain.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Run(nil), c.runs...)
}

func TestManager_Execute(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(ManagerConfig{Runner: newTestRunner(jsonClient(`[{}]`)), Recorders: []Recorder{rec}})
	defer m.Stop()

	run := domain.NewRun("items", domain.TriggerManual, nil)
	done, err := m.Execute(context.Background(), mustFlow(t, itemsFlowDoc), run)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, run.ID, done.Result.RunID)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
	assert.False(t, m.IsActive(run.ID))

	recorded := rec.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, run.ID, recorded[0].ID)
	assert.Equal(t, domain.RunStatusSucceeded, recorded[0].Status)
}

func TestManager_CancelStopsDelay(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(ManagerConfig{Runner: New(Config{}), Recorders: []Recorder{rec}})
	defer m.Stop()

	run := domain.NewRun("slow", domain.TriggerAPI, nil)
	require.NoError(t, m.Start(mustFlow(t, slowFlowDoc), run))
	assert.True(t, m.IsActive(run.ID))

	require.NoError(t, m.Cancel(run.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := m.Wait(ctx, run.ID)
	if err != nil {
		// run мог завершиться до вызова Wait
		require.ErrorIs(t, err, ErrRunNotFound)
		require.Eventually(t, func() bool { return len(rec.recorded()) == 1 }, 5*time.Second, 10*time.Millisecond)
		recorded := rec.recorded()[0]
		done = &recorded
	}

	assert.Equal(t, domain.RunStatusCancelled, done.Status)
	assert.Empty(t, entriesFor(done.Result, "after"))
}

func TestManager_DuplicateRunID(t *testing.T) {
	m := NewManager(ManagerConfig{Runner: New(Config{})})
	defer m.Stop()

	flow := mustFlow(t, slowFlowDoc)
	run := domain.NewRun("slow", domain.TriggerAPI, nil)
	require.NoError(t, m.Start(flow, run))

	dup := *run
	err := m.Start(flow, &dup)
	assert.ErrorIs(t, err, ErrRunAlreadyActive)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManager_InvalidFlowNotStarted(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(ManagerConfig{Recorders: []Recorder{rec}})
	defer m.Stop()

	flow := mustFlow(t, `{"id": "bad", "nodes": [{"id": "x", "type": "teleport", "data": {}}]}`)
	err := m.Start(flow, domain.NewRun("bad", domain.TriggerManual, nil))
	assert.ErrorIs(t, err, engine.ErrUnknownNodeKind)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, rec.recorded())
}

func TestManager_StopCancelsActiveRuns(t *testing.T) {
	m := NewManager(ManagerConfig{Runner: New(Config{})})

	run := domain.NewRun("slow", domain.TriggerAPI, nil)
	require.NoError(t, m.Start(mustFlow(t, slowFlowDoc), run))

	m.Stop()
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, domain.RunStatusCancelled, run.Status)

	err := m.Start(mustFlow(t, slowFlowDoc), domain.NewRun("slow", domain.TriggerAPI, nil))
	assert.ErrorIs(t, err, ErrManagerStopped)
}

func TestManager_CancelUnknownRun(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Stop()

	err := m.Cancel(domain.NewRun("x", domain.TriggerManual, nil).ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
