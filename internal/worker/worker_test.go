package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runner"
)

const logFlowDoc = `{"id": "hello", "nodes": [
	{"id": "set1", "type": "setVariable", "data": {"variableKey": "greeting", "value": "hi {{vars.name}}"}},
	{"id": "log1", "type": "log", "data": {"message": "{{vars.greeting}}"}}
], "edges": [{"id": "e1", "source": "set1", "target": "log1"}]}`

const slowFlowDoc = `{"id": "slow", "nodes": [
	{"id": "wait", "type": "delay", "data": {"delayType": "hours", "value": 1}}
], "edges": []}`

// memRuns — RunStore в памяти.
type memRuns struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*domain.Run
	recorded chan domain.Run
}

func newMemRuns(runs ...*domain.Run) *memRuns {
	m := &memRuns{runs: make(map[uuid.UUID]*domain.Run), recorded: make(chan domain.Run, 16)}
	for _, r := range runs {
		m.runs[r.ID] = r
	}
	return m
}

func (m *memRuns) Get(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) ListPending(_ context.Context, _ int) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []domain.Run
	for _, r := range m.runs {
		if r.Status == domain.RunStatusPending {
			pending = append(pending, *r)
		}
	}
	return pending, nil
}

func (m *memRuns) Claim(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if r.Status != domain.RunStatusPending {
		return repo.ErrInvalidState
	}
	r.Status = domain.RunStatusRunning
	return nil
}

func (m *memRuns) Statuses(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]domain.RunStatus)
	for _, id := range ids {
		if r, ok := m.runs[id]; ok {
			out[id] = r.Status
		}
	}
	return out, nil
}

func (m *memRuns) RecordRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	cp := *run
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	m.recorded <- cp
	return nil
}

func (m *memRuns) setStatus(id uuid.UUID, status domain.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].Status = status
}

type memFlows map[string]*domain.Flow

func (f memFlows) Get(_ context.Context, id string) (*domain.Flow, error) {
	if flow, ok := f[id]; ok {
		return flow, nil
	}
	return nil, repo.ErrNotFound
}

func mustFlow(t *testing.T, doc string) *domain.Flow {
	t.Helper()
	flow, err := domain.ParseFlow([]byte(doc))
	require.NoError(t, err)
	return flow
}

func newTestWorker(t *testing.T, runs *memRuns, flows memFlows) *Worker {
	t.Helper()
	manager := runner.NewManager(runner.ManagerConfig{Recorders: []runner.Recorder{runs}})
	w := New(Config{Runs: runs, Flows: flows, Manager: manager, MaxConcurrent: 2})
	t.Cleanup(w.Stop)
	return w
}

func waitRecorded(t *testing.T, runs *memRuns) domain.Run {
	t.Helper()
	select {
	case r := <-runs.recorded:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("run was not recorded")
		return domain.Run{}
	}
}

func TestWorker_PollExecutesPendingRun(t *testing.T) {
	run := domain.NewRun("hello", domain.TriggerAPI, map[string]any{"name": "Ann"})
	runs := newMemRuns(run)
	w := newTestWorker(t, runs, memFlows{"hello": mustFlow(t, logFlowDoc)})

	w.poll(context.Background())

	done := waitRecorded(t, runs)
	assert.Equal(t, run.ID, done.ID)
	assert.Equal(t, domain.RunStatusSucceeded, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "hi Ann", done.Result.FinalVariables["vars"].(map[string]any)["greeting"])
}

func TestWorker_HandleRunRequested(t *testing.T) {
	run := domain.NewRun("hello", domain.TriggerSchedule, nil)
	runs := newMemRuns(run)
	w := newTestWorker(t, runs, memFlows{"hello": mustFlow(t, logFlowDoc)})

	msg := mq.NewMessage(mq.MessageTypeRunRequested, mq.RunRequestedPayload{RunID: run.ID, FlowID: run.FlowID})
	require.NoError(t, w.handleRunRequested(context.Background(), &mq.Delivery{Message: *msg}))

	done := waitRecorded(t, runs)
	assert.Equal(t, domain.RunStatusSucceeded, done.Status)

	// Повторная доставка того же сообщения — ack без выполнения
	require.NoError(t, w.handleRunRequested(context.Background(), &mq.Delivery{Message: *msg, Redelivered: true}))
	assert.Equal(t, 0, w.ActiveRuns())
}

func TestWorker_UnknownRunAcked(t *testing.T) {
	w := newTestWorker(t, newMemRuns(), memFlows{})

	msg := mq.NewMessage(mq.MessageTypeRunRequested, mq.RunRequestedPayload{RunID: uuid.New(), FlowID: "x"})
	assert.NoError(t, w.handleRunRequested(context.Background(), &mq.Delivery{Message: *msg}))
}

func TestWorker_MissingFlowFailsRun(t *testing.T) {
	run := domain.NewRun("deleted", domain.TriggerAPI, nil)
	runs := newMemRuns(run)
	w := newTestWorker(t, runs, memFlows{})

	require.NoError(t, w.processRun(context.Background(), run.ID))

	done := waitRecorded(t, runs)
	assert.Equal(t, domain.RunStatusFailed, done.Status)
	assert.Contains(t, done.Error, ErrFlowNotFound.Error())
}

func TestWorker_InvalidFlowFailsRun(t *testing.T) {
	run := domain.NewRun("bad", domain.TriggerAPI, nil)
	runs := newMemRuns(run)
	bad := mustFlow(t, `{"id": "bad", "nodes": [{"id": "x", "type": "teleport", "data": {}}]}`)
	w := newTestWorker(t, runs, memFlows{"bad": bad})

	require.NoError(t, w.processRun(context.Background(), run.ID))

	done := waitRecorded(t, runs)
	assert.Equal(t, domain.RunStatusFailed, done.Status)
	assert.Equal(t, 0, w.ActiveRuns())
}

func TestWorker_ClaimedRunSkipped(t *testing.T) {
	run := domain.NewRun("hello", domain.TriggerAPI, nil)
	run.Status = domain.RunStatusRunning
	runs := newMemRuns(run)
	w := newTestWorker(t, runs, memFlows{"hello": mustFlow(t, logFlowDoc)})

	err := w.processRun(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrRunNotPending)
	assert.Equal(t, 0, w.ActiveRuns())
}

func TestWorker_CancellationFromStore(t *testing.T) {
	run := domain.NewRun("slow", domain.TriggerAPI, nil)
	runs := newMemRuns(run)
	w := newTestWorker(t, runs, memFlows{"slow": mustFlow(t, slowFlowDoc)})

	require.NoError(t, w.processRun(context.Background(), run.ID))
	require.Equal(t, 1, w.ActiveRuns())

	runs.setStatus(run.ID, domain.RunStatusCancelled)
	w.syncCancellations(context.Background())

	done := waitRecorded(t, runs)
	assert.Equal(t, domain.RunStatusCancelled, done.Status)
}
