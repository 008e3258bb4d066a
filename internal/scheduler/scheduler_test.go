package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

var tickNow = time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)

const cronFlowDoc = `{"id": "nightly", "name": "Nightly sync", "isActive": true, "nodes": [
	{"id": "cron1", "type": "delay", "data": {"delayType": "cron", "cronExpression": "0 9 * * *", "timezone": "UTC"}},
	{"id": "log1", "type": "log", "data": {"message": "tick"}},
	{"id": "cron2", "type": "delay", "data": {"delayType": "cron", "cronExpression": "not a cron"}}
], "edges": [{"id": "e1", "source": "cron1", "target": "log1"}]}`

// memSchedules — schedules в памяти.
type memSchedules struct {
	mu    sync.Mutex
	items map[string]*domain.Schedule // flowID/nodeID → schedule
}

func newMemSchedules() *memSchedules {
	return &memSchedules{items: make(map[string]*domain.Schedule)}
}

func (m *memSchedules) Upsert(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := s.FlowID + "/" + s.NodeID
	if existing, ok := m.items[key]; ok {
		s.ID = existing.ID
	} else if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.items[key] = &cp
	return nil
}

func (m *memSchedules) Update(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, existing := range m.items {
		if existing.ID == s.ID {
			cp := *s
			m.items[key] = &cp
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memSchedules) ListDue(_ context.Context, now time.Time, _ int) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.Schedule
	for _, s := range m.items {
		if s.IsDue(now) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (m *memSchedules) Prune(_ context.Context, flowID string, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, s := range m.items {
		if s.FlowID == flowID && !contains(keep, s.NodeID) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

func (m *memSchedules) get(flowID, nodeID string) *domain.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[flowID+"/"+nodeID]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// memRuns — runs в памяти с уникальностью ключа идемпотентности.
type memRuns struct {
	mu   sync.Mutex
	runs []*domain.Run
}

func (m *memRuns) CreateIdempotent(_ context.Context, run *domain.Run) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.FlowID == run.FlowID && r.IdempotencyKey == run.IdempotencyKey {
			return false, nil
		}
	}
	m.runs = append(m.runs, run)
	return true, nil
}

func (m *memRuns) GetByIdempotencyKey(_ context.Context, flowID, key string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.FlowID == flowID && r.IdempotencyKey == key {
			return r, nil
		}
	}
	return nil, repo.ErrNotFound
}

type memFlows map[string]*domain.Flow

func (m memFlows) Get(_ context.Context, id string) (*domain.Flow, error) {
	if f, ok := m[id]; ok {
		return f, nil
	}
	return nil, repo.ErrNotFound
}

type capturePublisher struct {
	runs []*domain.Run
}

func (p *capturePublisher) PublishRunRequested(_ context.Context, run *domain.Run) error {
	p.runs = append(p.runs, run)
	return nil
}

type fixture struct {
	sched     *Scheduler
	schedules *memSchedules
	runs      *memRuns
	flows     memFlows
	pub       *capturePublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	flow, err := domain.ParseFlow([]byte(cronFlowDoc))
	require.NoError(t, err)

	f := &fixture{
		schedules: newMemSchedules(),
		runs:      &memRuns{},
		flows:     memFlows{flow.ID: flow},
		pub:       &capturePublisher{},
		now:       tickNow,
	}
	f.sched = New(Config{
		Schedules: f.schedules,
		Runs:      f.runs,
		Flows:     f.flows,
		Publisher: f.pub,
		Now:       func() time.Time { return f.now },
	})
	return f
}

func TestSchedulesFor(t *testing.T) {
	flow, err := domain.ParseFlow([]byte(cronFlowDoc))
	require.NoError(t, err)

	schedules, errs := SchedulesFor(flow, tickNow)
	require.Len(t, schedules, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "cron2")

	s := schedules[0]
	assert.Equal(t, "cron1", s.NodeID)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.NextDueAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *s.NextDueAt)
}

func TestSchedulesFor_InactiveFlowDisabled(t *testing.T) {
	flow, err := domain.ParseFlow([]byte(cronFlowDoc))
	require.NoError(t, err)
	flow.IsActive = false

	schedules, _ := SchedulesFor(flow, tickNow)
	require.Len(t, schedules, 1)
	assert.False(t, schedules[0].Enabled)
}

func TestSyncFlow_PrunesRemovedNodes(t *testing.T) {
	f := newFixture(t)
	flow := f.flows["nightly"]

	_, err := f.sched.SyncFlow(context.Background(), flow)
	require.NoError(t, err)
	require.NotNil(t, f.schedules.get("nightly", "cron1"))

	flow.Nodes = flow.Nodes[1:2] // остался только log1
	_, err = f.sched.SyncFlow(context.Background(), flow)
	require.NoError(t, err)
	assert.Nil(t, f.schedules.get("nightly", "cron1"))
}

func TestTick_CreatesRunOncePerDueTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.SyncFlow(ctx, f.flows["nightly"])
	require.NoError(t, err)

	// До срока ничего не происходит
	require.NoError(t, f.sched.Tick(ctx))
	assert.Empty(t, f.runs.runs)

	// Срок наступил
	f.now = time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
	require.NoError(t, f.sched.Tick(ctx))
	require.Len(t, f.runs.runs, 1)

	run := f.runs.runs[0]
	assert.Equal(t, "nightly", run.FlowID)
	assert.Equal(t, domain.TriggerSchedule, run.Trigger)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	require.Len(t, f.pub.runs, 1)
	assert.Equal(t, run.ID, f.pub.runs[0].ID)

	s := f.schedules.get("nightly", "cron1")
	require.NotNil(t, s.LastRunID)
	assert.Equal(t, run.ID, *s.LastRunID)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *s.NextDueAt)

	// Повторный тик в то же время не создаёт дубликат
	require.NoError(t, f.sched.Tick(ctx))
	assert.Len(t, f.runs.runs, 1)
}

func TestTick_IdempotentAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.SyncFlow(ctx, f.flows["nightly"])
	require.NoError(t, err)
	s := f.schedules.get("nightly", "cron1")

	// Run уже создан предыдущим лидером, но schedule не сдвинут
	prev := domain.NewRun("nightly", domain.TriggerSchedule, nil)
	prev.IdempotencyKey = IdempotencyKey(s)
	f.runs.runs = append(f.runs.runs, prev)

	f.now = s.NextDueAt.Add(time.Second)
	require.NoError(t, f.sched.Tick(ctx))

	assert.Len(t, f.runs.runs, 1)
	assert.Empty(t, f.pub.runs)
	assert.Equal(t, prev.ID, *f.schedules.get("nightly", "cron1").LastRunID)
}

func TestTick_MissingFlowDisablesSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.SyncFlow(ctx, f.flows["nightly"])
	require.NoError(t, err)
	delete(f.flows, "nightly")

	f.now = time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC)
	require.NoError(t, f.sched.Tick(ctx))

	assert.Empty(t, f.runs.runs)
	assert.False(t, f.schedules.get("nightly", "cron1").Enabled)
}
