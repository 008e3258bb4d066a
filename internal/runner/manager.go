package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// recordTimeout — сколько ждать каждого Recorder после завершения run.
const recordTimeout = 10 * time.Second

// Recorder — получатель завершённых run (хранилище, шина событий).
type Recorder interface {
	RecordRun(ctx context.Context, run *domain.Run) error
}

// RecorderFunc позволяет использовать функцию как Recorder.
type RecorderFunc func(ctx context.Context, run *domain.Run) error

// RecordRun реализует Recorder.
func (f RecorderFunc) RecordRun(ctx context.Context, run *domain.Run) error {
	return f(ctx, run)
}

// Manager запускает run конкурентно и управляет их жизненным циклом.
//
// Каждый run выполняется в своей горутине со своим контекстом.
// Cancel отменяет контекст: HTTP-запрос в полёте прерывается,
// задержка прекращается, новые узлы не запускаются.
type Manager struct {
	runner    *Runner
	recorders []Recorder
	logger    *slog.Logger

	// Active runs — runs в процессе выполнения (runID → состояние)
	active map[uuid.UUID]*activeRun
	mu     sync.RWMutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// activeRun — run в процессе выполнения.
type activeRun struct {
	run    *domain.Run
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerConfig — конфигурация Manager.
type ManagerConfig struct {
	// Runner — исполнитель flow (по умолчанию New(Config{})).
	Runner *Runner

	// Recorders — получатели завершённых run, вызываются по порядку.
	Recorders []Recorder

	// Logger
	Logger *slog.Logger
}

// NewManager создаёт Manager.
func NewManager(cfg ManagerConfig) *Manager {
	runner := cfg.Runner
	if runner == nil {
		runner = New(Config{Logger: cfg.Logger})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:    runner,
		recorders: cfg.Recorders,
		logger:    logger,
		active:    make(map[uuid.UUID]*activeRun),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Runner возвращает исполнитель (для test-node).
func (m *Manager) Runner() *Runner {
	return m.runner
}

// Start запускает run в фоне.
//
// Flow валидируется синхронно: невалидный flow возвращает
// ValidationError, run при этом не запускается.
func (m *Manager) Start(flow *domain.Flow, run *domain.Run) error {
	_, err := m.start(flow, run)
	return err
}

// Execute запускает run и ждёт его завершения.
//
// Отмена ctx прекращает ожидание, но не сам run:
// для этого есть Cancel.
func (m *Manager) Execute(ctx context.Context, flow *domain.Flow, run *domain.Run) (*domain.Run, error) {
	a, err := m.start(flow, run)
	if err != nil {
		return nil, err
	}
	return m.wait(ctx, a)
}

// Wait ждёт завершения активного run.
func (m *Manager) Wait(ctx context.Context, runID uuid.UUID) (*domain.Run, error) {
	m.mu.RLock()
	a, ok := m.active[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return m.wait(ctx, a)
}

// Cancel отменяет активный run.
func (m *Manager) Cancel(runID uuid.UUID) error {
	m.mu.RLock()
	a, ok := m.active[runID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	m.logger.Info("cancelling run", "run_id", runID)
	a.cancel()
	return nil
}

// IsActive проверяет, выполняется ли run.
func (m *Manager) IsActive(runID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[runID]
	return ok
}

// ActiveCount возвращает количество активных run.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// ActiveIDs возвращает ID активных run.
func (m *Manager) ActiveIDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Stop отменяет все активные run и ждёт их завершения.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.logger.Info("stopping run manager...", "active_runs", m.ActiveCount())
	m.cancel()
	m.wg.Wait()
	m.logger.Info("run manager stopped")
}

func (m *Manager) start(flow *domain.Flow, run *domain.Run) (*activeRun, error) {
	// 1. Валидация до регистрации
	if err := engine.Validate(flow); err != nil {
		return nil, err
	}

	// 2. Регистрация
	ctx, cancel := context.WithCancel(m.ctx)
	a := &activeRun{run: run, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		return nil, ErrManagerStopped
	}
	if _, exists := m.active[run.ID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyActive, run.ID)
	}
	m.active[run.ID] = a
	m.wg.Add(1)
	m.mu.Unlock()

	run.MarkRunning()

	// 3. Выполнение в своей горутине
	go func() {
		defer m.wg.Done()
		defer close(a.done)
		defer m.remove(run.ID)
		defer cancel()

		m.execute(ctx, flow, run)
	}()

	return a, nil
}

func (m *Manager) execute(ctx context.Context, flow *domain.Flow, run *domain.Run) {
	logger := m.logger.With("run_id", run.ID, "flow_id", flow.ID)

	res, err := m.runner.Run(ctx, flow, Options{RunID: run.ID, Variables: run.Variables})
	if err != nil {
		now := time.Now()
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		run.FinishedAt = &now
		logger.Error("run rejected", "error", err)
	} else {
		run.Complete(res)
	}

	// Recorders получают run и после отмены
	for _, rec := range m.recorders {
		recCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := rec.RecordRun(recCtx, run); err != nil {
			logger.Error("failed to record run", "error", err)
		}
		cancel()
	}
}

func (m *Manager) wait(ctx context.Context, a *activeRun) (*domain.Run, error) {
	select {
	case <-a.done:
		return a.run, nil
	case <-ctx.Done():
		return nil, errors.Join(ctx.Err(), fmt.Errorf("run %s still active", a.run.ID))
	}
}

func (m *Manager) remove(runID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, runID)
}
