package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/xjson"
)

// runColumns — колонки runs в порядке scanRun.
const runColumns = `id, flow_id, status, trigger, variables, result, error,
	idempotency_key, started_at, finished_at, created_at`

// RunRepo — репозиторий runs и их итогов.
//
// RunRepo реализует runner.Recorder: завершённый run сохраняется
// вместе с ExecutionResult (журнал и снимок переменных) в JSONB.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	created, err := r.insert(ctx, run, false)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	return nil
}

// CreateIdempotent создаёт run, если run с тем же ключом
// идемпотентности для этого flow ещё нет.
// Возвращает false, если run уже существовал.
func (r *RunRepo) CreateIdempotent(ctx context.Context, run *domain.Run) (bool, error) {
	if run.IdempotencyKey == "" {
		return false, fmt.Errorf("%w: idempotency key is empty", ErrInvalidState)
	}
	return r.insert(ctx, run, true)
}

func (r *RunRepo) insert(ctx context.Context, run *domain.Run, idempotent bool) (bool, error) {
	varsJSON, err := marshalNullable(run.Variables)
	if err != nil {
		return false, fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		INSERT INTO runs (id, flow_id, status, trigger, variables, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if idempotent {
		query += ` ON CONFLICT (flow_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`
	} else {
		query += ` ON CONFLICT (id) DO NOTHING`
	}

	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.FlowID,
		run.Status,
		run.Trigger,
		varsJSON,
		nullString(run.IdempotencyKey),
		run.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Get возвращает run по ID.
func (r *RunRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, flowID, key string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE flow_id = $1 AND idempotency_key = $2`
	return scanRun(r.pool.QueryRow(ctx, query, flowID, key))
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR flow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.FlowID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return collectRuns(rows)
}

// ListPending возвращает runs в статусе PENDING, старые первыми.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	return collectRuns(rows)
}

// Claim переводит PENDING run в RUNNING.
//
// Только один worker может забрать run: второй получит ErrInvalidState.
// Так сообщение из очереди и polling не выполняют run дважды.
func (r *RunRepo) Claim(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE runs SET status = 'RUNNING', started_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.stateError(ctx, id)
	}
	return nil
}

// RequestCancel помечает run отменённым.
//
// PENDING run отменяется сразу. RUNNING run останавливает worker,
// который его выполняет: он сверяет статусы активных runs при poll
// и сохраняет итог сам.
func (r *RunRepo) RequestCancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = 'CANCELLED',
		    finished_at = CASE WHEN status = 'PENDING' THEN NOW() ELSE finished_at END,
		    error = CASE WHEN status = 'PENDING' THEN 'cancelled before start' ELSE error END
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.stateError(ctx, id)
	}
	return nil
}

// Statuses возвращает текущие статусы runs по ID.
// Отсутствующие в БД runs в результат не попадают.
func (r *RunRepo) Statuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.RunStatus, error) {
	statuses := make(map[uuid.UUID]domain.RunStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, `SELECT id, status FROM runs WHERE id::text = ANY($1::text[])`, keys)
	if err != nil {
		return nil, fmt.Errorf("get run statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var status domain.RunStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan run status: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

// RecordRun сохраняет завершённый run вместе с ExecutionResult.
// Run, которого ещё нет в БД (синхронный запуск), создаётся.
func (r *RunRepo) RecordRun(ctx context.Context, run *domain.Run) error {
	varsJSON, err := marshalNullable(run.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	var resultJSON []byte
	if run.Result != nil {
		if resultJSON, err = xjson.Marshal(run.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	var durationMs *int64
	if run.IsFinished() && run.StartedAt != nil && run.FinishedAt != nil {
		ms := run.Duration().Milliseconds()
		durationMs = &ms
	}

	query := `
		INSERT INTO runs (id, flow_id, status, trigger, variables, result, duration_ms,
		                  error, idempotency_key, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    result = EXCLUDED.result,
		    duration_ms = EXCLUDED.duration_ms,
		    error = EXCLUDED.error,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.FlowID,
		run.Status,
		run.Trigger,
		varsJSON,
		resultJSON,
		durationMs,
		nullString(run.Error),
		nullString(run.IdempotencyKey),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// stateError различает отсутствующий run и run не в том статусе.
func (r *RunRepo) stateError(ctx context.Context, id uuid.UUID) error {
	var status domain.RunStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}
	return fmt.Errorf("%w: run %s is %s", ErrInvalidState, id, status)
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	FlowID string
	Status domain.RunStatus
	Limit  int
	Offset int
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var varsJSON, resultJSON []byte
	var idempotencyKey, runError *string

	err := row.Scan(
		&run.ID,
		&run.FlowID,
		&run.Status,
		&run.Trigger,
		&varsJSON,
		&resultJSON,
		&runError,
		&idempotencyKey,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if varsJSON != nil {
		if err := xjson.Unmarshal(varsJSON, &run.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	if resultJSON != nil {
		run.Result = new(domain.ExecutionResult)
		if err := xjson.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if idempotencyKey != nil {
		run.IdempotencyKey = *idempotencyKey
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// marshalNullable кодирует map в JSON; пустая map — NULL.
func marshalNullable(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return xjson.Marshal(m)
}
