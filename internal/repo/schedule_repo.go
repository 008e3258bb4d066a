package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowline/internal/domain"
)

const scheduleColumns = `id, flow_id, node_id, cron_expr, timezone, enabled,
	next_due_at, last_run_at, last_run_id, created_at, updated_at`

// ScheduleRepo — репозиторий для работы с schedules.
//
// Schedule однозначно определяется парой (flow_id, node_id):
// один delay-узел с типом cron — одно расписание.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Upsert создаёт schedule или обновляет расписание существующего.
// ID, CreatedAt и UpdatedAt заполняются из БД.
func (r *ScheduleRepo) Upsert(ctx context.Context, s *domain.Schedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO schedules (id, flow_id, node_id, cron_expr, timezone, enabled,
		                       next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (flow_id, node_id) DO UPDATE
		SET cron_expr = EXCLUDED.cron_expr,
		    timezone = EXCLUDED.timezone,
		    enabled = EXCLUDED.enabled,
		    next_due_at = CASE
		        WHEN schedules.cron_expr = EXCLUDED.cron_expr
		         AND schedules.timezone = EXCLUDED.timezone
		         AND schedules.enabled
		        THEN schedules.next_due_at
		        ELSE EXCLUDED.next_due_at
		    END,
		    updated_at = NOW()
		RETURNING id, next_due_at, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.FlowID,
		s.NodeID,
		s.CronExpr,
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
	).Scan(&s.ID, &s.NextDueAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// Get возвращает schedule по ID.
func (r *ScheduleRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список schedules с фильтрацией.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE ($1::text IS NULL OR flow_id = $1)
		  AND ($2::boolean IS NULL OR enabled = $2)
		ORDER BY flow_id, node_id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.FlowID),
		filter.Enabled,
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDue возвращает schedules, готовые к выполнению.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE enabled = true
		  AND next_due_at IS NOT NULL
		  AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update сохраняет состояние запусков schedule.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	query := `
		UPDATE schedules
		SET enabled = $2, next_due_at = $3, last_run_at = $4, last_run_id = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastRunID,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune удаляет schedules flow, чьих узлов нет в keepNodeIDs.
// Пустой keepNodeIDs удаляет все schedules flow.
func (r *ScheduleRepo) Prune(ctx context.Context, flowID string, keepNodeIDs []string) (int64, error) {
	if keepNodeIDs == nil {
		keepNodeIDs = []string{}
	}
	result, err := r.pool.Exec(ctx, `
		DELETE FROM schedules
		WHERE flow_id = $1 AND NOT (node_id = ANY($2))
	`, flowID, keepNodeIDs)
	if err != nil {
		return 0, fmt.Errorf("prune schedules: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	FlowID  string
	Enabled *bool
	Limit   int
	Offset  int
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID,
		&s.FlowID,
		&s.NodeID,
		&s.CronExpr,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastRunID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}
