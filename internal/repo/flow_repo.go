package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/xjson"
)

// FlowRepo — хранилище документов flow.
//
// Документ хранится целиком в JSONB: движку нужен граф в том виде,
// в каком его сохранил редактор. Имя и is_active дублируются
// в колонки для списков и фильтров.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

// Save создаёт или заменяет документ flow.
// CreatedAt и UpdatedAt заполняются из БД.
func (r *FlowRepo) Save(ctx context.Context, flow *domain.Flow) error {
	if flow.ID == "" {
		return fmt.Errorf("%w: flow id is empty", ErrInvalidState)
	}

	doc, err := xjson.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}

	query := `
		INSERT INTO flows (id, name, is_active, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    is_active = EXCLUDED.is_active,
		    document = EXCLUDED.document,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query, flow.ID, flow.Name, flow.IsActive, doc).
		Scan(&flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	return nil
}

// Get возвращает flow по ID.
func (r *FlowRepo) Get(ctx context.Context, id string) (*domain.Flow, error) {
	query := `
		SELECT document, created_at, updated_at
		FROM flows
		WHERE id = $1
	`
	flow, err := scanFlow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return flow, err
}

// List возвращает flows, новые изменения первыми.
func (r *FlowRepo) List(ctx context.Context, filter FlowFilter) ([]domain.Flow, error) {
	query := `
		SELECT document, created_at, updated_at
		FROM flows
		WHERE (NOT $1::boolean OR is_active)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.ActiveOnly, limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *flow)
	}
	return flows, rows.Err()
}

// Delete удаляет flow вместе с его расписаниями.
// Сохранённые runs остаются: это история выполнения.
func (r *FlowRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedules WHERE flow_id = $1`, id); err != nil {
		return fmt.Errorf("delete flow schedules: %w", err)
	}
	return tx.Commit(ctx)
}

// FlowFilter — параметры фильтрации flows.
type FlowFilter struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

func scanFlow(row pgx.Row) (*domain.Flow, error) {
	var doc []byte
	var created, updated time.Time
	if err := row.Scan(&doc, &created, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	flow, err := domain.ParseFlow(doc)
	if err != nil {
		return nil, err
	}
	flow.CreatedAt = &created
	flow.UpdatedAt = &updated
	return flow, nil
}

// limitOrDefault ограничивает размер страницы.
func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
