package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ repository.ProcessingItemRepository = (*ProcessingItemRepo)(nil)

type ProcessingItemRepo struct {
	pool *pgxpool.Pool
}

func NewProcessingItemRepo(pool *pgxpool.Pool) *ProcessingItemRepo {
	return &ProcessingItemRepo{pool: pool}
}

const itemColumns = `id, thought_id, owner_id, stage, status, attempts, max_attempts,
  last_error, result, payload, available_at, created_at, updated_at`

func scanItem(row pgx.Row) (*model.ProcessingItem, error) {
	var it model.ProcessingItem
	var stage, status string
	if err := row.Scan(
		&it.ID, &it.ThoughtID, &it.OwnerID, &stage, &status, &it.Attempts, &it.MaxAttempts,
		&it.LastError, &it.Result, &it.Payload, &it.AvailableAt, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	it.Stage = model.Stage(stage)
	it.Status = model.ItemStatus(status)
	return &it, nil
}

// CreateOrGetPending relies on the partial unique index over live (thought, stage) pairs.
// A completed pair short-circuits before the insert so re-admission is a no-op.
func (r *ProcessingItemRepo) CreateOrGetPending(ctx context.Context, tx repository.Tx, item *model.ProcessingItem) (*model.ProcessingItem, bool, error) {
	existing, err := r.findAdmitted(ctx, tx, item.ThoughtID, item.Stage)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	const q = `
INSERT INTO processing_items (` + itemColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (thought_id, stage) WHERE status IN ('pending','processing') DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		item.ID, item.ThoughtID, item.OwnerID, string(item.Stage), string(item.Status), item.Attempts, item.MaxAttempts,
		item.LastError, item.Result, item.Payload, item.AvailableAt, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert processing item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// lost the race to a concurrent admission
		existing, err := r.findAdmitted(ctx, tx, item.ThoughtID, item.Stage)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return item, true, nil
}

// findAdmitted returns the live item for the pair, else the latest completed one.
func (r *ProcessingItemRepo) findAdmitted(ctx context.Context, tx repository.Tx, thoughtID string, stage model.Stage) (*model.ProcessingItem, error) {
	const q = `
SELECT ` + itemColumns + `
  FROM processing_items
 WHERE thought_id = $1 AND stage = $2 AND status IN ('pending','processing','completed')
 ORDER BY (status = 'completed'), created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, thoughtID, string(stage))
	if err != nil {
		return nil, err
	}
	return scanItem(row)
}

func (r *ProcessingItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ProcessingItem, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+itemColumns+` FROM processing_items WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanItem(row)
}

func (r *ProcessingItemRepo) ListByThought(ctx context.Context, tx repository.Tx, thoughtID string) ([]*model.ProcessingItem, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+itemColumns+` FROM processing_items WHERE thought_id = $1 ORDER BY created_at, id;`, thoughtID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *ProcessingItemRepo) ClaimNext(ctx context.Context, stage model.Stage, now time.Time) (*model.ProcessingItem, error) {
	const q = `
UPDATE processing_items
   SET status = 'processing', updated_at = $2
 WHERE id = (
    SELECT id FROM processing_items
     WHERE stage = $1 AND status = 'pending' AND available_at <= $2
     ORDER BY available_at, created_at
     LIMIT 1
     FOR UPDATE SKIP LOCKED)
RETURNING ` + itemColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, string(stage), now)
	if err != nil {
		return nil, err
	}
	return scanItem(row)
}

func (r *ProcessingItemRepo) Transition(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, expected model.ItemStatus) error {
	const q = `
UPDATE processing_items
   SET status = $2, attempts = $3, last_error = $4, result = $5, available_at = $6, updated_at = $7
 WHERE id = $1 AND status = $8;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		item.ID, string(item.Status), item.Attempts, item.LastError, item.Result, item.AvailableAt, item.UpdatedAt, string(expected))
	if err != nil {
		return fmt.Errorf("transition %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transition %s from %s: %w", item.ID, expected, domain.ErrStaleTransition)
	}
	return nil
}

func (r *ProcessingItemRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.ProcessingItem, error) {
	rows, err := queryRows(ctx, r.pool, nil, `
SELECT `+itemColumns+`
  FROM processing_items
 WHERE status = 'processing' AND updated_at < $1
 ORDER BY updated_at
 LIMIT $2;`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *ProcessingItemRepo) Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error) {
	rows, err := queryRows(ctx, r.pool, nil,
		`SELECT stage, status, COUNT(*) FROM processing_items WHERE owner_id = $1 GROUP BY stage, status;`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	s := model.NewStatusSummary(ownerID)
	for rows.Next() {
		var stage, status string
		var n int
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return nil, mapPgError(err)
		}
		s.Add(model.Stage(stage), model.ItemStatus(status), n)
	}
	return s, mapPgError(rows.Err())
}

func (r *ProcessingItemRepo) CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, nil, `SELECT stage, status, COUNT(*) FROM processing_items GROUP BY stage, status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.Stage]map[model.ItemStatus]int)
	for rows.Next() {
		var stage, status string
		var n int
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return nil, mapPgError(err)
		}
		st := model.Stage(stage)
		if out[st] == nil {
			out[st] = make(map[model.ItemStatus]int)
		}
		out[st][model.ItemStatus(status)] = n
	}
	return out, mapPgError(rows.Err())
}

func collectItems(rows pgx.Rows) ([]*model.ProcessingItem, error) {
	defer rows.Close()
	var out []*model.ProcessingItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, mapPgError(rows.Err())
}
