package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/lineval/internal/model"
	"github.com/sakif/lineval/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// EvaluationRepository persists evaluation history in SQLite.
type EvaluationRepository struct {
	db *sql.DB
}

var _ repository.EvaluationRepository = (*EvaluationRepository)(nil)

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Insert(ctx context.Context, ev *model.Evaluation) error {
	if ev.ID == "" {
		ev.ID = xid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, context_id, code, kind, rendered, console, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ContextID, ev.Code, ev.Kind, ev.Rendered, ev.Console, ev.DurationMs, ev.CreatedAt,
	)
	return err
}

func (r *EvaluationRepository) ListByContext(ctx context.Context, contextID string, opts repository.ListOptions) ([]model.Evaluation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, context_id, code, kind, rendered, console, duration_ms, created_at
		FROM evaluations
		WHERE context_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		contextID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evaluations := make([]model.Evaluation, 0, limit)
	for rows.Next() {
		var ev model.Evaluation
		if err := rows.Scan(&ev.ID, &ev.ContextID, &ev.Code, &ev.Kind, &ev.Rendered,
			&ev.Console, &ev.DurationMs, &ev.CreatedAt); err != nil {
			return nil, err
		}
		evaluations = append(evaluations, ev)
	}
	return evaluations, rows.Err()
}

func (r *EvaluationRepository) DeleteByContext(ctx context.Context, contextID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM evaluations WHERE context_id = ?`, contextID)
	return err
}
