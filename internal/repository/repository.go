// Package repository defines the persistence interfaces the service layer
// depends on.
package repository

import (
	"context"

	"github.com/sakif/lineval/internal/model"
)

// ListOptions paginates history queries. Implementations clamp
// out-of-range values rather than erroring.
type ListOptions struct {
	Limit  int
	Offset int
}

// EvaluationRepository stores the evaluation history, newest first.
type EvaluationRepository interface {
	Insert(ctx context.Context, ev *model.Evaluation) error
	ListByContext(ctx context.Context, contextID string, opts ListOptions) ([]model.Evaluation, error)
	DeleteByContext(ctx context.Context, contextID string) error
}
