package ports

import (
	"context"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// PlanRepository persists plans as their points and polygons tables.
type PlanRepository interface {
	// Save replaces every stored row of the plan with the snapshot.
	Save(ctx context.Context, snap *domain.PlanSnapshot) error
	// Load returns domain.ErrPlanNotFound for an unknown plan.
	Load(ctx context.Context, planID string) (*domain.PlanSnapshot, error)
	List(ctx context.Context) ([]domain.PlanInfo, error)
	Delete(ctx context.Context, planID string) error
}
