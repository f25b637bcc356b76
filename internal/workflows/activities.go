package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/core/survey"
)

// areaDrift is how far a stored lot area may differ from the recomputed one.
const areaDrift = 1e-6

// ArchiveActivities holds the activity implementations for the archive workflow.
type ArchiveActivities struct {
	Plans     ports.PlanRepository
	Publisher ports.EventPublisher
	Options   survey.Options
}

// ValidateSnapshot rebuilds the plan with the survey engine, re-resolving
// every polygon. A bad snapshot will never become good, so the error is not retried.
func (a *ArchiveActivities) ValidateSnapshot(ctx context.Context, snap domain.PlanSnapshot) error {
	plan, err := survey.Restore(snap, a.Options)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid snapshot %s", snap.PlanID), "InvalidSnapshot", err)
	}

	polys, err := plan.Polygons()
	if err != nil {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("resolve polygons of %s", snap.PlanID), "InvalidSnapshot", err)
	}
	stored := make(map[string]float64, len(snap.Polygons))
	for _, rec := range snap.Polygons {
		stored[rec.LotNumber] = rec.Area
	}
	for _, poly := range polys {
		if math.Abs(poly.Area-stored[poly.LotNumber]) > areaDrift {
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("lot %s area %.6f does not match stored %.6f", poly.LotNumber, poly.Area, stored[poly.LotNumber]),
				"AreaMismatch", nil)
		}
	}
	return nil
}

// LoadStored returns what the plan tables hold for planID, or nil when the
// plan has never been stored.
func (a *ArchiveActivities) LoadStored(ctx context.Context, planID string) (*domain.PlanSnapshot, error) {
	snap, err := a.Plans.Load(ctx, planID)
	if errors.Is(err, domain.ErrPlanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stored plan %s: %w", planID, err)
	}
	return snap, nil
}

// SavePlan writes the snapshot to the plan tables.
func (a *ArchiveActivities) SavePlan(ctx context.Context, snap domain.PlanSnapshot) error {
	if err := a.Plans.Save(ctx, &snap); err != nil {
		return fmt.Errorf("save plan %s: %w", snap.PlanID, err)
	}
	slog.Info("plan archived", "plan_id", snap.PlanID, "points", len(snap.Points), "polygons", len(snap.Polygons))
	return nil
}

// PublishPlanSaved announces the archived plan on the event bus.
func (a *ArchiveActivities) PublishPlanSaved(ctx context.Context, snap domain.PlanSnapshot) error {
	if a.Publisher == nil {
		slog.Info("plan.saved (no publisher)", "plan_id", snap.PlanID)
		return nil
	}
	ev, err := domain.NewSurveyEvent(snap.PlanID, domain.EventPlanSaved, domain.PlanInfo{
		ID:        snap.PlanID,
		Name:      snap.Name,
		Points:    len(snap.Points),
		Polygons:  len(snap.Polygons),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return a.Publisher.PublishSurveyEvent(ctx, ev)
}

// RevertPlan undoes SavePlan (saga compensation). The stored plan from before
// the archive is written back; a plan that had no rows is deleted.
func (a *ArchiveActivities) RevertPlan(ctx context.Context, in RevertInput) error {
	if in.Previous != nil {
		if err := a.Plans.Save(ctx, in.Previous); err != nil {
			return fmt.Errorf("restore plan %s: %w", in.PlanID, err)
		}
		slog.Info("archived plan reverted to stored copy (saga compensation)", "plan_id", in.PlanID)
		return nil
	}
	if err := a.Plans.Delete(ctx, in.PlanID); err != nil && !errors.Is(err, domain.ErrPlanNotFound) {
		return fmt.Errorf("delete plan %s: %w", in.PlanID, err)
	}
	slog.Info("archived plan deleted (saga compensation)", "plan_id", in.PlanID)
	return nil
}
