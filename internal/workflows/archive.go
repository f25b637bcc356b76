package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// Activity names registered by ArchiveActivities.
const (
	ActivityValidateSnapshot = "ValidateSnapshot"
	ActivityLoadStored       = "LoadStored"
	ActivitySavePlan         = "SavePlan"
	ActivityPublishPlanSaved = "PublishPlanSaved"
	ActivityRevertPlan       = "RevertPlan"
)

// ArchiveInput is the input for the archive workflow.
type ArchiveInput struct {
	PlanID   string
	Snapshot domain.PlanSnapshot
}

// RevertInput carries what the plan tables held before the workflow wrote them.
// A nil Previous means the plan had no stored rows.
type RevertInput struct {
	PlanID   string
	Previous *domain.PlanSnapshot
}

// ArchiveResult summarises what was archived.
type ArchiveResult struct {
	PlanID   string
	Points   int
	Polygons int
}

// ArchivePlanWorkflow validates a plan snapshot, writes it to the database
// and announces it. If the announcement fails the tables are put back the way
// they were before the write (saga compensation): the previously stored plan
// is restored, and only a plan that had no rows is deleted.
func ArchivePlanWorkflow(ctx workflow.Context, input ArchiveInput) (ArchiveResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting archive workflow", "planID", input.PlanID,
		"points", len(input.Snapshot.Points), "polygons", len(input.Snapshot.Polygons))

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	snap := input.Snapshot
	snap.PlanID = input.PlanID

	if err := workflow.ExecuteActivity(ctx, ActivityValidateSnapshot, snap).Get(ctx, nil); err != nil {
		return ArchiveResult{}, err
	}

	var previous *domain.PlanSnapshot
	if err := workflow.ExecuteActivity(ctx, ActivityLoadStored, input.PlanID).Get(ctx, &previous); err != nil {
		return ArchiveResult{}, err
	}

	if err := workflow.ExecuteActivity(ctx, ActivitySavePlan, snap).Get(ctx, nil); err != nil {
		return ArchiveResult{}, err
	}

	if err := workflow.ExecuteActivity(ctx, ActivityPublishPlanSaved, snap).Get(ctx, nil); err != nil {
		logger.Warn("plan.saved publish failed, compensating", "planID", input.PlanID,
			"restore", previous != nil, "error", err)
		revert := RevertInput{PlanID: input.PlanID, Previous: previous}
		if rerr := workflow.ExecuteActivity(ctx, ActivityRevertPlan, revert).Get(ctx, nil); rerr != nil {
			logger.Error("compensation failed", "planID", input.PlanID, "error", rerr)
		}
		return ArchiveResult{}, err
	}

	logger.Info("Plan archived", "planID", input.PlanID)
	return ArchiveResult{
		PlanID:   input.PlanID,
		Points:   len(snap.Points),
		Polygons: len(snap.Polygons),
	}, nil
}
