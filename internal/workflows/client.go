package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// DefaultTaskQueue is the queue the archiver worker polls.
const DefaultTaskQueue = "plan-archive"

// Archiver implements ports.PlanArchiver by starting ArchivePlanWorkflow.
type Archiver struct {
	client    client.Client
	taskQueue string
}

// NewArchiver creates an Archiver on an existing Temporal client.
func NewArchiver(c client.Client, taskQueue string) *Archiver {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Archiver{client: c, taskQueue: taskQueue}
}

// ArchivePlan starts the workflow and returns its run ID. The workflow ID is
// derived from the plan and its last edit, so archiving an unchanged plan twice
// while the first run is in flight is rejected by Temporal.
func (a *Archiver) ArchivePlan(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("plan-archive-%s-%d", snap.PlanID, snap.UpdatedAt.UnixNano()),
		TaskQueue: a.taskQueue,
	}
	run, err := a.client.ExecuteWorkflow(ctx, opts, ArchivePlanWorkflow, ArchiveInput{
		PlanID:   snap.PlanID,
		Snapshot: *snap,
	})
	if err != nil {
		return "", fmt.Errorf("start archive workflow: %w", err)
	}
	return run.GetRunID(), nil
}
