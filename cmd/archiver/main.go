package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/cadastre/internal/adapters/nats"
	"github.com/samirrijal/cadastre/internal/adapters/postgres"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/pkg/config"
	"github.com/samirrijal/cadastre/internal/pkg/logging"
	"github.com/samirrijal/cadastre/internal/workflows"
)

func main() {
	cfg, err := config.Load("cadastre-archiver")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.ArchivePlanWorkflow)
	w.RegisterActivity(&workflows.ArchiveActivities{
		Plans:     postgres.NewPlanRepo(db),
		Publisher: pub,
		Options: survey.Options{
			CaptureRadius:       cfg.Survey.CaptureRadius,
			AdjustmentTolerance: cfg.Survey.AdjustmentTolerance,
		},
	})

	slog.Info("archiver worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
