package ports

import (
	"context"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// EventPublisher publishes survey events to a message broker.
type EventPublisher interface {
	PublishSurveyEvent(ctx context.Context, event *domain.SurveyEvent) error
}

// EventSubscriber subscribes to survey events from a message broker.
type EventSubscriber interface {
	// SubscribePlan delivers every event of one plan until the returned cancel func is called.
	SubscribePlan(ctx context.Context, planID string, handler func(ctx context.Context, event *domain.SurveyEvent) error) (func(), error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// PlanArchiver hands a plan snapshot to a durable archive workflow.
type PlanArchiver interface {
	// ArchivePlan starts the workflow and returns its run ID.
	ArchivePlan(ctx context.Context, snap *domain.PlanSnapshot) (string, error)
}
