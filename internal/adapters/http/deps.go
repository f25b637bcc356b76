package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/cadastre/internal/adapters/postgres"
	"github.com/samirrijal/cadastre/internal/adapters/valkey"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Plans  *usecases.PlanService
	Events ports.EventSubscriber
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  *valkey.Cache
}
