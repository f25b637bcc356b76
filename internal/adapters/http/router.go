package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/cadastre/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Field crews post legs in bursts; 600 requests per minute per IP.
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/bearings/parse", ParseBearingHandler())

	plans := v1.Group("/plans")
	plans.Post("/", withTimeout(CreatePlanHandler(deps)))
	plans.Get("/", withTimeout(ListPlansHandler(deps)))
	plans.Get("/:id", withTimeout(GetPlanHandler(deps)))
	plans.Delete("/:id", withTimeout(DeletePlanHandler(deps)))
	plans.Post("/:id/save", withTimeout(SavePlanHandler(deps)))
	plans.Post("/:id/load", withTimeout(LoadPlanHandler(deps)))
	plans.Post("/:id/archive", withTimeout(ArchivePlanHandler(deps)))
	plans.Get("/:id/geojson", withTimeout(PlanGeoJSONHandler(deps)))

	plans.Get("/:id/points", withTimeout(ListPointsHandler(deps)))
	plans.Post("/:id/points", withTimeout(AddPointHandler(deps)))
	plans.Get("/:id/points/:number", withTimeout(GetPointHandler(deps)))
	plans.Delete("/:id/points/:number", withTimeout(DeletePointHandler(deps)))

	plans.Post("/:id/traverse", withTimeout(StartTraverseHandler(deps)))
	plans.Get("/:id/traverse", withTimeout(GetTraverseHandler(deps)))
	plans.Delete("/:id/traverse", withTimeout(DiscardTraverseHandler(deps)))
	plans.Post("/:id/traverse/legs", withTimeout(AddLegHandler(deps)))
	plans.Post("/:id/traverse/closing", withTimeout(MarkClosingHandler(deps)))
	plans.Get("/:id/traverse/misclosure", withTimeout(MisclosureHandler(deps)))
	plans.Post("/:id/traverse/adjust", withTimeout(AdjustHandler(deps)))
	plans.Post("/:id/traverse/commit", withTimeout(CommitTraverseHandler(deps)))
	plans.Get("/:id/traverses", withTimeout(ListTraversesHandler(deps)))

	plans.Post("/:id/polygons/preview", withTimeout(PreviewPolygonHandler(deps)))
	plans.Post("/:id/polygons", withTimeout(CommitPolygonHandler(deps)))
	plans.Get("/:id/polygons", withTimeout(ListPolygonsHandler(deps)))
	plans.Get("/:id/polygons/:lot", withTimeout(GetPolygonHandler(deps)))
	plans.Put("/:id/polygons/:lot", withTimeout(ReplacePolygonHandler(deps)))
	plans.Delete("/:id/polygons/:lot", withTimeout(DeletePolygonHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, DefaultSpecPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("plan", c.Query("plan"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.Events)))
}

func withTimeout(h fiber.Handler) fiber.Handler {
	return timeout.NewWithContext(h, requestTimeout)
}
