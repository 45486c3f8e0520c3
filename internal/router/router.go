package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/uva-judge/internal/config"
	"github.com/noah-isme/uva-judge/internal/handler"
	"github.com/noah-isme/uva-judge/internal/middleware"
	"github.com/noah-isme/uva-judge/internal/observability"
)

const apiPrefix = "/api/v1"

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	JudgeHandler   *handler.JudgeHandler
	CatalogHandler *handler.CatalogHandler
	// Redis shares rate limit counters between replicas when set.
	Redis *redis.Client
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	health := handler.HealthCheck(handler.HealthInfo{
		Service:     cfg.AppName,
		Environment: cfg.AppEnv,
		Languages:   cfg.LanguageNames(),
	})

	app.Get("/health", health)
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group(apiPrefix, func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", health)

	if deps.CatalogHandler != nil {
		deps.CatalogHandler.Register(api, apiPrefix)
	}

	if deps.JudgeHandler != nil {
		deps.JudgeHandler.Register(api, middleware.RateLimit(middleware.RateLimitConfig{
			Identifier: "judge",
			Max:        cfg.RateLimitMax,
			Window:     cfg.RateLimitWindow,
			Redis:      deps.Redis,
		}))
	}
}
