package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Logger       zerolog.Logger
	AccessLog    bool
	AllowOrigins string
}

// Register attaches the middlewares shared by every route.
func Register(app *fiber.App, cfg Config) {
	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New())
	app.Use(CorrelationID(cfg.Logger))
	app.Use(Observability(cfg.Logger))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${respHeader:X-Correlation-ID}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, " + CorrelationHeader,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: CorrelationHeader,
	}))
}
