package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/uva-judge/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Languages   []string  `json:"languages"`
}

// HealthInfo describes the running judge for the health endpoint.
type HealthInfo struct {
	Service     string
	Environment string
	Languages   []string
}

// HealthCheck returns a handler that reports judge liveness.
func HealthCheck(info HealthInfo) fiber.Handler {
	languages := info.Languages
	if languages == nil {
		languages = []string{}
	}

	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "service healthy", HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     info.Service,
			Environment: info.Environment,
			Languages:   languages,
		})
	}
}
