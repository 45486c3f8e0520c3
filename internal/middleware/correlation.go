package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CorrelationHeader carries the request identifier in both directions.
const CorrelationHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// CorrelationID assigns every request an identifier and binds a logger
// carrying it to the request context. Callers may supply their own id through
// X-Correlation-ID or X-Request-ID.
func CorrelationID(base zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := incomingCorrelationID(c)

		c.Locals(correlationIDKey{}, id)
		c.Set(CorrelationHeader, id)

		logger := base.With().Str("correlation_id", id).Logger()
		ctx := context.WithValue(c.UserContext(), correlationIDKey{}, id)
		c.SetUserContext(logger.WithContext(ctx))

		return c.Next()
	}
}

func incomingCorrelationID(c *fiber.Ctx) string {
	for _, header := range []string{CorrelationHeader, fiber.HeaderXRequestID} {
		if id := strings.TrimSpace(c.Get(header)); id != "" && len(id) <= 128 {
			return id
		}
	}
	return uuid.NewString()
}

// CorrelationIDFromContext returns the identifier bound by CorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the identifier of the request being served.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationIDKey{}).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// LoggerFor returns base enriched with the request's correlation id.
func LoggerFor(c *fiber.Ctx, base zerolog.Logger) zerolog.Logger {
	id := GetCorrelationID(c)
	if id == "" {
		return base
	}
	return base.With().Str("correlation_id", id).Logger()
}
