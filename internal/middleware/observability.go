package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/observability"
)

type verdictKey struct{}

// SetVerdict records the verdict code of a judged request for the access log.
func SetVerdict(c *fiber.Ctx, code string) {
	c.Locals(verdictKey{}, code)
}

// Observability records request metrics for every route except /metrics and
// writes one log line per API call. Judged requests also log their verdict.
func Observability(fallback zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		if c.Path() == "/metrics" {
			return err
		}

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()

		observability.HTTPRequests().WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		observability.HTTPLatency().WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())

		if !strings.HasPrefix(c.Path(), "/api") {
			return err
		}

		logger := zerolog.Ctx(c.UserContext())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &fallback
		}

		var event *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		if code, ok := c.Locals(verdictKey{}).(string); ok {
			event = event.Str("verdict", code)
		}
		event.
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Str("latency_bucket", latencyBucket(elapsed)).
			Msg("request completed")

		return err
	}
}

// Evaluations run processes, so buckets reach into seconds.
func latencyBucket(d time.Duration) string {
	switch {
	case d <= 50*time.Millisecond:
		return "<=50ms"
	case d <= 250*time.Millisecond:
		return "<=250ms"
	case d <= time.Second:
		return "<=1s"
	case d <= 5*time.Second:
		return "<=5s"
	default:
		return ">5s"
	}
}
