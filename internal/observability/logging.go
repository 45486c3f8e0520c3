package observability

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Unknown levels fall back to info and
// development environments get human readable console output.
func NewLogger(level, env, service string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(parsed).With().Timestamp().Str("service", service).Logger()
}
