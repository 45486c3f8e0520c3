package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dialTimeout = 3 * time.Second

// ConnectRedis opens the client backing the verdict cache and the shared rate
// limiter. The connection is verified before it is returned.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if options.DialTimeout == 0 {
		options.DialTimeout = dialTimeout
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}

// ConnectNATS opens the connection used to publish verdict events. It keeps
// reconnecting in the background for the lifetime of the process.
func ConnectNATS(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	logger = logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(dialTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}
