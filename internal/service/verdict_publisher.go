package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/uva-judge/internal/dto"
)

// VerdictPublisher announces judged submissions to other services.
type VerdictPublisher interface {
	Publish(ctx context.Context, event dto.VerdictEvent) error
}

// NewNATSVerdictPublisher publishes verdict events on subject. A nil
// connection yields a publisher that drops events.
func NewNATSVerdictPublisher(conn *nats.Conn, subject string) VerdictPublisher {
	if conn == nil || subject == "" {
		return noopPublisher{}
	}
	return &natsVerdictPublisher{conn: conn, subject: subject}
}

type natsVerdictPublisher struct {
	conn    *nats.Conn
	subject string
}

func (p *natsVerdictPublisher) Publish(_ context.Context, event dto.VerdictEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, dto.VerdictEvent) error { return nil }
