package natsadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber on a plain NATS connection.
// Subscriptions are ephemeral: a relay only needs events from the moment it connects.
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber connects to NATS.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribePlan delivers every event of planID to handler until cancel is called.
func (s *Subscriber) SubscribePlan(ctx context.Context, planID string, handler func(ctx context.Context, ev *domain.SurveyEvent) error) (func(), error) {
	sub, err := s.conn.Subscribe(PlanSubject(planID), func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("drop malformed survey event", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, ev); err != nil {
			slog.Debug("survey event handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", planID, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains the connection.
func (s *Subscriber) Close() {
	_ = s.conn.Drain()
}
