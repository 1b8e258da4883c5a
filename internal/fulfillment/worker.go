package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/modadz/marketplace/internal/orders"
	"github.com/modadz/marketplace/internal/redisx"
)

// Worker picks up confirmed orders and moves them into processing so the
// warehouse queue sees them. It goes through the same repository as the
// API, the lifecycle rules apply unchanged.
type Worker struct {
	Repo  orders.Repository
	Redis *redis.Client // optional; nil disables event dedup
	Name  string        // actor recorded in the status history
}

// HandleOrderConfirmed is mounted as the consumer handler for the
// order.confirmed topic.
func (w *Worker) HandleOrderConfirmed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != orders.EventOrderConfirmed {
		return nil
	}

	var dkey string
	if w.Redis != nil {
		dkey = fmt.Sprintf(redisx.KeyDedup, "fulfillment", env.EventID)
		seen, err := redisx.Exists(ctx, w.Redis, dkey)
		if err == nil && seen {
			return nil
		}
	}

	p, err := orders.UnwrapPayload[orders.OrderConfirmedPayload](env)
	if err != nil {
		return err
	}

	_, err = w.Repo.Transition(ctx, p.OrderID, orders.StatusProcessing, "accepted by fulfillment", w.Name)
	if err != nil {
		// Replays land here when the order already moved on or was
		// cancelled; the offset may be committed.
		if errors.Is(err, orders.ErrInvalidTransition) || errors.Is(err, orders.ErrNotFound) {
			log.Warn().Str("order_id", p.OrderID).Err(err).Msg("confirmed event skipped")
			w.markHandled(ctx, dkey)
			return nil
		}
		// dedup key stays unset so a redelivery retries the transition
		return err
	}

	w.markHandled(ctx, dkey)
	log.Info().Str("order_id", p.OrderID).Str("order_number", p.OrderNumber).
		Msg("order moved to processing")
	return nil
}

func (w *Worker) markHandled(ctx context.Context, dkey string) {
	if w.Redis == nil || dkey == "" {
		return
	}
	_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}
