package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shoplite/catalog-orders/internal/backoff"
	"github.com/shoplite/catalog-orders/internal/events"
	kafkax "github.com/shoplite/catalog-orders/internal/kafka"
	"github.com/shoplite/catalog-orders/internal/redisx"
)

type Store interface {
	ApplyOrderCreated(ctx context.Context, ev ReconcileEvent) (ApplyResult, error)
	RecordDeadLetter(ctx context.Context, dl DeadLetter) error
}

// Deduper is the optional Redis fast path; the processed_events table stays
// authoritative. The key is checked before processing but only written after
// the event reached a terminal state, so a crashed attempt is still retried.
type Deduper interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
}

// Reconciler consumes order_created and applies stock decrements with
// bounded retries. The event lifecycle is pending -> retrying -> applied or
// dead-lettered; a handler returning nil lets the consumer commit the
// offset.
type Reconciler struct {
	Store       Store
	Dedup       Deduper
	ServiceName string
	MaxAttempts int
	BaseDelay   time.Duration
	Log         *slog.Logger
}

const maxRetryDelay = 10 * time.Second

// HandleOrderCreated is the consumer handler.
func (r *Reconciler) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Unparseable message: nothing to retry against, log and ack.
		r.Log.Error("undecodable event dropped", "err", err, "offset", m.Offset)
		return nil
	}
	if env.EventType != events.EventOrderCreated {
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, r.ServiceName, env.EventID)
	if r.Dedup != nil {
		// Redis being down only costs us the fast path.
		if s, err := r.Dedup.Get(ctx, dedupKey); err == nil && s != "" {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
	if err != nil {
		r.Log.Error("bad order_created payload", "err", err, "event_id", env.EventID)
		return r.deadLetter(ctx, env, ReconcileEvent{}, 0, fmt.Errorf("bad payload: %w", err))
	}
	ev := ReconcileEvent{OrderID: p.OrderID, ProductID: p.ProductID, Quantity: p.Quantity}
	if ev.OrderID <= 0 || ev.ProductID <= 0 || ev.Quantity <= 0 {
		return r.deadLetter(ctx, env, ev, 0, errors.New("invalid payload values"))
	}

	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		res, err := r.Store.ApplyOrderCreated(ctx, ev)
		if err == nil {
			r.logResult(env, ev, res)
			r.markSeen(ctx, dedupKey)
			return nil
		}
		lastErr = err
		if attempt == r.MaxAttempts {
			break
		}
		r.Log.Warn("reconcile retry",
			"event_id", env.EventID, "order_id", ev.OrderID, "attempt", attempt, "err", err)
		select {
		case <-time.After(backoff.Delay(r.BaseDelay, attempt, maxRetryDelay)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.deadLetter(ctx, env, ev, r.MaxAttempts, lastErr)
}

func (r *Reconciler) logResult(env events.Envelope, ev ReconcileEvent, res ApplyResult) {
	switch res {
	case ApplyApplied:
		r.Log.Info("stock reconciled",
			"event_id", env.EventID, "order_id", ev.OrderID, "product_id", ev.ProductID, "quantity", ev.Quantity)
	case ApplyDuplicate:
		r.Log.Info("duplicate event skipped", "event_id", env.EventID, "order_id", ev.OrderID)
	case ApplyInsufficient:
		r.Log.Warn("insufficient stock, order flagged",
			"event_id", env.EventID, "order_id", ev.OrderID, "product_id", ev.ProductID, "quantity", ev.Quantity)
	}
}

// deadLetter parks the event. Failing to record the dead letter is the one
// case where we return an error, so the channel redelivers instead of
// losing the event.
func (r *Reconciler) deadLetter(ctx context.Context, env events.Envelope, ev ReconcileEvent, attempts int, cause error) error {
	dl := DeadLetter{
		OrderID:   ev.OrderID,
		ProductID: ev.ProductID,
		Quantity:  ev.Quantity,
		Reason:    cause.Error(),
		Attempts:  attempts,
		Payload:   env.Payload,
	}
	if err := r.Store.RecordDeadLetter(ctx, dl); err != nil {
		r.Log.Error("dead-letter write failed", "event_id", env.EventID, "err", err)
		return err
	}
	r.markSeen(ctx, fmt.Sprintf(redisx.KeyDedup, r.ServiceName, env.EventID))
	r.Log.Error("event dead-lettered",
		"event_id", env.EventID, "order_id", ev.OrderID, "attempts", attempts, "reason", cause.Error())
	return nil
}

func (r *Reconciler) markSeen(ctx context.Context, key string) {
	if r.Dedup != nil {
		_ = r.Dedup.Set(ctx, key, "1", redisx.TTLDedup)
	}
}
