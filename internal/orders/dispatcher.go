package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shoplite/catalog-orders/internal/backoff"
	"github.com/shoplite/catalog-orders/internal/events"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

type OutboxStore interface {
	Due(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, nextAttempt time.Time, terminal bool) error
}

// Dispatcher drains the outbox: it polls due rows, publishes them with acks,
// and retries with backoff until MaxAttempts, after which a row is parked as
// failed for manual inspection.
type Dispatcher struct {
	Outbox      OutboxStore
	Producer    Publisher
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Log         *slog.Logger
}

const maxBackoff = 30 * time.Second

func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := d.Tick(ctx); err != nil {
				d.Log.Error("outbox tick", "err", err)
			}
		}
	}
}

// Tick processes one batch. Store errors abort the batch; publish errors are
// recorded per row and do not.
func (d *Dispatcher) Tick(ctx context.Context) error {
	due, err := d.Outbox.Due(ctx, d.BatchSize)
	if err != nil {
		return err
	}
	for _, ev := range due {
		if err := d.publish(ctx, ev); err != nil {
			attempts := ev.Attempts + 1
			terminal := attempts >= d.MaxAttempts
			next := time.Now().Add(backoff.Delay(d.BaseDelay, attempts, maxBackoff))
			if mErr := d.Outbox.MarkFailed(ctx, ev.ID, attempts, err.Error(), next, terminal); mErr != nil {
				return mErr
			}
			if terminal {
				d.Log.Error("outbox event parked", "event_id", ev.ID, "attempts", attempts, "err", err)
			} else {
				d.Log.Warn("outbox publish failed", "event_id", ev.ID, "attempts", attempts, "err", err)
			}
			continue
		}
		if err := d.Outbox.MarkSent(ctx, ev.ID); err != nil {
			// The event went out but the row stays pending; the consumer's
			// dedup absorbs the redelivery.
			return err
		}
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, ev OutboxEvent) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.Producer.Publish(pctx, ev.Topic, ev.Key, ev.Payload,
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
