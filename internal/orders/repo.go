package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoplite/catalog-orders/internal/events"
	kafkax "github.com/shoplite/catalog-orders/internal/kafka"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrBadTransition = errors.New("invalid status transition")
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, product_id, quantity, customer_name, customer_email, status, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.CustomerName, &o.CustomerEmail, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// Create persists the order and its OrderCreated outbox row in one
// transaction. The request never fails because the broker is down; the
// dispatcher owns delivery.
func (r *Repo) Create(ctx context.Context, in CreateOrderInput, producer, traceID string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		INSERT INTO orders (product_id, quantity, customer_name, customer_email, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+orderColumns,
		in.ProductID, in.Quantity, in.CustomerName, in.CustomerEmail))
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	env := events.NewOrderCreated(producer, traceID, events.OrderCreatedPayload{
		OrderID:   o.ID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
	})
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (id, topic, key, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, now())`,
		uuid.MustParse(env.EventID), events.TopicOrderCreated, events.PartitionKey(o.ProductID), kafkax.MustMarshal(env))
	if err != nil {
		return nil, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.CustomerName, &o.CustomerEmail, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *Repo) Update(ctx context.Context, id int64, in UpdateOrderInput) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET
			product_id     = COALESCE($2, product_id),
			quantity       = COALESCE($3, quantity),
			customer_name  = COALESCE($4, customer_name),
			customer_email = COALESCE($5, customer_email),
			updated_at     = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		id, in.ProductID, in.Quantity, in.CustomerName, in.CustomerEmail))
}

// UpdateStatus validates the transition against the current row under a row
// lock so concurrent status changes cannot skip states.
func (r *Repo) UpdateStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !CanTransition(cur, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur, to)
	}

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING `+orderColumns, id, to))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
