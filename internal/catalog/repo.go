package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrReviewNotFound  = errors.New("review not found")
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, product_name, description, stock, created_at, updated_at`
const reviewColumns = `id, product_id, reviewer_name, rating, comment, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.ProductID, &rv.ReviewerName, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &rv, nil
}

func (r *Repo) CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products (product_name, description, stock)
		VALUES ($1, $2, $3)
		RETURNING `+productColumns,
		in.Name, in.Description, in.Stock))
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *Repo) UpdateProduct(ctx context.Context, id int64, in UpdateProductInput) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		UPDATE products SET
			product_name = COALESCE($2, product_name),
			description  = COALESCE($3, description),
			stock        = COALESCE($4, stock),
			updated_at   = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, in.Name, in.Description, in.Stock))
}

func (r *Repo) DeleteProduct(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repo) CreateReview(ctx context.Context, productID int64, in CreateReviewInput) (*Review, error) {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrProductNotFound
	}
	return scanReview(r.DB.QueryRow(ctx, `
		INSERT INTO reviews (product_id, reviewer_name, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING `+reviewColumns,
		productID, in.ReviewerName, in.Rating, in.Comment))
}

func (r *Repo) ListReviews(ctx context.Context, productID int64) ([]Review, error) {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrProductNotFound
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE product_id=$1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.ReviewerName, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) GetReview(ctx context.Context, id int64) (*Review, error) {
	return scanReview(r.DB.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id=$1`, id))
}

func (r *Repo) UpdateReview(ctx context.Context, id int64, in UpdateReviewInput) (*Review, error) {
	return scanReview(r.DB.QueryRow(ctx, `
		UPDATE reviews SET
			reviewer_name = COALESCE($2, reviewer_name),
			rating        = COALESCE($3, rating),
			comment       = COALESCE($4, comment)
		WHERE id = $1
		RETURNING `+reviewColumns,
		id, in.ReviewerName, in.Rating, in.Comment))
}

func (r *Repo) DeleteReview(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM reviews WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// ApplyOrderCreated performs the whole reconciliation step in one
// transaction: claim the orderId in the idempotency set, then decrement
// stock with a single conditional UPDATE. Read-modify-write in application
// code would lose updates under concurrency; the affected-row count is the
// insufficient-stock signal.
//
// A NULL stock means the product is untracked: `stock - q` stays NULL and
// the update counts as applied.
func (r *Repo) ApplyOrderCreated(ctx context.Context, ev ReconcileEvent) (ApplyResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO processed_events (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING`, ev.OrderID)
	if err != nil {
		return 0, fmt.Errorf("claim order id: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ApplyDuplicate, nil
	}

	ct, err = tx.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND (stock IS NULL OR stock >= $2)`,
		ev.ProductID, ev.Quantity)
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return ApplyApplied, nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, ev.ProductID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		// Roll back the idempotency claim so a retry can try again once the
		// product shows up.
		return 0, fmt.Errorf("reconcile order %d: %w", ev.OrderID, ErrProductNotFound)
	}

	// Insufficient stock: leave stock untouched, flag the order for manual
	// resolution, and keep the claim so redeliveries are no-ops.
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status='stock_conflict', updated_at=now()
		WHERE id=$1 AND status='pending'`, ev.OrderID); err != nil {
		return 0, fmt.Errorf("flag order: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ApplyInsufficient, nil
}

// RecordDeadLetter parks an event that exhausted its retries and claims its
// orderId so replays of the same event stop retrying.
func (r *Repo) RecordDeadLetter(ctx context.Context, dl DeadLetter) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO event_deadletters (id, order_id, product_id, quantity, reason, attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), dl.OrderID, dl.ProductID, dl.Quantity, dl.Reason, dl.Attempts, dl.Payload); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO processed_events (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING`, dl.OrderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
