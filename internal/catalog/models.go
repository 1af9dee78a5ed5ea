package catalog

import "time"

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"product_name"`
	Description string    `json:"description"`
	Stock       *int      `json:"stock"` // nil means stock is untracked
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Review struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"productId"`
	ReviewerName string    `json:"reviewerName"`
	Rating       *int      `json:"rating"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateProductInput struct {
	Name        string
	Description string
	Stock       *int
}

type UpdateProductInput struct {
	Name        *string
	Description *string
	Stock       *int
}

type CreateReviewInput struct {
	ReviewerName string
	Rating       *int
	Comment      string
}

type UpdateReviewInput struct {
	ReviewerName *string
	Rating       *int
	Comment      *string
}

// ReconcileEvent is the decoded order_created payload handed to the store.
type ReconcileEvent struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}

// ApplyResult reports what a reconciliation attempt did.
type ApplyResult int

const (
	// ApplyApplied means the stock was decremented (or the product is
	// untracked and needed no decrement).
	ApplyApplied ApplyResult = iota
	// ApplyDuplicate means this orderId was already processed.
	ApplyDuplicate
	// ApplyInsufficient means the decrement would go negative; stock is
	// untouched and the order was flagged stock_conflict.
	ApplyInsufficient
)

func (r ApplyResult) String() string {
	switch r {
	case ApplyApplied:
		return "applied"
	case ApplyDuplicate:
		return "duplicate"
	case ApplyInsufficient:
		return "insufficient_stock"
	}
	return "unknown"
}

// DeadLetter is a reconciliation event that exhausted its retry budget.
type DeadLetter struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	Reason    string
	Attempts  int
	Payload   []byte
}
