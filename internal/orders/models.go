package orders

import "time"

type Order struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"productId"`
	Quantity      int       `json:"quantity"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type CreateOrderInput struct {
	ProductID     int64
	Quantity      int
	CustomerName  string
	CustomerEmail string
}

// UpdateOrderInput carries a partial-field merge; nil means "leave as is".
type UpdateOrderInput struct {
	ProductID     *int64
	Quantity      *int
	CustomerName  *string
	CustomerEmail *string
}
