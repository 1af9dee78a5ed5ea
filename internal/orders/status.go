package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"

	// StatusStockConflict is set by the catalog reconciler when the order's
	// decrement would drive stock negative; the order is flagged for manual
	// resolution rather than cancelled.
	StatusStockConflict Status = "stock_conflict"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusStockConflict:
		return true
	}
	return false
}

var validNext = map[Status]map[Status]bool{
	StatusPending:       {StatusConfirmed: true, StatusStockConflict: true},
	StatusConfirmed:     {StatusShipped: true},
	StatusShipped:       {StatusDelivered: true},
	StatusDelivered:     {},
	StatusStockConflict: {StatusConfirmed: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
