// Package events defines the wire contract between the order and catalog
// services.
package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// TopicOrderCreated carries OrderCreated envelopes, at-least-once.
	TopicOrderCreated = "order_created"

	EventOrderCreated = "OrderCreated"
)

type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "orders-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID   int64 `json:"orderId"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// NewOrderCreated wraps a payload in a v1 envelope.
func NewOrderCreated(producer, traceID string, p OrderCreatedPayload) Envelope {
	raw, _ := json.Marshal(p)
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(p.OrderID, 10),
		Payload:       raw,
	}
}

// PartitionKey keys messages by product so all decrements for one product
// land on one partition. Ordering is still not assumed downstream.
func PartitionKey(productID int64) []byte {
	return []byte(strconv.FormatInt(productID, 10))
}
