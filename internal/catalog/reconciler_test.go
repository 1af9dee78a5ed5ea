package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/shoplite/catalog-orders/internal/events"
	kafkax "github.com/shoplite/catalog-orders/internal/kafka"
)

// memStore mirrors the repo's transactional semantics in memory: a
// processed-set claim followed by a conditional decrement, all under one
// lock.
type memStore struct {
	mu          sync.Mutex
	stock       map[int64]*int // nil value = untracked
	processed   map[int64]bool
	conflicted  map[int64]bool // order ids flagged stock_conflict
	deadLetters []DeadLetter
	applyErrs   map[int64]int // product id -> remaining injected errors
}

func newMemStore() *memStore {
	return &memStore{
		stock:      map[int64]*int{},
		processed:  map[int64]bool{},
		conflicted: map[int64]bool{},
		applyErrs:  map[int64]int{},
	}
}

func (s *memStore) setStock(productID int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := stock
	s.stock[productID] = &v
}

func (s *memStore) getStock(t *testing.T, productID int64) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.stock[productID]
	if !ok || v == nil {
		t.Fatalf("product %d has no tracked stock", productID)
	}
	return *v
}

func (s *memStore) ApplyOrderCreated(ctx context.Context, ev ReconcileEvent) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.applyErrs[ev.ProductID]; n > 0 {
		s.applyErrs[ev.ProductID] = n - 1
		return 0, fmt.Errorf("injected store error")
	}
	if s.processed[ev.OrderID] {
		return ApplyDuplicate, nil
	}
	stock, ok := s.stock[ev.ProductID]
	if !ok {
		return 0, fmt.Errorf("reconcile order %d: %w", ev.OrderID, ErrProductNotFound)
	}
	s.processed[ev.OrderID] = true
	if stock == nil {
		return ApplyApplied, nil
	}
	if *stock < ev.Quantity {
		s.conflicted[ev.OrderID] = true
		return ApplyInsufficient, nil
	}
	*stock -= ev.Quantity
	return ApplyApplied, nil
}

func (s *memStore) RecordDeadLetter(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters = append(s.deadLetters, dl)
	s.processed[dl.OrderID] = true
	return nil
}

func newReconciler(st Store) *Reconciler {
	return &Reconciler{
		Store:       st,
		ServiceName: "catalog-test",
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func orderCreatedMessage(orderID, productID int64, qty int) kafkago.Message {
	env := events.NewOrderCreated("orders-test", "", events.OrderCreatedPayload{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
	})
	return kafkago.Message{Key: events.PartitionKey(productID), Value: kafkax.MustMarshal(env)}
}

func TestReconcileDecrementsOnce(t *testing.T) {
	st := newMemStore()
	st.setStock(1, 5)
	r := newReconciler(st)

	m := orderCreatedMessage(100, 1, 2)
	if err := r.HandleOrderCreated(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := st.getStock(t, 1); got != 3 {
		t.Fatalf("stock = %d, want 3", got)
	}

	// Redelivery of the same orderId must be a no-op.
	for i := 0; i < 3; i++ {
		if err := r.HandleOrderCreated(context.Background(), m); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}
	if got := st.getStock(t, 1); got != 3 {
		t.Fatalf("stock after replays = %d, want 3", got)
	}
}

func TestReconcileInsufficientStockFlagsOrder(t *testing.T) {
	st := newMemStore()
	st.setStock(1, 1)
	r := newReconciler(st)

	if err := r.HandleOrderCreated(context.Background(), orderCreatedMessage(200, 1, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := st.getStock(t, 1); got != 1 {
		t.Fatalf("stock = %d, want unchanged 1", got)
	}
	if !st.conflicted[200] {
		t.Fatal("order not flagged stock_conflict")
	}
	if len(st.deadLetters) != 0 {
		t.Fatalf("insufficient stock should not dead-letter, got %d", len(st.deadLetters))
	}
}

func TestReconcileMissingProductDeadLettersAfterRetries(t *testing.T) {
	st := newMemStore() // no products at all
	r := newReconciler(st)

	if err := r.HandleOrderCreated(context.Background(), orderCreatedMessage(300, 9, 1)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.deadLetters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(st.deadLetters))
	}
	dl := st.deadLetters[0]
	if dl.OrderID != 300 || dl.Attempts != 3 {
		t.Fatalf("dead letter = %+v", dl)
	}

	// Replaying the dead-lettered event is now a duplicate, not more retries.
	if err := r.HandleOrderCreated(context.Background(), orderCreatedMessage(300, 9, 1)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(st.deadLetters) != 1 {
		t.Fatalf("replay grew dead letters to %d", len(st.deadLetters))
	}
}

func TestReconcileRecoversFromTransientError(t *testing.T) {
	st := newMemStore()
	st.setStock(1, 5)
	st.applyErrs[1] = 2 // fail twice, succeed on third attempt
	r := newReconciler(st)

	if err := r.HandleOrderCreated(context.Background(), orderCreatedMessage(400, 1, 2)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := st.getStock(t, 1); got != 3 {
		t.Fatalf("stock = %d, want 3", got)
	}
	if len(st.deadLetters) != 0 {
		t.Fatalf("unexpected dead letters: %d", len(st.deadLetters))
	}
}

func TestReconcileIgnoresForeignEventTypes(t *testing.T) {
	st := newMemStore()
	st.setStock(1, 5)
	r := newReconciler(st)

	env := events.NewOrderCreated("orders-test", "", events.OrderCreatedPayload{OrderID: 1, ProductID: 1, Quantity: 1})
	env.EventType = "SomethingElse"
	m := kafkago.Message{Value: kafkax.MustMarshal(env)}
	if err := r.HandleOrderCreated(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := st.getStock(t, 1); got != 5 {
		t.Fatalf("stock = %d, want untouched 5", got)
	}
}

func TestReconcileAcksGarbage(t *testing.T) {
	r := newReconciler(newMemStore())
	if err := r.HandleOrderCreated(context.Background(), kafkago.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("garbage should be acked, got %v", err)
	}
}

func TestReconcileInvalidPayloadDeadLetters(t *testing.T) {
	st := newMemStore()
	r := newReconciler(st)

	env := events.NewOrderCreated("orders-test", "", events.OrderCreatedPayload{OrderID: 500, ProductID: 1, Quantity: -2})
	m := kafkago.Message{Value: kafkax.MustMarshal(env)}
	if err := r.HandleOrderCreated(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.deadLetters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(st.deadLetters))
	}
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]string
}

func (d *memDedup) Get(ctx context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key], nil
}

func (d *memDedup) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = val
	return nil
}

// The Redis fast path short-circuits a redelivered event_id before it ever
// reaches the store, and is only written after a terminal outcome.
func TestReconcileDedupFastPath(t *testing.T) {
	st := newMemStore()
	st.setStock(1, 5)
	dedup := &memDedup{seen: map[string]string{}}
	r := newReconciler(st)
	r.Dedup = dedup

	m := orderCreatedMessage(600, 1, 2)
	if err := r.HandleOrderCreated(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(dedup.seen) != 1 {
		t.Fatalf("dedup entries = %d, want 1", len(dedup.seen))
	}

	// Same kafka message (same event_id) again: the store must not be hit.
	st.processed = map[int64]bool{} // wipe the authoritative set to prove it
	if err := r.HandleOrderCreated(context.Background(), m); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := st.getStock(t, 1); got != 3 {
		t.Fatalf("stock = %d, want 3 (fast path bypassed)", got)
	}
}

// No lost updates: concurrent events whose total fits the initial stock must
// land exactly on initial - total.
func TestReconcileConcurrentOrdersNoLostUpdates(t *testing.T) {
	const (
		initial = 100
		n       = 20
		qty     = 5
	)
	st := newMemStore()
	st.setStock(1, initial)
	r := newReconciler(st)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		orderID := int64(1000 + i)
		g.Go(func() error {
			return r.HandleOrderCreated(context.Background(), orderCreatedMessage(orderID, 1, qty))
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent handle: %v", err)
	}
	if got := st.getStock(t, 1); got != initial-n*qty {
		t.Fatalf("stock = %d, want %d", got, initial-n*qty)
	}
}
