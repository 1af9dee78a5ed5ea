package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	commits []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committed() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Message, len(f.commits))
	copy(out, f.commits)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConsumerCommitsAfterHandlerSuccess(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	c := &Consumer{r: fr, workers: 1, log: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx, func(_ context.Context, _ kafka.Message) error { return nil })

	waitFor(t, func() bool { return len(fr.committed()) == 2 })
	got := fr.committed()
	if got[0].Offset != 1 || got[1].Offset != 2 {
		t.Fatalf("committed offsets = %d,%d, want 1,2", got[0].Offset, got[1].Offset)
	}
}

func TestConsumerHoldsOffsetOnHandlerError(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte("bad")},
		{Offset: 8, Value: []byte("good")},
	}}
	c := &Consumer{r: fr, workers: 1, log: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx, func(_ context.Context, m kafka.Message) error {
		if m.Offset == 7 {
			return errors.New("apply failed")
		}
		return nil
	})

	waitFor(t, func() bool { return len(fr.committed()) == 1 })
	if got := fr.committed()[0].Offset; got != 8 {
		t.Fatalf("committed offset = %d, want 8", got)
	}

	// the failed message must stay uncommitted for redelivery
	time.Sleep(50 * time.Millisecond)
	for _, m := range fr.committed() {
		if m.Offset == 7 {
			t.Fatal("offset 7 committed despite handler error")
		}
	}
}

func TestConsumerStopsOnCancel(t *testing.T) {
	fr := &fakeReader{}
	c := &Consumer{r: fr, workers: 2, log: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, func(_ context.Context, _ kafka.Message) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not stop after cancel")
	}
}
