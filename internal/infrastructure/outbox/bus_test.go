package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/greengrove/plantshop/internal/domain/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop()

	var (
		mu       sync.Mutex
		received []string
	)
	record := func(tag string) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			mu.Lock()
			received = append(received, tag+":"+e.EventName())
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe("order.placed", record("a"))
	bus.Subscribe("order.placed", record("b"))
	bus.Subscribe("order.finalized", record("c"))

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a:order.placed", "b:order.placed"}, received)
}

func TestBus_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop()

	var delivered sync.WaitGroup
	delivered.Add(2)
	bus.Subscribe("order.placed", func(ctx context.Context, e domoutbox.Event) error {
		panic("handler blew up")
	})
	bus.Subscribe("order.placed", func(ctx context.Context, e domoutbox.Event) error {
		delivered.Done()
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))

	done := make(chan struct{})
	go func() { delivered.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second delivery never arrived after a panicking sibling")
	}
}

func TestBus_HandlerErrorIsSwallowed(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop()

	bus.Subscribe("order.placed", func(ctx context.Context, e domoutbox.Event) error {
		return errors.New("downstream unavailable")
	})

	assert.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))
}

func TestBus_PublishNilEventIsNoop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop()

	assert.NoError(t, bus.Publish(context.Background(), nil))
}

func TestBus_EventWithoutSubscriberIsDropped(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.unknown"}))

	// Stop drains the queue; a dropped event must not wedge shutdown.
	bus.Stop()
}

func TestBus_StopDrainsPendingEvents(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())

	var (
		mu    sync.Mutex
		count int
	)
	bus.Subscribe("order.placed", func(ctx context.Context, e domoutbox.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}
