// Package brokertest holds a conformance suite every broker.Broker
// implementation is expected to pass.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/broker"
)

// BrokerFactory is a function that creates a new broker instance for testing.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete broker test suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribeFromLatest", func(t *testing.T) {
		testPublishAndSubscribeFromLatest(t, factory)
	})
	t.Run("PublishAndSubscribeFromLastEventID", func(t *testing.T) {
		testPublishAndSubscribeFromLastEventID(t, factory)
	})
	t.Run("DeliveryOrder", func(t *testing.T) {
		testDeliveryOrder(t, factory)
	})
	t.Run("MultipleSubscribersToSameNamespace", func(t *testing.T) {
		testMultipleSubscribersToSameNamespace(t, factory)
	})
	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, factory)
	})
	t.Run("SubscriptionContextCancellation", func(t *testing.T) {
		testSubscriptionContextCancellation(t, factory)
	})
	t.Run("HandlerErrorStopsSubscription", func(t *testing.T) {
		testHandlerErrorStopsSubscription(t, factory)
	})
	t.Run("Cleanup", func(t *testing.T) {
		testCleanup(t, factory)
	})
	t.Run("ResumeFromNonExistentEventID", func(t *testing.T) {
		testResumeFromNonExistentEventID(t, factory)
	})
}

func event(kind string, n int) []byte {
	return []byte(fmt.Sprintf(`{"kind":%q,"n":%d}`, kind, n))
}

// collector gathers envelopes delivered to a handler.
type collector struct {
	mu       sync.Mutex
	messages []broker.MessageEnvelope
	arrived  chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 64)}
}

func (c *collector) handle(_ context.Context, env broker.MessageEnvelope) error {
	c.mu.Lock()
	c.messages = append(c.messages, env)
	c.mu.Unlock()
	c.arrived <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []broker.MessageEnvelope {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d messages before timeout", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.MessageEnvelope(nil), c.messages...)
}

// subscribe runs Subscribe in the background and returns its result channel.
func subscribe(ctx context.Context, b broker.Broker, namespace, lastEventID string, handler broker.MessageHandler) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, namespace, lastEventID, handler)
	}()
	// Give the subscription time to start.
	time.Sleep(100 * time.Millisecond)
	return done
}

func awaitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Subscription did not complete within timeout")
	}
	return nil
}

func publish(t *testing.T, ctx context.Context, b broker.Broker, namespace string, data []byte) string {
	t.Helper()
	eventID, err := b.Publish(ctx, namespace, data)
	if err != nil {
		t.Fatalf("Failed to publish message: %v", err)
	}
	if eventID == "" {
		t.Fatal("Expected non-empty event ID")
	}
	return eventID
}

func testPublishAndSubscribeFromLatest(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace"

	// Published before the subscription, must not be delivered.
	publish(t, ctx, b, namespace, event("create", 0))

	c := newCollector()
	done := subscribe(ctx, b, namespace, "", c.handle)

	eventID := publish(t, ctx, b, namespace, event("create", 1))
	got := c.wait(t, 1)
	cancel()

	if err := awaitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscription error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got))
	}
	if got[0].ID != eventID {
		t.Fatalf("Expected event ID %s, got %s", eventID, got[0].ID)
	}
	if string(got[0].Data) != string(event("create", 1)) {
		t.Fatalf("Unexpected payload %s", got[0].Data)
	}
}

func testPublishAndSubscribeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-2"

	eventID1 := publish(t, ctx, b, namespace, event("find", 1))
	eventID2 := publish(t, ctx, b, namespace, event("join", 2))

	c := newCollector()
	done := subscribe(ctx, b, namespace, eventID1, c.handle)
	got := c.wait(t, 1)
	cancel()

	if err := awaitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscription error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got))
	}
	if got[0].ID != eventID2 {
		t.Fatalf("Expected event ID %s, got %s", eventID2, got[0].ID)
	}
	if string(got[0].Data) != string(event("join", 2)) {
		t.Fatalf("Unexpected payload %s", got[0].Data)
	}
}

func testDeliveryOrder(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-9"

	c := newCollector()
	done := subscribe(ctx, b, namespace, "", c.handle)

	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = publish(t, ctx, b, namespace, event("destroy", i))
	}
	got := c.wait(t, n)
	cancel()
	awaitDone(t, done)

	for i, env := range got {
		if env.ID != ids[i] {
			t.Fatalf("message %d: expected event ID %s, got %s", i, ids[i], env.ID)
		}
	}
}

func testMultipleSubscribersToSameNamespace(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-3"

	c1, c2 := newCollector(), newCollector()
	done1 := subscribe(ctx, b, namespace, "", c1.handle)
	done2 := subscribe(ctx, b, namespace, "", c2.handle)

	eventID := publish(t, ctx, b, namespace, event("start", 1))
	got1 := c1.wait(t, 1)
	got2 := c2.wait(t, 1)
	cancel()
	awaitDone(t, done1)
	awaitDone(t, done2)

	if len(got1) != 1 || got1[0].ID != eventID {
		t.Fatalf("First subscriber: expected event %s, got %v", eventID, got1)
	}
	if len(got2) != 1 || got2[0].ID != eventID {
		t.Fatalf("Second subscriber: expected event %s, got %v", eventID, got2)
	}
}

func testNamespaceIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace1 := "test-namespace-4a"
	namespace2 := "test-namespace-4b"

	c1, c2 := newCollector(), newCollector()
	done1 := subscribe(ctx, b, namespace1, "", c1.handle)
	done2 := subscribe(ctx, b, namespace2, "", c2.handle)

	publish(t, ctx, b, namespace1, event("create", 1))
	publish(t, ctx, b, namespace2, event("find", 2))
	got1 := c1.wait(t, 1)
	got2 := c2.wait(t, 1)

	// Leave room for a misrouted delivery to show up.
	time.Sleep(200 * time.Millisecond)
	cancel()
	awaitDone(t, done1)
	awaitDone(t, done2)

	c1.mu.Lock()
	n1 := len(c1.messages)
	c1.mu.Unlock()
	c2.mu.Lock()
	n2 := len(c2.messages)
	c2.mu.Unlock()

	if n1 != 1 || n2 != 1 {
		t.Fatalf("Expected one message per namespace, got %d and %d", n1, n2)
	}
	if string(got1[0].Data) != string(event("create", 1)) {
		t.Fatalf("Namespace1: unexpected payload %s", got1[0].Data)
	}
	if string(got2[0].Data) != string(event("find", 2)) {
		t.Fatalf("Namespace2: unexpected payload %s", got2[0].Data)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, "test-namespace-5", "", func(context.Context, broker.MessageEnvelope) error {
			return nil
		})
	}()

	if err := awaitDone(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-6"
	expectedErr := errors.New("handler error")

	done := subscribe(ctx, b, namespace, "", func(context.Context, broker.MessageEnvelope) error {
		return expectedErr
	})
	publish(t, ctx, b, namespace, event("create", 1))

	if err := awaitDone(t, done); !errors.Is(err, expectedErr) {
		t.Fatalf("Expected handler error, got %v", err)
	}
}

func testCleanup(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-7"

	eventID := publish(t, ctx, b, namespace, event("create", 1))
	publish(t, ctx, b, namespace, event("create", 2))

	if err := b.Cleanup(ctx, namespace); err != nil {
		t.Fatalf("Failed to cleanup namespace: %v", err)
	}

	subCtx, subCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer subCancel()

	err := b.Subscribe(subCtx, namespace, eventID, func(context.Context, broker.MessageEnvelope) error {
		t.Error("Should not receive any messages after cleanup")
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		// Some implementations reject the forgotten event ID.
		t.Logf("Subscription returned error after cleanup (acceptable): %v", err)
	}
}

func testResumeFromNonExistentEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Subscribe(ctx, "test-namespace-8", "non-existent-id", func(context.Context, broker.MessageEnvelope) error {
		return nil
	})
	if err == nil {
		t.Fatal("Expected error for non-existent event ID, got nil")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Subscription should fail immediately for non-existent event ID, not timeout")
	}
}

// cleanupBroker removes the suite's namespaces and closes the broker if it
// can be closed. Errors are logged, not fatal.
func cleanupBroker(t *testing.T, b broker.Broker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespaces := []string{
		"test-namespace", "test-namespace-2", "test-namespace-3",
		"test-namespace-4a", "test-namespace-4b", "test-namespace-5",
		"test-namespace-6", "test-namespace-7", "test-namespace-8",
		"test-namespace-9",
	}
	for _, ns := range namespaces {
		if err := b.Cleanup(ctx, ns); err != nil {
			t.Logf("Warning: failed to cleanup namespace %s: %v", ns, err)
		}
	}

	if closer, ok := b.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			t.Logf("Warning: failed to close broker: %v", err)
		}
	}
}
