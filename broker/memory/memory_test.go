package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/broker"
	"github.com/ggoodman/matchsession-go/broker/brokertest"
)

func TestMemoryBroker(t *testing.T) {
	brokertest.RunBrokerTests(t, func(t *testing.T) broker.Broker {
		return New()
	})
}

func TestBroker_CleanupEndsSubscription(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, "lobby", "", func(context.Context, broker.MessageEnvelope) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)

	if err := b.Cleanup(ctx, "lobby"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, broker.ErrNamespaceClosed) {
			t.Fatalf("Expected ErrNamespaceClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscription did not end after cleanup")
	}
}

func TestBroker_HandlerMayPublish(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	head, err := b.Publish(ctx, "lobby", []byte(`"first"`))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := b.Publish(ctx, "lobby", []byte(`"second"`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stop := errors.New("stop")
	var seen []string
	err = b.Subscribe(ctx, "lobby", head, func(ctx context.Context, env broker.MessageEnvelope) error {
		seen = append(seen, string(env.Data))
		if len(seen) == 1 {
			_, err := b.Publish(ctx, "lobby", []byte(`"echo"`))
			return err
		}
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Expected stop error, got %v", err)
	}
	if len(seen) != 2 || seen[0] != `"second"` || seen[1] != `"echo"` {
		t.Fatalf("Unexpected deliveries %v", seen)
	}
}

func TestBroker_PublishCopiesData(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	head, err := b.Publish(ctx, "lobby", []byte(`"head"`))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	data := []byte(`"abc"`)
	if _, err := b.Publish(ctx, "lobby", data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	data[1] = 'z'

	stop := errors.New("stop")
	var got string
	err = b.Subscribe(ctx, "lobby", head, func(_ context.Context, env broker.MessageEnvelope) error {
		got = string(env.Data)
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Expected stop error, got %v", err)
	}
	if got != `"abc"` {
		t.Fatalf("Expected retained payload to be unaffected, got %s", got)
	}
}
