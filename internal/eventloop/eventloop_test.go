package eventloop

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := New()
	defer l.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		if err := l.Post(func() {
			mu.Lock()
			got = append(got, i)
			n := len(got)
			mu.Unlock()
			if n == 100 {
				close(done)
			}
		}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_PostNeverRunsInline(t *testing.T) {
	l := New()
	defer l.Close()

	block := make(chan struct{})
	ran := make(chan struct{})
	_ = l.Post(func() { <-block })
	_ = l.Post(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("second task ran before the first returned")
	case <-time.After(20 * time.Millisecond):
	}
	close(block)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("second task never ran")
	}
}

func TestLoop_PostAfterClose(t *testing.T) {
	l := New()
	l.Close()
	if err := l.Post(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Close is idempotent.
	l.Close()
}
