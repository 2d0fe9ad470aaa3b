// Package memory provides an in-memory broker.Broker for single-process
// deployments and tests.
package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/matchsession-go/broker"
)

// Broker implements broker.Broker with process-local storage. Every
// published message is retained until its namespace is cleaned up.
type Broker struct {
	mu           sync.Mutex
	namespaces   map[string]*namespace
	eventCounter atomic.Int64
}

type namespace struct {
	mu          sync.Mutex
	messages    []broker.MessageEnvelope
	subscribers map[*subscription]struct{}
	closed      bool
}

// subscription is an unbounded queue feeding one Subscribe call.
type subscription struct {
	mu     sync.Mutex
	queue  []broker.MessageEnvelope
	notify chan struct{}
	done   chan struct{}
}

func newSubscription() *subscription {
	return &subscription{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscription) push(envs ...broker.MessageEnvelope) {
	s.mu.Lock()
	s.queue = append(s.queue, envs...)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) drain() []broker.MessageEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		namespaces: make(map[string]*namespace),
	}
}

func (b *Broker) namespace(name string) *namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[name]
	if !ok {
		ns = &namespace{subscribers: make(map[*subscription]struct{})}
		b.namespaces[name] = ns
	}
	return ns
}

// Publish implements broker.Broker.Publish.
func (b *Broker) Publish(ctx context.Context, namespaceName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	envelope := broker.MessageEnvelope{
		ID:   strconv.FormatInt(b.eventCounter.Add(1), 10),
		Data: append([]byte(nil), data...),
	}

	ns := b.namespace(namespaceName)
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.closed {
		return "", broker.ErrNamespaceClosed
	}
	ns.messages = append(ns.messages, envelope)
	for sub := range ns.subscribers {
		sub.push(envelope)
	}
	return envelope.ID, nil
}

// Subscribe implements broker.Broker.Subscribe.
func (b *Broker) Subscribe(ctx context.Context, namespaceName string, lastEventID string, handler broker.MessageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ns := b.namespace(namespaceName)
	sub := newSubscription()

	ns.mu.Lock()
	if ns.closed {
		ns.mu.Unlock()
		return broker.ErrNamespaceClosed
	}
	if lastEventID != "" {
		idx := -1
		for i, msg := range ns.messages {
			if msg.ID == lastEventID {
				idx = i
				break
			}
		}
		if idx < 0 {
			ns.mu.Unlock()
			return broker.ErrUnknownEventID
		}
		sub.push(ns.messages[idx+1:]...)
	}
	ns.subscribers[sub] = struct{}{}
	ns.mu.Unlock()

	defer func() {
		ns.mu.Lock()
		delete(ns.subscribers, sub)
		ns.mu.Unlock()
	}()

	for {
		for _, env := range sub.drain() {
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.done:
			return broker.ErrNamespaceClosed
		case <-sub.notify:
		}
	}
}

// Cleanup implements broker.Broker.Cleanup. Active subscriptions of the
// namespace end with broker.ErrNamespaceClosed.
func (b *Broker) Cleanup(ctx context.Context, namespaceName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	ns, ok := b.namespaces[namespaceName]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.namespaces, namespaceName)
	b.mu.Unlock()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.closed = true
	for sub := range ns.subscribers {
		close(sub.done)
	}
	ns.subscribers = nil
	ns.messages = nil
	return nil
}

var _ broker.Broker = (*Broker)(nil)
