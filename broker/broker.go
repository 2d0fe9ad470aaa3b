package broker

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when lastEventID does not name a
// message retained in the namespace.
var ErrUnknownEventID = errors.New("broker: unknown event id")

// ErrNamespaceClosed is returned when a namespace is cleaned up while it is
// being published to or subscribed to.
var ErrNamespaceClosed = errors.New("broker: namespace closed")

// Broker fans coordinator events out to other processes. Messages are
// isolated per namespace and delivered in publish order within a namespace.
type Broker interface {
	// Publish appends data to namespace and returns the event ID assigned to
	// it.
	Publish(ctx context.Context, namespace string, data []byte) (eventID string, err error)

	// Subscribe calls handler for every message of namespace until ctx is done
	// or handler returns an error, which Subscribe then returns.
	// If lastEventID is empty, delivery starts with the next published message.
	// Otherwise it resumes with the message after lastEventID.
	Subscribe(ctx context.Context, namespace string, lastEventID string, handler MessageHandler) error

	// Cleanup removes all resources associated with a namespace.
	Cleanup(ctx context.Context, namespace string) error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, envelope MessageEnvelope) error

// MessageEnvelope wraps a message with metadata for ordered delivery.
type MessageEnvelope struct {
	// ID is unique and increasing within the namespace.
	ID string `json:"id"`
	// Data is the message as published.
	Data []byte `json:"data"`
}
