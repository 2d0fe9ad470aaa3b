package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/matchsession-go/broker"
	"github.com/ggoodman/matchsession-go/provider"
)

// ErrUnknownEventKind is returned by DecodeEvent for envelopes naming no
// known event.
var ErrUnknownEventKind = errors.New("coordinator: unknown event kind")

// wireEvent is the JSON form of an Event.
type wireEvent struct {
	Kind    Kind                    `json:"kind"`
	Success bool                    `json:"success"`
	Results []provider.SearchResult `json:"results,omitempty"`
	Result  *provider.JoinResult    `json:"result,omitempty"`
	Address string                  `json:"address,omitempty"`
}

// EncodeEvent returns the JSON form of ev.
func EncodeEvent(ev Event) ([]byte, error) {
	w := wireEvent{Kind: ev.Kind()}
	switch ev := ev.(type) {
	case CreateCompleted:
		w.Success = ev.Success
	case FindCompleted:
		w.Success = ev.Success
		w.Results = ev.Results
	case JoinCompleted:
		r := ev.Result
		w.Result = &r
		w.Address = ev.Address
		w.Success = ev.Joinable()
	case DestroyCompleted:
		w.Success = ev.Success
	case StartCompleted:
		w.Success = ev.Success
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventKind, ev)
	}
	return json.Marshal(w)
}

// DecodeEvent parses an event produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch w.Kind {
	case KindCreate:
		return CreateCompleted{Success: w.Success}, nil
	case KindFind:
		results := w.Results
		if results == nil {
			results = []provider.SearchResult{}
		}
		return FindCompleted{Results: results, Success: w.Success}, nil
	case KindJoin:
		result := provider.JoinUnknownError
		if w.Result != nil {
			result = *w.Result
		}
		return JoinCompleted{Result: result, Address: w.Address}, nil
	case KindDestroy:
		return DestroyCompleted{Success: w.Success}, nil
	case KindStart:
		return StartCompleted{Success: w.Success}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, w.Kind)
}

// Relay returns an Observer publishing every event to namespace on b.
// Publishing happens on the goroutine delivering the event; failures are
// logged and otherwise ignored.
func Relay(ctx context.Context, b broker.Broker, namespace string, log *slog.Logger) Observer {
	if log == nil {
		log = slog.Default()
	}
	return func(ev Event) {
		data, err := EncodeEvent(ev)
		if err != nil {
			log.ErrorContext(ctx, "coordinator: failed to encode event", slog.String("err", err.Error()))
			return
		}
		id, err := b.Publish(ctx, namespace, data)
		if err != nil {
			log.WarnContext(ctx, "coordinator: failed to relay event",
				slog.String("kind", string(ev.Kind())),
				slog.String("namespace", namespace),
				slog.String("err", err.Error()),
			)
			return
		}
		log.DebugContext(ctx, "coordinator: relayed event",
			slog.String("kind", string(ev.Kind())),
			slog.String("event_id", id),
		)
	}
}

// Follow delivers events relayed to namespace to fn until ctx is done or
// the subscription fails. Envelopes that do not decode are skipped.
func Follow(ctx context.Context, b broker.Broker, namespace, lastEventID string, fn Observer) error {
	return b.Subscribe(ctx, namespace, lastEventID, func(ctx context.Context, env broker.MessageEnvelope) error {
		ev, err := DecodeEvent(env.Data)
		if err != nil {
			slog.Default().WarnContext(ctx, "coordinator: skipping relayed message",
				slog.String("event_id", env.ID),
				slog.String("err", err.Error()),
			)
			return nil
		}
		fn(ev)
		return nil
	})
}
