package coordinator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/broker/memory"
	"github.com/ggoodman/matchsession-go/provider"
)

func TestEncodeDecodeEvent(t *testing.T) {
	results := []provider.SearchResult{{
		SessionID:             "s1",
		OwnerID:               "bob",
		OpenPublicConnections: 3,
		Settings: provider.Settings{
			NumPublicConnections: 4,
			ShouldAdvertise:      true,
			BuildUniqueID:        1,
			Attributes:           map[string]string{provider.MatchTypeKey: "FreeForAll"},
		},
	}}

	cases := []Event{
		CreateCompleted{Success: true},
		FindCompleted{Results: results, Success: true},
		FindCompleted{Results: []provider.SearchResult{}, Success: false},
		JoinCompleted{Result: provider.JoinSessionIsFull},
		JoinCompleted{Result: provider.JoinSuccess, Address: "10.0.0.1:7777"},
		DestroyCompleted{Success: true},
		StartCompleted{Success: false},
	}
	for _, ev := range cases {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent(%#v): %v", ev, err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Fatalf("decoded %#v, want %#v", got, ev)
		}
	}
}

func TestDecodeEventRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"kind":"travel"}`)); !errors.Is(err, ErrUnknownEventKind) {
		t.Fatalf("expected ErrUnknownEventKind, got %v", err)
	}
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRelayAndFollow(t *testing.T) {
	b := memory.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, f, _ := newTestCoordinator(t, steam)
	c.Subscribe(Relay(ctx, b, "lobby", nil))

	c.CreateSession(4, "FreeForAll")
	f.TriggerCreateSessionComplete(provider.GameSession, true)
	f.connect = "10.0.0.1:7777"
	c.JoinSession(provider.SearchResult{SessionID: "s1"})
	f.TriggerJoinSessionComplete(provider.GameSession, provider.JoinSuccess)
	if _, err := b.Publish(ctx, "lobby", []byte(`{"kind":"travel"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	c.DestroySession()
	f.TriggerDestroySessionComplete(provider.GameSession, true)

	// The memory broker numbers events from 1; resume after the create.
	var got []Event
	followCtx, stop := context.WithCancel(ctx)
	defer stop()
	err := Follow(followCtx, b, "lobby", "1", func(ev Event) {
		got = append(got, ev)
		if len(got) == 2 {
			stop()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Follow to end with context.Canceled, got %v", err)
	}

	want := []Event{
		JoinCompleted{Result: provider.JoinSuccess, Address: "10.0.0.1:7777"},
		DestroyCompleted{Success: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}
