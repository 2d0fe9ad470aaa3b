package coordinator_test

import (
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/coordinator"
	"github.com/ggoodman/matchsession-go/provider"
	"github.com/ggoodman/matchsession-go/provider/memoryprovider"
)

func subscribe(t *testing.T, c *coordinator.Coordinator) <-chan coordinator.Event {
	t.Helper()
	ch := make(chan coordinator.Event, 16)
	t.Cleanup(c.Subscribe(func(ev coordinator.Event) { ch <- ev }))
	return ch
}

func next(t *testing.T, ch <-chan coordinator.Event) coordinator.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func peer(t *testing.T, net *memoryprovider.Network, addr string, player provider.NetID) (*memoryprovider.Provider, *coordinator.Coordinator) {
	t.Helper()
	p := memoryprovider.New(net, memoryprovider.WithHostAddress(addr))
	c := coordinator.New(p, coordinator.WithPlayer(player))
	t.Cleanup(func() {
		_ = c.Close()
		_ = p.Close()
	})
	return p, c
}

func TestHostFindJoin(t *testing.T) {
	net := memoryprovider.NewNetwork()
	_, host := peer(t, net, "10.0.0.1:7777", "host")
	_, client := peer(t, net, "10.0.0.2:7777", "client")
	hostEvents, clientEvents := subscribe(t, host), subscribe(t, client)

	host.CreateSession(4, "FreeForAll")
	if ev := next(t, hostEvents); ev != (coordinator.CreateCompleted{Success: true}) {
		t.Fatalf("unexpected host event %#v", ev)
	}

	client.FindSessions(10000)
	found, ok := next(t, clientEvents).(coordinator.FindCompleted)
	if !ok || !found.Success || len(found.Results) != 1 {
		t.Fatalf("expected one search result, got %#v", found)
	}
	result := found.Results[0]
	if mt, _ := result.Attribute(provider.MatchTypeKey); mt != "FreeForAll" {
		t.Fatalf("expected FreeForAll session, got %q", mt)
	}
	if result.Settings.NumPublicConnections != 4 || !result.Settings.IsLANMatch {
		t.Fatalf("unexpected advertised settings %+v", result.Settings)
	}

	client.JoinSession(result)
	joined, ok := next(t, clientEvents).(coordinator.JoinCompleted)
	if !ok || !joined.Joinable() || joined.Address != "10.0.0.1:7777" {
		t.Fatalf("unexpected join event %#v", joined)
	}
}

func TestRecreateReplacesAdvertisedSession(t *testing.T) {
	net := memoryprovider.NewNetwork()
	hostProvider, host := peer(t, net, "10.0.0.1:7777", "host")
	events := subscribe(t, host)

	host.CreateSession(4, "FreeForAll")
	if ev := next(t, events); ev != (coordinator.CreateCompleted{Success: true}) {
		t.Fatalf("unexpected event %#v", ev)
	}

	host.CreateSession(2, "Team")
	if ev := next(t, events); ev != (coordinator.DestroyCompleted{Success: true}) {
		t.Fatalf("expected destroy before recreate, got %#v", ev)
	}
	if ev := next(t, events); ev != (coordinator.CreateCompleted{Success: true}) {
		t.Fatalf("expected recreate, got %#v", ev)
	}

	named := hostProvider.NamedSession(provider.GameSession)
	if named == nil {
		t.Fatal("expected a named session after recreate")
	}
	if named.Settings.NumPublicConnections != 2 {
		t.Fatalf("expected the new connection count, got %d", named.Settings.NumPublicConnections)
	}
	if mt, _ := named.Settings.Get(provider.MatchTypeKey); mt != "Team" {
		t.Fatalf("expected the new match type, got %q", mt)
	}
	if net.Len() != 1 {
		t.Fatalf("expected exactly one advertised session, got %d", net.Len())
	}
	if host.LiveHooks() != 0 {
		t.Fatalf("expected no live hooks, got %d", host.LiveHooks())
	}
}

func TestStartAfterCreate(t *testing.T) {
	net := memoryprovider.NewNetwork()
	hostProvider, host := peer(t, net, "10.0.0.1:7777", "host")
	events := subscribe(t, host)

	host.StartSession()
	if ev := next(t, events); ev != (coordinator.StartCompleted{Success: false}) {
		t.Fatalf("start without a session must fail, got %#v", ev)
	}

	host.CreateSession(4, "FreeForAll")
	next(t, events)
	host.StartSession()
	if ev := next(t, events); ev != (coordinator.StartCompleted{Success: true}) {
		t.Fatalf("unexpected event %#v", ev)
	}
	if s := hostProvider.NamedSession(provider.GameSession); s.State != provider.StateInProgress {
		t.Fatalf("expected session in progress, got %s", s.State)
	}
}
