package memoryprovider

import (
	"testing"

	"github.com/ggoodman/matchsession-go/provider"
	"github.com/ggoodman/matchsession-go/provider/providertest"
)

func TestMemoryProvider(t *testing.T) {
	factory := func(t *testing.T) func(string) provider.Provider {
		net := NewNetwork()
		return func(addr string) provider.Provider {
			p := New(net, WithHostAddress(addr))
			t.Cleanup(func() { _ = p.Close() })
			return p
		}
	}

	providertest.RunProviderTests(t, factory)
}

func TestFailNext(t *testing.T) {
	net := NewNetwork()
	p := New(net)
	defer p.Close()

	p.FailNext(OpCreate)
	if providertest.Create(t, p, "host", provider.GameSession, providertest.Settings(2, "FreeForAll", true)) {
		t.Fatal("expected injected create failure")
	}
	if p.NamedSession(provider.GameSession) != nil {
		t.Fatal("failed create must not leave a named session")
	}
	if net.Len() != 0 {
		t.Fatalf("failed create advertised %d sessions", net.Len())
	}

	if !providertest.Create(t, p, "host", provider.GameSession, providertest.Settings(2, "FreeForAll", true)) {
		t.Fatal("failure injection must only affect one completion")
	}

	p.FailNext(OpDestroy)
	if providertest.Destroy(t, p, provider.GameSession) {
		t.Fatal("expected injected destroy failure")
	}
	named := p.NamedSession(provider.GameSession)
	if named == nil || named.State != provider.StatePending {
		t.Fatalf("failed destroy must restore the session, got %+v", named)
	}
}

func TestCloseWithdrawsSessions(t *testing.T) {
	net := NewNetwork()
	p := New(net)
	if !providertest.Create(t, p, "host", provider.GameSession, providertest.Settings(2, "FreeForAll", true)) {
		t.Fatal("create reported failure")
	}
	if net.Len() != 1 {
		t.Fatalf("expected 1 advertised session, got %d", net.Len())
	}
	_ = p.Close()
	if net.Len() != 0 {
		t.Fatalf("expected closed provider to withdraw its session, got %d", net.Len())
	}
	if err := p.DestroySession(provider.GameSession); err == nil {
		t.Fatal("expected error after close")
	}
	if err := p.CreateSession("host", provider.GameSession, providertest.Settings(2, "FreeForAll", true)); err != provider.ErrProviderClosed {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestSecondSearchWhilePending(t *testing.T) {
	net := NewNetwork()
	p := New(net)
	defer p.Close()

	// Hold the loop so the first search stays pending.
	block := make(chan struct{})
	_ = p.loop.Post(func() { <-block })
	defer close(block)

	if err := p.FindSessions("client", &provider.Search{MaxResults: 10}); err != nil {
		t.Fatalf("first FindSessions: %v", err)
	}
	if err := p.FindSessions("client", &provider.Search{MaxResults: 10}); err != provider.ErrOperationInProgress {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
}
