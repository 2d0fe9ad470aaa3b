// Package providertest holds a conformance suite every provider.Provider
// implementation is expected to pass.
package providertest

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/provider"
)

// Timeout bounds every wait for a completion.
var Timeout = 5 * time.Second

// PeerFactory returns a constructor for providers that share one backend.
// Every provider represents a different machine advertising hostAddr as its
// connect string. Implementations should register cleanup with t.
type PeerFactory func(t *testing.T) func(hostAddr string) provider.Provider

// RunProviderTests runs the complete provider suite against factory.
func RunProviderTests(t *testing.T, factory PeerFactory) {
	t.Run("CreateAdvertisesSession", func(t *testing.T) {
		testCreateAdvertisesSession(t, factory)
	})
	t.Run("CreateRejectsExistingName", func(t *testing.T) {
		testCreateRejectsExistingName(t, factory)
	})
	t.Run("IssueValidation", func(t *testing.T) {
		testIssueValidation(t, factory)
	})
	t.Run("FindWithNoSessions", func(t *testing.T) {
		testFindWithNoSessions(t, factory)
	})
	t.Run("FindFiltersLANAndPresence", func(t *testing.T) {
		testFindFiltersLANAndPresence(t, factory)
	})
	t.Run("FindPreservesOrderAndLimit", func(t *testing.T) {
		testFindPreservesOrderAndLimit(t, factory)
	})
	t.Run("JoinResolvesHostAddress", func(t *testing.T) {
		testJoinResolvesHostAddress(t, factory)
	})
	t.Run("JoinFullSession", func(t *testing.T) {
		testJoinFullSession(t, factory)
	})
	t.Run("JoinDestroyedSession", func(t *testing.T) {
		testJoinDestroyedSession(t, factory)
	})
	t.Run("JoinTwice", func(t *testing.T) {
		testJoinTwice(t, factory)
	})
	t.Run("DestroyReleasesSlot", func(t *testing.T) {
		testDestroyReleasesSlot(t, factory)
	})
	t.Run("StartSession", func(t *testing.T) {
		testStartSession(t, factory)
	})
	t.Run("ClearedHookIsNotInvoked", func(t *testing.T) {
		testClearedHookIsNotInvoked(t, factory)
	})
}

// Settings returns advertised settings the way a coordinator builds them.
func Settings(numConnections int, matchType string, lan bool) provider.Settings {
	return provider.Settings{
		NumPublicConnections:  numConnections,
		IsLANMatch:            lan,
		AllowJoinInProgress:   true,
		AllowJoinViaPresence:  true,
		ShouldAdvertise:       true,
		UsesPresence:          true,
		UseLobbiesIfAvailable: true,
		BuildUniqueID:         1,
		Attributes:            map[string]string{provider.MatchTypeKey: matchType},
	}
}

func isLAN(p provider.Provider) bool {
	return p.Name() == provider.NullSubsystem
}

func await[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Timeout):
		t.Fatalf("timed out waiting for %s completion", what)
	}
	var zero T
	return zero
}

// Create issues a create and waits for its completion.
func Create(t *testing.T, p provider.Provider, player provider.NetID, name provider.Name, settings provider.Settings) bool {
	t.Helper()
	ch := make(chan bool, 1)
	h := p.AddOnCreateSessionComplete(func(_ provider.Name, ok bool) { ch <- ok })
	defer p.ClearOnCreateSessionComplete(h)
	if err := p.CreateSession(player, name, settings); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return await(t, ch, "create")
}

// Find issues a presence search and waits for its completion.
func Find(t *testing.T, p provider.Provider, player provider.NetID, maxResults int) ([]provider.SearchResult, bool) {
	t.Helper()
	ch := make(chan bool, 1)
	h := p.AddOnFindSessionsComplete(func(ok bool) { ch <- ok })
	defer p.ClearOnFindSessionsComplete(h)
	search := &provider.Search{MaxResults: maxResults, IsLANQuery: isLAN(p), PresenceOnly: true}
	if err := p.FindSessions(player, search); err != nil {
		t.Fatalf("FindSessions: %v", err)
	}
	ok := await(t, ch, "find")
	return search.Results(), ok
}

// Join issues a join and waits for its completion.
func Join(t *testing.T, p provider.Provider, player provider.NetID, name provider.Name, result provider.SearchResult) provider.JoinResult {
	t.Helper()
	ch := make(chan provider.JoinResult, 1)
	h := p.AddOnJoinSessionComplete(func(_ provider.Name, r provider.JoinResult) { ch <- r })
	defer p.ClearOnJoinSessionComplete(h)
	if err := p.JoinSession(player, name, result); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	return await(t, ch, "join")
}

// Destroy issues a destroy and waits for its completion.
func Destroy(t *testing.T, p provider.Provider, name provider.Name) bool {
	t.Helper()
	ch := make(chan bool, 1)
	h := p.AddOnDestroySessionComplete(func(_ provider.Name, ok bool) { ch <- ok })
	defer p.ClearOnDestroySessionComplete(h)
	if err := p.DestroySession(name); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	return await(t, ch, "destroy")
}

func hostAndFind(t *testing.T, newPeer func(string) provider.Provider, numConnections int) (host, client provider.Provider, result provider.SearchResult) {
	t.Helper()
	host = newPeer("10.0.0.1:7777")
	client = newPeer("10.0.0.2:7777")
	if !Create(t, host, "host", provider.GameSession, Settings(numConnections, "FreeForAll", isLAN(host))) {
		t.Fatal("create reported failure")
	}
	results, ok := Find(t, client, "client", 10)
	if !ok || len(results) != 1 {
		t.Fatalf("expected exactly one search result, got %d (ok=%v)", len(results), ok)
	}
	return host, client, results[0]
}

func testCreateAdvertisesSession(t *testing.T, factory PeerFactory) {
	newPeer := factory(t)
	host, _, result := hostAndFind(t, newPeer, 4)

	named := host.NamedSession(provider.GameSession)
	if named == nil {
		t.Fatal("expected host to hold the named session")
	}
	if !named.Hosting || named.SessionID == "" || named.State != provider.StatePending {
		t.Fatalf("unexpected named session: %+v", named)
	}
	if result.SessionID != named.SessionID {
		t.Fatalf("search returned %s, host created %s", result.SessionID, named.SessionID)
	}
	if mt, _ := result.Attribute(provider.MatchTypeKey); mt != "FreeForAll" {
		t.Fatalf("expected MatchType FreeForAll, got %q", mt)
	}
	if result.OpenPublicConnections != 4 || result.Settings.NumPublicConnections != 4 {
		t.Fatalf("unexpected connection counts: %+v", result)
	}
	if addr, ok := host.ResolvedConnectString(provider.GameSession); !ok || addr != "10.0.0.1:7777" {
		t.Fatalf("host connect string = %q (ok=%v)", addr, ok)
	}
}

func testCreateRejectsExistingName(t *testing.T, factory PeerFactory) {
	p := factory(t)("10.0.0.1:7777")
	if !Create(t, p, "host", provider.GameSession, Settings(2, "FreeForAll", isLAN(p))) {
		t.Fatal("create reported failure")
	}
	err := p.CreateSession("host", provider.GameSession, Settings(2, "FreeForAll", isLAN(p)))
	if !errors.Is(err, provider.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func testIssueValidation(t *testing.T, factory PeerFactory) {
	p := factory(t)("10.0.0.1:7777")

	if err := p.CreateSession("", provider.GameSession, Settings(2, "x", isLAN(p))); !errors.Is(err, provider.ErrNoLocalPlayer) {
		t.Fatalf("create without player: expected ErrNoLocalPlayer, got %v", err)
	}
	if err := p.CreateSession("host", provider.GameSession, Settings(0, "x", isLAN(p))); !errors.Is(err, provider.ErrInvalidSettings) {
		t.Fatalf("create with zero connections: expected ErrInvalidSettings, got %v", err)
	}
	if err := p.FindSessions("", &provider.Search{MaxResults: 1}); !errors.Is(err, provider.ErrNoLocalPlayer) {
		t.Fatalf("find without player: expected ErrNoLocalPlayer, got %v", err)
	}
	if err := p.JoinSession("client", provider.GameSession, provider.SearchResult{}); !errors.Is(err, provider.ErrInvalidSearchResult) {
		t.Fatalf("join empty result: expected ErrInvalidSearchResult, got %v", err)
	}
	if err := p.DestroySession(provider.GameSession); !errors.Is(err, provider.ErrSessionNotFound) {
		t.Fatalf("destroy missing: expected ErrSessionNotFound, got %v", err)
	}
	if err := p.StartSession(provider.GameSession); !errors.Is(err, provider.ErrSessionNotFound) {
		t.Fatalf("start missing: expected ErrSessionNotFound, got %v", err)
	}
	if p.NamedSession(provider.GameSession) != nil {
		t.Fatal("rejected requests must not leave a named session behind")
	}
}

func testFindWithNoSessions(t *testing.T, factory PeerFactory) {
	p := factory(t)("10.0.0.2:7777")
	results, ok := Find(t, p, "client", 10)
	if !ok {
		t.Fatal("an empty search is not a provider failure")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func testFindFiltersLANAndPresence(t *testing.T, factory PeerFactory) {
	newPeer := factory(t)
	host := newPeer("10.0.0.1:7777")
	client := newPeer("10.0.0.2:7777")

	hidden := Settings(2, "FreeForAll", isLAN(host))
	hidden.UsesPresence = false
	if !Create(t, host, "host", "NoPresence", hidden) {
		t.Fatal("create reported failure")
	}
	wrongMode := Settings(2, "FreeForAll", !isLAN(host))
	if !Create(t, host, "host", "OtherMode", wrongMode) {
		t.Fatal("create reported failure")
	}
	private := Settings(2, "FreeForAll", isLAN(host))
	private.ShouldAdvertise = false
	if !Create(t, host, "host", "Private", private) {
		t.Fatal("create reported failure")
	}

	results, ok := Find(t, client, "client", 10)
	if !ok {
		t.Fatal("find reported failure")
	}
	if len(results) != 0 {
		t.Fatalf("expected every session to be filtered out, got %+v", results)
	}
}

func testFindPreservesOrderAndLimit(t *testing.T, factory PeerFactory) {
	newPeer := factory(t)
	client := newPeer("10.0.0.9:7777")

	var ids []string
	for i, mt := range []string{"A", "B", "C"} {
		host := newPeer(fmt.Sprintf("10.0.0.%d:7777", i+1))
		player := provider.NetID("host-" + mt)
		if !Create(t, host, player, provider.GameSession, Settings(2, mt, isLAN(host))) {
			t.Fatal("create reported failure")
		}
		ids = append(ids, host.NamedSession(provider.GameSession).SessionID)
	}

	results, ok := Find(t, client, "client", 10)
	if !ok || len(results) != 3 {
		t.Fatalf("expected 3 results, got %d (ok=%v)", len(results), ok)
	}
	for i, r := range results {
		if r.SessionID != ids[i] {
			t.Fatalf("result %d: expected %s, got %s", i, ids[i], r.SessionID)
		}
	}

	limited, ok := Find(t, client, "client", 2)
	if !ok || len(limited) != 2 {
		t.Fatalf("expected 2 results, got %d (ok=%v)", len(limited), ok)
	}
	if limited[0].SessionID != ids[0] || limited[1].SessionID != ids[1] {
		t.Fatal("limited search must keep the first results in order")
	}
}

func testJoinResolvesHostAddress(t *testing.T, factory PeerFactory) {
	_, client, result := hostAndFind(t, factory(t), 4)

	if res := Join(t, client, "client", provider.GameSession, result); res != provider.JoinSuccess {
		t.Fatalf("expected Success, got %s", res)
	}
	addr, ok := client.ResolvedConnectString(provider.GameSession)
	if !ok || addr != "10.0.0.1:7777" {
		t.Fatalf("client connect string = %q (ok=%v)", addr, ok)
	}
	named := client.NamedSession(provider.GameSession)
	if named == nil || named.Hosting || named.SessionID != result.SessionID {
		t.Fatalf("unexpected client named session: %+v", named)
	}
}

func testJoinFullSession(t *testing.T, factory PeerFactory) {
	newPeer := factory(t)
	_, first, result := hostAndFind(t, newPeer, 1)
	second := newPeer("10.0.0.3:7777")

	if res := Join(t, first, "first", provider.GameSession, result); res != provider.JoinSuccess {
		t.Fatalf("first join: expected Success, got %s", res)
	}
	if res := Join(t, second, "second", provider.GameSession, result); res != provider.JoinSessionIsFull {
		t.Fatalf("second join: expected SessionIsFull, got %s", res)
	}
	if second.NamedSession(provider.GameSession) != nil {
		t.Fatal("failed join must not leave a named session behind")
	}
	if _, ok := second.ResolvedConnectString(provider.GameSession); ok {
		t.Fatal("failed join must not resolve a connect string")
	}
}

func testJoinDestroyedSession(t *testing.T, factory PeerFactory) {
	host, client, result := hostAndFind(t, factory(t), 4)
	if !Destroy(t, host, provider.GameSession) {
		t.Fatal("destroy reported failure")
	}
	if host.NamedSession(provider.GameSession) != nil {
		t.Fatal("destroyed session still present on host")
	}
	if res := Join(t, client, "client", provider.GameSession, result); res != provider.JoinSessionDoesNotExist {
		t.Fatalf("expected SessionDoesNotExist, got %s", res)
	}
}

func testJoinTwice(t *testing.T, factory PeerFactory) {
	_, client, result := hostAndFind(t, factory(t), 4)
	if res := Join(t, client, "client", provider.GameSession, result); res != provider.JoinSuccess {
		t.Fatalf("first join: expected Success, got %s", res)
	}
	if res := Join(t, client, "client", provider.GameSession, result); res != provider.JoinAlreadyInSession {
		t.Fatalf("second join: expected AlreadyInSession, got %s", res)
	}
	if client.NamedSession(provider.GameSession) == nil {
		t.Fatal("rejected second join must keep the first session")
	}
}

func testDestroyReleasesSlot(t *testing.T, factory PeerFactory) {
	newPeer := factory(t)
	_, first, result := hostAndFind(t, newPeer, 1)
	second := newPeer("10.0.0.3:7777")

	if res := Join(t, first, "first", provider.GameSession, result); res != provider.JoinSuccess {
		t.Fatalf("first join: expected Success, got %s", res)
	}
	if !Destroy(t, first, provider.GameSession) {
		t.Fatal("client destroy reported failure")
	}
	if res := Join(t, second, "second", provider.GameSession, result); res != provider.JoinSuccess {
		t.Fatalf("join after leave: expected Success, got %s", res)
	}
}

func testStartSession(t *testing.T, factory PeerFactory) {
	p := factory(t)("10.0.0.1:7777")
	if !Create(t, p, "host", provider.GameSession, Settings(2, "FreeForAll", isLAN(p))) {
		t.Fatal("create reported failure")
	}

	ch := make(chan bool, 1)
	h := p.AddOnStartSessionComplete(func(_ provider.Name, ok bool) { ch <- ok })
	defer p.ClearOnStartSessionComplete(h)
	if err := p.StartSession(provider.GameSession); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !await(t, ch, "start") {
		t.Fatal("start reported failure")
	}
	if named := p.NamedSession(provider.GameSession); named == nil || named.State != provider.StateInProgress {
		t.Fatalf("expected InProgress, got %+v", named)
	}
}

func testClearedHookIsNotInvoked(t *testing.T, factory PeerFactory) {
	p := factory(t)("10.0.0.1:7777")

	cleared := make(chan bool, 1)
	kept := make(chan bool, 1)
	h1 := p.AddOnCreateSessionComplete(func(_ provider.Name, ok bool) { cleared <- ok })
	h2 := p.AddOnCreateSessionComplete(func(_ provider.Name, ok bool) { kept <- ok })
	if h1 == h2 || !h1.Valid() || !h2.Valid() {
		t.Fatalf("expected distinct valid handles, got %d and %d", h1, h2)
	}
	p.ClearOnCreateSessionComplete(h1)
	defer p.ClearOnCreateSessionComplete(h2)

	if err := p.CreateSession("host", provider.GameSession, Settings(2, "FreeForAll", isLAN(p))); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !await(t, kept, "create") {
		t.Fatal("create reported failure")
	}
	select {
	case <-cleared:
		t.Fatal("cleared hook was invoked")
	case <-time.After(50 * time.Millisecond):
	}
}
