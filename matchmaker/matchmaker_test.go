package matchmaker

import (
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/matchsession-go/coordinator"
	"github.com/ggoodman/matchsession-go/matchmaker/mocks"
	"github.com/ggoodman/matchsession-go/provider"
	"github.com/ggoodman/matchsession-go/provider/memoryprovider"
	"go.uber.org/mock/gomock"
)

func result(id, matchType string) provider.SearchResult {
	return provider.SearchResult{
		SessionID: id,
		Settings:  provider.Settings{Attributes: map[string]string{provider.MatchTypeKey: matchType}},
	}
}

// newTestMatchmaker wires a Matchmaker to mocks and returns the observer it
// subscribed with.
func newTestMatchmaker(t *testing.T, cfg Config, opts ...Option) (*Matchmaker, *mocks.MockSessions, *mocks.MockTraveler, coordinator.Observer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessions(ctrl)
	traveler := mocks.NewMockTraveler(ctrl)

	var observer coordinator.Observer
	sessions.EXPECT().Subscribe(gomock.Any()).DoAndReturn(func(fn coordinator.Observer) func() {
		observer = fn
		return func() {}
	})

	m := New(sessions, traveler, cfg, opts...)
	return m, sessions, traveler, observer
}

func TestDefaults(t *testing.T) {
	m, _, _, _ := newTestMatchmaker(t, Config{})
	if got := m.Config(); got != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MATCHMAKER_NUM_CONNECTIONS", "8")
	t.Setenv("MATCHMAKER_MATCH_TYPE", "Teams")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	want := DefaultConfig()
	want.NumPublicConnections = 8
	want.MatchType = "Teams"
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestHostTravelsToLobby(t *testing.T) {
	var statuses []string
	m, sessions, traveler, observe := newTestMatchmaker(t, Config{}, WithStatus(func(msg string, ok bool) {
		statuses = append(statuses, msg)
	}))

	sessions.EXPECT().CreateSession(4, "FreeForAll")
	m.Host()

	traveler.EXPECT().ServerTravel("/Game/ThirdPerson/Maps/Lobby?listen").Return(nil)
	observe(coordinator.CreateCompleted{Success: true})

	if len(statuses) != 1 || statuses[0] != "Session Created" {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestHostFailureDoesNotTravel(t *testing.T) {
	var failed bool
	_, _, _, observe := newTestMatchmaker(t, Config{}, WithStatus(func(msg string, ok bool) {
		failed = !ok
	}))

	observe(coordinator.CreateCompleted{Success: false})
	if !failed {
		t.Fatal("expected a failure status")
	}
}

func TestServerTravelError(t *testing.T) {
	var got string
	_, _, traveler, observe := newTestMatchmaker(t, Config{LobbyPath: "/Maps/Arena"}, WithStatus(func(msg string, ok bool) {
		got = msg
	}))

	traveler.EXPECT().ServerTravel("/Maps/Arena?listen").Return(errors.New("no world"))
	observe(coordinator.CreateCompleted{Success: true})
	if got != "Failed to open lobby" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestJoinSelectsFirstMatchingSession(t *testing.T) {
	m, sessions, traveler, observe := newTestMatchmaker(t, Config{MatchType: "Teams"})

	sessions.EXPECT().FindSessions(10000)
	m.Join()

	sessions.EXPECT().JoinSession(result("b", "Teams"))
	observe(coordinator.FindCompleted{
		Results: []provider.SearchResult{result("a", "FreeForAll"), result("b", "Teams"), result("c", "Teams")},
		Success: true,
	})

	traveler.EXPECT().ClientTravel("10.0.0.1:7777").Return(nil)
	observe(coordinator.JoinCompleted{Result: provider.JoinSuccess, Address: "10.0.0.1:7777"})
}

func TestJoinWithoutMatchingSession(t *testing.T) {
	var got string
	_, _, _, observe := newTestMatchmaker(t, Config{}, WithStatus(func(msg string, ok bool) {
		got = msg
	}))

	// No JoinSession expectation: gomock fails the test on an unexpected call.
	observe(coordinator.FindCompleted{
		Results: []provider.SearchResult{result("a", "Teams"), result("b", "Duel"), result("c", "Teams")},
		Success: true,
	})
	if got != "No FreeForAll session found" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestFailedFindDoesNotJoin(t *testing.T) {
	var got string
	_, _, _, observe := newTestMatchmaker(t, Config{}, WithStatus(func(msg string, ok bool) {
		got = msg
	}))

	observe(coordinator.FindCompleted{Results: []provider.SearchResult{}, Success: false})
	if got != "Failed to find sessions" {
		t.Fatalf("unexpected status %q", got)
	}
	observe(coordinator.FindCompleted{Results: []provider.SearchResult{result("a", "FreeForAll")}, Success: false})
}

func TestJoinWithoutAddressDoesNotTravel(t *testing.T) {
	var got string
	_, _, _, observe := newTestMatchmaker(t, Config{}, WithStatus(func(msg string, ok bool) {
		got = msg
	}))

	observe(coordinator.JoinCompleted{Result: provider.JoinSuccess, Address: ""})
	if got != "Failed to join session" {
		t.Fatalf("unexpected status %q", got)
	}
	observe(coordinator.JoinCompleted{Result: provider.JoinSessionIsFull, Address: "10.0.0.1:7777"})
}

func TestCloseUnsubscribes(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessions(ctrl)
	traveler := mocks.NewMockTraveler(ctrl)

	unsubscribed := 0
	sessions.EXPECT().Subscribe(gomock.Any()).Return(func() { unsubscribed++ })

	m := New(sessions, traveler, Config{})
	m.Close()
	m.Close()
	if unsubscribed != 1 {
		t.Fatalf("expected one unsubscribe, got %d", unsubscribed)
	}
}

func TestSelectMatch(t *testing.T) {
	results := []provider.SearchResult{result("a", "Duel"), {SessionID: "b"}, result("c", "FreeForAll")}

	got, ok := SelectMatch(results, "FreeForAll")
	if !ok || got.SessionID != "c" {
		t.Fatalf("expected session c, got %+v (ok=%v)", got, ok)
	}
	if _, ok := SelectMatch(results, "Teams"); ok {
		t.Fatal("expected no match")
	}
	if _, ok := SelectMatch(nil, "Teams"); ok {
		t.Fatal("expected no match in empty results")
	}
}

// travelRecorder is a Traveler reporting travel on channels.
type travelRecorder struct {
	server chan string
	client chan string
}

func (r *travelRecorder) ServerTravel(url string) error     { r.server <- url; return nil }
func (r *travelRecorder) ClientTravel(address string) error { r.client <- address; return nil }

func newTravelRecorder() *travelRecorder {
	return &travelRecorder{server: make(chan string, 1), client: make(chan string, 1)}
}

func awaitTravel(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for travel")
	}
	return ""
}

func TestHostAndJoinOverMemoryProvider(t *testing.T) {
	net := memoryprovider.NewNetwork()

	hostProvider := memoryprovider.New(net, memoryprovider.WithHostAddress("10.0.0.1:7777"))
	defer hostProvider.Close()
	hostSessions := coordinator.New(hostProvider, coordinator.WithPlayer("host"))
	defer hostSessions.Close()
	hostTravel := newTravelRecorder()
	host := New(hostSessions, hostTravel, Config{})
	defer host.Close()

	clientProvider := memoryprovider.New(net, memoryprovider.WithHostAddress("10.0.0.2:7777"))
	defer clientProvider.Close()
	clientSessions := coordinator.New(clientProvider, coordinator.WithPlayer("client"))
	defer clientSessions.Close()
	clientTravel := newTravelRecorder()
	client := New(clientSessions, clientTravel, Config{})
	defer client.Close()

	host.Host()
	if url := awaitTravel(t, hostTravel.server); url != "/Game/ThirdPerson/Maps/Lobby?listen" {
		t.Fatalf("unexpected lobby url %q", url)
	}

	client.Join()
	if addr := awaitTravel(t, clientTravel.client); addr != "10.0.0.1:7777" {
		t.Fatalf("unexpected travel address %q", addr)
	}
}
