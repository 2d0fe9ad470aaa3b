package coordinator

import (
	"sync"

	"github.com/ggoodman/matchsession-go/provider"
)

// fakeProvider accepts every request and completes nothing on its own; tests
// deliver completions with the embedded Trigger* methods.
type fakeProvider struct {
	provider.Delegates

	name string

	mu       sync.Mutex
	named    *provider.NamedSession
	connect  string
	creates  []provider.Settings
	finds    []*provider.Search
	joins    []provider.SearchResult
	destroys int
	starts   int
	players  []provider.NetID
	err      map[Kind]error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, err: make(map[Kind]error)}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) NamedSession(name provider.Name) *provider.NamedSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.named == nil {
		return nil
	}
	s := *f.named
	return &s
}

func (f *fakeProvider) setNamed(s *provider.NamedSession) {
	f.mu.Lock()
	f.named = s
	f.mu.Unlock()
}

func (f *fakeProvider) CreateSession(player provider.NetID, name provider.Name, settings provider.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, settings)
	f.players = append(f.players, player)
	return f.err[KindCreate]
}

func (f *fakeProvider) FindSessions(player provider.NetID, search *provider.Search) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, search)
	f.players = append(f.players, player)
	return f.err[KindFind]
}

func (f *fakeProvider) JoinSession(player provider.NetID, name provider.Name, result provider.SearchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, result)
	f.players = append(f.players, player)
	return f.err[KindJoin]
}

func (f *fakeProvider) DestroySession(name provider.Name) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	return f.err[KindDestroy]
}

func (f *fakeProvider) StartSession(name provider.Name) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.err[KindStart]
}

func (f *fakeProvider) ResolvedConnectString(name provider.Name) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connect, f.connect != ""
}

func (f *fakeProvider) fail(kind Kind, err error) {
	f.mu.Lock()
	f.err[kind] = err
	f.mu.Unlock()
}

func (f *fakeProvider) lastSearch() *provider.Search {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finds) == 0 {
		return nil
	}
	return f.finds[len(f.finds)-1]
}

func (f *fakeProvider) counts() (creates, finds, joins, destroys, starts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.finds), len(f.joins), f.destroys, f.starts
}

var _ provider.Provider = (*fakeProvider)(nil)

// recorder collects emitted events in order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(c *Coordinator) *recorder {
	r := &recorder{}
	c.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
