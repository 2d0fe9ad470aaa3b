package coordinator

import (
	"log/slog"
	"sync"

	"github.com/ggoodman/matchsession-go/provider"
)

// DefaultBuildID is advertised with every created session unless WithBuildID
// overrides it.
const DefaultBuildID = 1

// LocalPlayerFunc reports the identity of the player issuing requests.
type LocalPlayerFunc func() (provider.NetID, bool)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSessionName selects the session slot the coordinator manages. The
// default is provider.GameSession.
func WithSessionName(name provider.Name) Option {
	return func(c *Coordinator) { c.name = name }
}

// WithLocalPlayer sets how the coordinator finds the local player. Requests
// issued while it reports no player fail like any synchronous rejection.
func WithLocalPlayer(fn LocalPlayerFunc) Option {
	return func(c *Coordinator) { c.localPlayer = fn }
}

// WithPlayer is WithLocalPlayer for a fixed identity.
func WithPlayer(id provider.NetID) Option {
	return WithLocalPlayer(func() (provider.NetID, bool) { return id, id != "" })
}

// WithBuildID sets the build id advertised with created sessions.
func WithBuildID(id int) Option {
	return func(c *Coordinator) { c.buildID = id }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// pendingRecreate records a create that waits for the current session to be
// destroyed.
type pendingRecreate struct {
	armed          bool
	numConnections int
	matchType      string
}

// hooks holds the live completion registration of each kind. A zero handle
// means no request of that kind is outstanding.
type hooks struct {
	create  provider.Handle
	find    provider.Handle
	join    provider.Handle
	destroy provider.Handle
	start   provider.Handle
}

func (h hooks) live() int {
	n := 0
	for _, x := range []provider.Handle{h.create, h.find, h.join, h.destroy, h.start} {
		if x.Valid() {
			n++
		}
	}
	return n
}

type observerEntry struct {
	id uint64
	fn Observer
}

// Coordinator orchestrates one session slot against a provider.Provider and
// reports every request's outcome as exactly one Event.
//
// Requests never block. Events for requests rejected up front are emitted
// before the method returns; all others are emitted from the provider's
// completion goroutine. Observers run without any coordinator lock held and
// may call back into the coordinator.
type Coordinator struct {
	provider    provider.Provider
	name        provider.Name
	localPlayer LocalPlayerFunc
	buildID     int
	log         *slog.Logger

	mu         sync.Mutex
	closed     bool
	hooks      hooks
	lastSearch *provider.Search
	pending    pendingRecreate

	obsMu     sync.RWMutex
	observers []observerEntry
	nextObs   uint64
}

// New creates a coordinator for p. The caller keeps ownership of p. A nil p
// yields a coordinator whose every request fails as "provider unavailable".
func New(p provider.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider:    p,
		name:        provider.GameSession,
		localPlayer: func() (provider.NetID, bool) { return "", false },
		buildID:     DefaultBuildID,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("session", string(c.name)))
	return c
}

// SessionName returns the managed session slot.
func (c *Coordinator) SessionName() provider.Name { return c.name }

// Subscribe registers fn for every future event. Observers are called in
// registration order; past events are not replayed.
func (c *Coordinator) Subscribe(fn Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close detaches the coordinator: live hooks are cleared, pending work is
// forgotten and observers are dropped. It does not destroy the session; do
// that first if the session should not outlive the coordinator. Requests made
// after Close fail as if no provider were available.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if p := c.provider; p != nil {
		clearHandle(&c.hooks.create, p.ClearOnCreateSessionComplete)
		clearHandle(&c.hooks.find, p.ClearOnFindSessionsComplete)
		clearHandle(&c.hooks.join, p.ClearOnJoinSessionComplete)
		clearHandle(&c.hooks.destroy, p.ClearOnDestroySessionComplete)
		clearHandle(&c.hooks.start, p.ClearOnStartSessionComplete)
	}
	c.pending = pendingRecreate{}
	c.lastSearch = nil
	c.mu.Unlock()

	c.obsMu.Lock()
	c.observers = nil
	c.obsMu.Unlock()
	return nil
}

// LiveHooks reports how many completion hooks the coordinator has registered
// with its provider. It never exceeds one per operation kind.
func (c *Coordinator) LiveHooks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hooks.live()
}

// RecreatePending reports whether a create is waiting for a destroy to finish.
func (c *Coordinator) RecreatePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.armed
}

// CreateSession hosts a session advertising matchType for up to
// numConnections players and eventually emits CreateCompleted. If the slot
// is already in use, the existing session is destroyed first and the create
// is issued once that destroy succeeds; the newest arguments win when this
// is requested repeatedly.
func (c *Coordinator) CreateSession(numConnections int, matchType string) {
	c.createSession(numConnections, matchType, true)
}

func (c *Coordinator) createSession(numConnections int, matchType string, allowRecreate bool) {
	p := c.backend()
	if p == nil {
		c.log.Error("coordinator: session provider unavailable", slog.String("op", string(KindCreate)))
		c.emit(CreateCompleted{Success: false})
		return
	}
	if numConnections <= 0 {
		c.log.Error("coordinator: rejecting create", slog.Int("num_connections", numConnections))
		c.emit(CreateCompleted{Success: false})
		return
	}

	if existing := p.NamedSession(c.name); existing != nil {
		if !allowRecreate {
			c.log.Warn("coordinator: session reappeared before recreate, giving up",
				slog.String("state", existing.State.String()))
			c.emit(CreateCompleted{Success: false})
			return
		}

		c.mu.Lock()
		inFlight := c.hooks.destroy.Valid()
		c.pending = pendingRecreate{armed: true, numConnections: numConnections, matchType: matchType}
		c.mu.Unlock()

		c.log.Info("coordinator: session exists, destroying before create",
			slog.Int("num_connections", numConnections),
			slog.String("match_type", matchType),
			slog.Bool("destroy_in_flight", inFlight),
		)
		if !inFlight {
			c.destroySession(p)
		}
		return
	}

	settings := c.newSettings(p, numConnections, matchType)

	c.mu.Lock()
	c.supersede(KindCreate, &c.hooks.create, p.ClearOnCreateSessionComplete)
	c.hooks.create = p.AddOnCreateSessionComplete(c.onCreateComplete)
	c.mu.Unlock()

	player, ok := c.localPlayer()
	if !ok {
		c.failCreate(p, provider.ErrNoLocalPlayer)
		return
	}
	if err := p.CreateSession(player, c.name, settings); err != nil {
		c.failCreate(p, err)
	}
}

func (c *Coordinator) failCreate(p provider.Provider, err error) {
	c.take(&c.hooks.create, p.ClearOnCreateSessionComplete)
	c.log.Warn("coordinator: create rejected", slog.String("err", err.Error()))
	c.emit(CreateCompleted{Success: false})
}

func (c *Coordinator) onCreateComplete(name provider.Name, ok bool) {
	if name != c.name {
		return
	}
	if !c.take(&c.hooks.create, c.provider.ClearOnCreateSessionComplete) {
		c.log.Debug("coordinator: dropping stale completion", slog.String("op", string(KindCreate)))
		return
	}
	c.log.Info("coordinator: create completed", slog.Bool("success", ok))
	c.emit(CreateCompleted{Success: ok})
}

// FindSessions searches for presence-advertised sessions, up to maxResults,
// and eventually emits FindCompleted with the results in provider order.
// Filtering by match type is left to the caller.
func (c *Coordinator) FindSessions(maxResults int) {
	p := c.backend()
	if p == nil {
		c.log.Error("coordinator: session provider unavailable", slog.String("op", string(KindFind)))
		c.emit(FindCompleted{Results: []provider.SearchResult{}, Success: false})
		return
	}
	if maxResults <= 0 {
		c.log.Error("coordinator: rejecting find", slog.Int("max_results", maxResults))
		c.emit(FindCompleted{Results: []provider.SearchResult{}, Success: false})
		return
	}

	search := &provider.Search{
		MaxResults:   maxResults,
		IsLANQuery:   isLAN(p),
		PresenceOnly: true,
	}

	c.mu.Lock()
	c.supersede(KindFind, &c.hooks.find, p.ClearOnFindSessionsComplete)
	c.hooks.find = p.AddOnFindSessionsComplete(c.onFindComplete)
	c.lastSearch = search
	c.mu.Unlock()

	player, ok := c.localPlayer()
	if !ok {
		c.failFind(p, provider.ErrNoLocalPlayer)
		return
	}
	if err := p.FindSessions(player, search); err != nil {
		c.failFind(p, err)
	}
}

func (c *Coordinator) failFind(p provider.Provider, err error) {
	c.take(&c.hooks.find, p.ClearOnFindSessionsComplete)
	c.log.Warn("coordinator: find rejected", slog.String("err", err.Error()))
	c.emit(FindCompleted{Results: []provider.SearchResult{}, Success: false})
}

func (c *Coordinator) onFindComplete(ok bool) {
	c.mu.Lock()
	if !c.hooks.find.Valid() {
		c.mu.Unlock()
		c.log.Debug("coordinator: dropping stale completion", slog.String("op", string(KindFind)))
		return
	}
	clearHandle(&c.hooks.find, c.provider.ClearOnFindSessionsComplete)
	search := c.lastSearch
	c.mu.Unlock()

	var results []provider.SearchResult
	if search != nil {
		results = search.Results()
	}
	c.log.Info("coordinator: find completed", slog.Bool("success", ok), slog.Int("results", len(results)))
	if len(results) == 0 {
		c.emit(FindCompleted{Results: []provider.SearchResult{}, Success: false})
		return
	}
	c.emit(FindCompleted{Results: results, Success: ok})
}

// JoinSession joins a session returned by FindSessions and eventually emits
// JoinCompleted with the address to travel to.
func (c *Coordinator) JoinSession(result provider.SearchResult) {
	p := c.backend()
	if p == nil {
		c.log.Error("coordinator: session provider unavailable", slog.String("op", string(KindJoin)))
		c.emit(JoinCompleted{Result: provider.JoinUnknownError})
		return
	}

	c.mu.Lock()
	c.supersede(KindJoin, &c.hooks.join, p.ClearOnJoinSessionComplete)
	c.hooks.join = p.AddOnJoinSessionComplete(c.onJoinComplete)
	c.mu.Unlock()

	player, ok := c.localPlayer()
	if !ok {
		c.failJoin(p, provider.ErrNoLocalPlayer)
		return
	}
	if err := p.JoinSession(player, c.name, result); err != nil {
		c.failJoin(p, err)
	}
}

func (c *Coordinator) failJoin(p provider.Provider, err error) {
	c.take(&c.hooks.join, p.ClearOnJoinSessionComplete)
	c.log.Warn("coordinator: join rejected", slog.String("err", err.Error()))
	c.emit(JoinCompleted{Result: provider.JoinUnknownError})
}

func (c *Coordinator) onJoinComplete(name provider.Name, result provider.JoinResult) {
	if name != c.name {
		return
	}
	if !c.take(&c.hooks.join, c.provider.ClearOnJoinSessionComplete) {
		c.log.Debug("coordinator: dropping stale completion", slog.String("op", string(KindJoin)))
		return
	}

	addr, ok := c.provider.ResolvedConnectString(c.name)
	if !ok {
		addr = ""
		if result == provider.JoinSuccess {
			c.log.Warn("coordinator: joined session has no connect address")
		}
	}
	c.log.Info("coordinator: join completed", slog.String("result", result.String()), slog.String("address", addr))
	c.emit(JoinCompleted{Result: result, Address: addr})
}

// DestroySession tears down the managed session and eventually emits
// DestroyCompleted. A create waiting on a destroy is abandoned.
func (c *Coordinator) DestroySession() {
	c.mu.Lock()
	c.pending = pendingRecreate{}
	inFlight := c.hooks.destroy.Valid()
	c.mu.Unlock()

	p := c.backend()
	if p == nil {
		c.log.Error("coordinator: session provider unavailable", slog.String("op", string(KindDestroy)))
		c.emit(DestroyCompleted{Success: false})
		return
	}
	if inFlight {
		// The outstanding destroy reports for this request too.
		c.log.Info("coordinator: destroy already in flight")
		return
	}
	c.destroySession(p)
}

func (c *Coordinator) destroySession(p provider.Provider) {
	c.mu.Lock()
	c.hooks.destroy = p.AddOnDestroySessionComplete(c.onDestroyComplete)
	c.mu.Unlock()

	if err := p.DestroySession(c.name); err != nil {
		c.mu.Lock()
		clearHandle(&c.hooks.destroy, p.ClearOnDestroySessionComplete)
		c.pending = pendingRecreate{}
		c.mu.Unlock()

		c.log.Warn("coordinator: destroy rejected", slog.String("err", err.Error()))
		c.emit(DestroyCompleted{Success: false})
	}
}

func (c *Coordinator) onDestroyComplete(name provider.Name, ok bool) {
	if name != c.name {
		return
	}

	c.mu.Lock()
	if !c.hooks.destroy.Valid() {
		c.mu.Unlock()
		c.log.Debug("coordinator: dropping stale completion", slog.String("op", string(KindDestroy)))
		return
	}
	clearHandle(&c.hooks.destroy, c.provider.ClearOnDestroySessionComplete)
	pending := c.pending
	c.pending = pendingRecreate{}
	c.mu.Unlock()

	c.log.Info("coordinator: destroy completed", slog.Bool("success", ok), slog.Bool("recreate", ok && pending.armed))
	if ok && pending.armed {
		c.createSession(pending.numConnections, pending.matchType, false)
	}
	c.emit(DestroyCompleted{Success: ok})
}

// StartSession asks the provider to mark the session as started and
// eventually emits StartCompleted. No other state is involved.
func (c *Coordinator) StartSession() {
	p := c.backend()
	if p == nil {
		c.log.Error("coordinator: session provider unavailable", slog.String("op", string(KindStart)))
		c.emit(StartCompleted{Success: false})
		return
	}

	c.mu.Lock()
	c.supersede(KindStart, &c.hooks.start, p.ClearOnStartSessionComplete)
	c.hooks.start = p.AddOnStartSessionComplete(c.onStartComplete)
	c.mu.Unlock()

	if err := p.StartSession(c.name); err != nil {
		c.take(&c.hooks.start, p.ClearOnStartSessionComplete)
		c.log.Warn("coordinator: start rejected", slog.String("err", err.Error()))
		c.emit(StartCompleted{Success: false})
	}
}

func (c *Coordinator) onStartComplete(name provider.Name, ok bool) {
	if name != c.name {
		return
	}
	if !c.take(&c.hooks.start, c.provider.ClearOnStartSessionComplete) {
		c.log.Debug("coordinator: dropping stale completion", slog.String("op", string(KindStart)))
		return
	}
	c.emit(StartCompleted{Success: ok})
}

// backend returns the provider, or nil when none is usable.
func (c *Coordinator) backend() provider.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.provider
}

func (c *Coordinator) newSettings(p provider.Provider, numConnections int, matchType string) provider.Settings {
	return provider.Settings{
		NumPublicConnections:  numConnections,
		IsLANMatch:            isLAN(p),
		AllowJoinInProgress:   true,
		AllowJoinViaPresence:  true,
		ShouldAdvertise:       true,
		UsesPresence:          true,
		UseLobbiesIfAvailable: true,
		BuildUniqueID:         c.buildID,
		Attributes:            map[string]string{provider.MatchTypeKey: matchType},
	}
}

// take clears the hook in *h, reporting false if none was live.
func (c *Coordinator) take(h *provider.Handle, clear func(provider.Handle)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clearHandle(h, clear)
}

// supersede drops an outstanding hook of the same kind before a new request
// replaces it. Must be called with c.mu held.
func (c *Coordinator) supersede(kind Kind, h *provider.Handle, clear func(provider.Handle)) {
	if clearHandle(h, clear) {
		c.log.Warn("coordinator: superseding outstanding request", slog.String("op", string(kind)))
	}
}

func (c *Coordinator) emit(ev Event) {
	c.obsMu.RLock()
	observers := make([]Observer, len(c.observers))
	for i, o := range c.observers {
		observers[i] = o.fn
	}
	c.obsMu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}

func clearHandle(h *provider.Handle, clear func(provider.Handle)) bool {
	if !h.Valid() {
		return false
	}
	clear(*h)
	*h = 0
	return true
}

func isLAN(p provider.Provider) bool {
	return p.Name() == provider.NullSubsystem
}
