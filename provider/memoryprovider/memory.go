package memoryprovider

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ggoodman/matchsession-go/internal/eventloop"
	"github.com/ggoodman/matchsession-go/internal/logctx"
	"github.com/ggoodman/matchsession-go/provider"
)

// DefaultHostAddress is advertised by providers built without WithHostAddress.
const DefaultHostAddress = "127.0.0.1:7777"

// Op names an operation kind for failure injection.
type Op string

const (
	OpCreate  Op = "create"
	OpFind    Op = "find"
	OpJoin    Op = "join"
	OpDestroy Op = "destroy"
	OpStart   Op = "start"
)

// Option configures a Provider.
type Option func(*Provider)

// WithName sets the name the provider reports. The default is
// provider.NullSubsystem, which makes coordinators create LAN sessions.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHostAddress sets the connect string clients resolve after joining a
// session this provider hosts.
func WithHostAddress(addr string) Option {
	return func(p *Provider) { p.hostAddr = addr }
}

// WithLogger sets the logger used for background work.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider is an in-memory provider.Provider for one local player. Sessions
// it hosts are advertised on the shared Network.
type Provider struct {
	provider.Delegates

	net      *Network
	name     string
	hostAddr string
	log      *slog.Logger
	loop     *eventloop.Loop

	mu       sync.Mutex
	named    map[provider.Name]*local
	searches int
	failNext map[Op]int
}

// local is a named session slot on this provider.
type local struct {
	session provider.NamedSession
	player  provider.NetID
	connect string
}

// New creates a provider attached to net.
func New(net *Network, opts ...Option) *Provider {
	p := &Provider{
		net:      net,
		name:     provider.NullSubsystem,
		hostAddr: DefaultHostAddress,
		log:      slog.Default(),
		named:    make(map[provider.Name]*local),
		failNext: make(map[Op]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.loop = eventloop.New()
	return p
}

// Close stops completion delivery and withdraws every session this provider
// hosts or occupies. Completions that were not delivered yet are dropped.
func (p *Provider) Close() error {
	p.loop.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, l := range p.named {
		p.release(l)
		delete(p.named, name)
	}
	return nil
}

// FailNext makes the next completion of kind op report failure.
func (p *Provider) FailNext(op Op) {
	p.mu.Lock()
	p.failNext[op]++
	p.mu.Unlock()
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) NamedSession(name provider.Name) *provider.NamedSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.named[name]
	if !ok {
		return nil
	}
	s := l.session
	s.Settings = s.Settings.Clone()
	return &s
}

func (p *Provider) CreateSession(player provider.NetID, name provider.Name, settings provider.Settings) error {
	if player == "" {
		return provider.ErrNoLocalPlayer
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if _, exists := p.named[name]; exists {
		p.mu.Unlock()
		return provider.ErrSessionExists
	}
	l := &local{
		session: provider.NamedSession{
			Name:     name,
			OwnerID:  player,
			Hosting:  true,
			State:    provider.StateCreating,
			Settings: settings.Clone(),
		},
		player: player,
	}
	p.named[name] = l
	p.mu.Unlock()

	ctx := logctx.WithOperation(context.Background(), &logctx.Operation{Kind: string(OpCreate), Session: string(name), Player: string(player)})
	err := p.post(func() {
		p.mu.Lock()
		if p.consumeFailure(OpCreate) {
			delete(p.named, name)
			p.mu.Unlock()
			p.log.DebugContext(ctx, "memoryprovider: create failed by injection")
			p.TriggerCreateSessionComplete(name, false)
			return
		}
		l.session.SessionID = p.net.advertise(player, p.hostAddr, settings)
		l.session.State = provider.StatePending
		p.mu.Unlock()

		p.log.DebugContext(logctx.WithBackend(ctx, &logctx.Backend{Name: p.name, SessionID: l.session.SessionID}), "memoryprovider: session advertised")
		p.TriggerCreateSessionComplete(name, true)
	})
	if err != nil {
		p.mu.Lock()
		delete(p.named, name)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *Provider) FindSessions(player provider.NetID, search *provider.Search) error {
	if player == "" {
		return provider.ErrNoLocalPlayer
	}
	if search == nil || search.MaxResults <= 0 {
		return provider.ErrInvalidSettings
	}

	p.mu.Lock()
	if p.searches > 0 {
		p.mu.Unlock()
		return provider.ErrOperationInProgress
	}
	p.searches++
	p.mu.Unlock()

	err := p.post(func() {
		p.mu.Lock()
		p.searches--
		failed := p.consumeFailure(OpFind)
		p.mu.Unlock()

		if failed {
			search.SetResults(nil)
			p.TriggerFindSessionsComplete(false)
			return
		}
		search.SetResults(p.net.search(player, search))
		p.TriggerFindSessionsComplete(true)
	})
	if err != nil {
		p.mu.Lock()
		p.searches--
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *Provider) JoinSession(player provider.NetID, name provider.Name, result provider.SearchResult) error {
	if player == "" {
		return provider.ErrNoLocalPlayer
	}
	if !result.IsValid() {
		return provider.ErrInvalidSearchResult
	}

	p.mu.Lock()
	_, already := p.named[name]
	var l *local
	if !already {
		l = &local{
			session: provider.NamedSession{
				Name:     name,
				OwnerID:  result.OwnerID,
				State:    provider.StateCreating,
				Settings: result.Settings.Clone(),
			},
			player: player,
		}
		p.named[name] = l
	}
	p.mu.Unlock()

	ctx := logctx.WithOperation(context.Background(), &logctx.Operation{Kind: string(OpJoin), Session: string(name), Player: string(player)})
	err := p.post(func() {
		if already {
			p.TriggerJoinSessionComplete(name, provider.JoinAlreadyInSession)
			return
		}

		p.mu.Lock()
		if p.consumeFailure(OpJoin) {
			delete(p.named, name)
			p.mu.Unlock()
			p.TriggerJoinSessionComplete(name, provider.JoinUnknownError)
			return
		}
		addr, res := p.net.join(result.SessionID, player)
		if res != provider.JoinSuccess {
			delete(p.named, name)
		} else {
			l.session.SessionID = result.SessionID
			l.session.State = provider.StatePending
			l.connect = addr
		}
		p.mu.Unlock()

		p.log.DebugContext(logctx.WithBackend(ctx, &logctx.Backend{Name: p.name, SessionID: result.SessionID}), "memoryprovider: join finished", slog.String("result", res.String()))
		p.TriggerJoinSessionComplete(name, res)
	})
	if err != nil {
		if !already {
			p.mu.Lock()
			delete(p.named, name)
			p.mu.Unlock()
		}
		return err
	}
	return nil
}

func (p *Provider) DestroySession(name provider.Name) error {
	p.mu.Lock()
	l, ok := p.named[name]
	if !ok {
		p.mu.Unlock()
		return provider.ErrSessionNotFound
	}
	if l.session.State == provider.StateDestroying || l.session.State == provider.StateCreating {
		p.mu.Unlock()
		return provider.ErrOperationInProgress
	}
	prev := l.session.State
	l.session.State = provider.StateDestroying
	p.mu.Unlock()

	err := p.post(func() {
		p.mu.Lock()
		if p.consumeFailure(OpDestroy) {
			l.session.State = prev
			p.mu.Unlock()
			p.TriggerDestroySessionComplete(name, false)
			return
		}
		p.release(l)
		delete(p.named, name)
		p.mu.Unlock()

		p.TriggerDestroySessionComplete(name, true)
	})
	if err != nil {
		p.mu.Lock()
		l.session.State = prev
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *Provider) StartSession(name provider.Name) error {
	p.mu.Lock()
	l, ok := p.named[name]
	if !ok {
		p.mu.Unlock()
		return provider.ErrSessionNotFound
	}
	if l.session.State != provider.StatePending {
		p.mu.Unlock()
		return provider.ErrOperationInProgress
	}
	p.mu.Unlock()

	return p.post(func() {
		p.mu.Lock()
		ok := !p.consumeFailure(OpStart) && l.session.State == provider.StatePending
		if ok {
			if l.session.Hosting {
				p.net.markStarted(l.session.SessionID)
			}
			l.session.State = provider.StateInProgress
		}
		p.mu.Unlock()

		p.TriggerStartSessionComplete(name, ok)
	})
}

func (p *Provider) ResolvedConnectString(name provider.Name) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.named[name]
	if !ok || l.session.SessionID == "" {
		return "", false
	}
	if l.session.Hosting {
		return p.hostAddr, p.hostAddr != ""
	}
	return l.connect, l.connect != ""
}

func (p *Provider) post(fn func()) error {
	if err := p.loop.Post(fn); err != nil {
		return provider.ErrProviderClosed
	}
	return nil
}

// consumeFailure must be called with p.mu held.
func (p *Provider) consumeFailure(op Op) bool {
	if p.failNext[op] == 0 {
		return false
	}
	p.failNext[op]--
	return true
}

// release must be called with p.mu held.
func (p *Provider) release(l *local) {
	if l.session.SessionID == "" {
		return
	}
	if l.session.Hosting {
		p.net.remove(l.session.SessionID)
	} else {
		p.net.leave(l.session.SessionID, l.player)
	}
}

var _ provider.Provider = (*Provider)(nil)
