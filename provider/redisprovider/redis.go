package redisprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/matchsession-go/internal/eventloop"
	"github.com/ggoodman/matchsession-go/internal/logctx"
	"github.com/ggoodman/matchsession-go/provider"
	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Config for the Redis-backed provider. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: MATCHSESSION_KEY_PREFIX
	KeyPrefix string `env:"MATCHSESSION_KEY_PREFIX,default=matchsession:"`
	// HostAddress is the connect string advertised for hosted sessions. ENV: MATCHSESSION_HOST_ADDRESS
	HostAddress string `env:"MATCHSESSION_HOST_ADDRESS,default=127.0.0.1:7777"`
	// Subsystem is the name the provider reports. ENV: MATCHSESSION_SUBSYSTEM
	Subsystem string `env:"MATCHSESSION_SUBSYSTEM,default=Redis"`
	// OpTimeout bounds the Redis work behind a single request. ENV: MATCHSESSION_OP_TIMEOUT
	OpTimeout time.Duration `env:"MATCHSESSION_OP_TIMEOUT,default=5s"`
	// BreakerFailures is the number of consecutive backend failures that
	// opens the circuit breaker. ENV: MATCHSESSION_BREAKER_FAILURES
	BreakerFailures int `env:"MATCHSESSION_BREAKER_FAILURES,default=5"`
	// BreakerCooldown is how long the breaker stays open. ENV: MATCHSESSION_BREAKER_COOLDOWN
	BreakerCooldown time.Duration `env:"MATCHSESSION_BREAKER_COOLDOWN,default=30s"`
}

// Option configures a Provider beyond Config.
type Option func(*Provider)

// WithClient uses an existing client instead of dialing RedisAddr. The
// provider does not close a client supplied this way.
func WithClient(c redis.UniversalClient) Option {
	return func(p *Provider) {
		p.client = c
		p.ownsClient = false
	}
}

// WithLogger sets the logger used for background work.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider is a provider.Provider backed by a Redis session registry shared
// by every process pointed at the same keys.
type Provider struct {
	provider.Delegates

	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string
	hostAddr   string
	name       string
	opTimeout  time.Duration
	cb         *gobreaker.CircuitBreaker
	log        *slog.Logger
	loop       *eventloop.Loop

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	named    map[provider.Name]*local
	searches int
}

type local struct {
	session provider.NamedSession
	player  provider.NetID
	connect string
}

// New builds a provider from cfg. Zero fields fall back to the envdecode defaults.
func New(cfg Config, opts ...Option) (*Provider, error) {
	applyDefaults(&cfg)

	p := &Provider{
		keyPrefix: cfg.KeyPrefix,
		hostAddr:  cfg.HostAddress,
		name:      cfg.Subsystem,
		opTimeout: cfg.OpTimeout,
		log:       slog.Default(),
		named:     make(map[provider.Name]*local),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cl := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := cl.Ping(context.Background()).Err(); err != nil {
			_ = cl.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		p.client = cl
		p.ownsClient = true
	}

	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "matchsession-redis",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn("redisprovider: circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.loop = eventloop.New()
	return p, nil
}

// NewFromEnv builds a provider using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Provider, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis provider config: %w", err)
	}
	return New(cfg, opts...)
}

func applyDefaults(cfg *Config) {
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "matchsession:"
	}
	if cfg.HostAddress == "" {
		cfg.HostAddress = "127.0.0.1:7777"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "Redis"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
}

// Close aborts in-flight work, stops completion delivery, withdraws every
// session this provider hosts or occupies and closes an owned client.
func (p *Provider) Close() error {
	p.cancel()
	p.loop.Close()

	p.mu.Lock()
	named := p.named
	p.named = make(map[provider.Name]*local)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.opTimeout)
	defer cancel()
	var errs []error
	for _, l := range named {
		if err := p.withdraw(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	if p.ownsClient {
		if err := p.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
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
	if err := p.available(); err != nil {
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

	op := &logctx.Operation{Kind: "create", Session: string(name), Player: string(player)}
	err := p.post(op, func(ctx context.Context) {
		id := uuid.NewString()
		err := p.execute(func() error { return p.advertise(ctx, id, player, settings) })

		p.mu.Lock()
		if err != nil {
			delete(p.named, name)
		} else {
			l.session.SessionID = id
			l.session.State = provider.StatePending
		}
		p.mu.Unlock()

		if err != nil {
			p.log.WarnContext(ctx, "redisprovider: create failed", slog.String("err", err.Error()))
		}
		p.TriggerCreateSessionComplete(name, err == nil)
	})
	if err != nil {
		p.mu.Lock()
		delete(p.named, name)
		p.mu.Unlock()
	}
	return err
}

func (p *Provider) FindSessions(player provider.NetID, search *provider.Search) error {
	if player == "" {
		return provider.ErrNoLocalPlayer
	}
	if search == nil || search.MaxResults <= 0 {
		return provider.ErrInvalidSettings
	}
	if err := p.available(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.searches > 0 {
		p.mu.Unlock()
		return provider.ErrOperationInProgress
	}
	p.searches++
	p.mu.Unlock()

	op := &logctx.Operation{Kind: "find", Player: string(player)}
	err := p.post(op, func(ctx context.Context) {
		var results []provider.SearchResult
		err := p.execute(func() error {
			var err error
			results, err = p.search(ctx, player, search)
			return err
		})

		p.mu.Lock()
		p.searches--
		p.mu.Unlock()

		if err != nil {
			p.log.WarnContext(ctx, "redisprovider: find failed", slog.String("err", err.Error()))
			search.SetResults(nil)
			p.TriggerFindSessionsComplete(false)
			return
		}
		search.SetResults(results)
		p.TriggerFindSessionsComplete(true)
	})
	if err != nil {
		p.mu.Lock()
		p.searches--
		p.mu.Unlock()
	}
	return err
}

func (p *Provider) JoinSession(player provider.NetID, name provider.Name, result provider.SearchResult) error {
	if player == "" {
		return provider.ErrNoLocalPlayer
	}
	if !result.IsValid() {
		return provider.ErrInvalidSearchResult
	}
	if err := p.available(); err != nil {
		return err
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

	op := &logctx.Operation{Kind: "join", Session: string(name), Player: string(player)}
	err := p.post(op, func(ctx context.Context) {
		if already {
			p.TriggerJoinSessionComplete(name, provider.JoinAlreadyInSession)
			return
		}

		ctx = logctx.WithBackend(ctx, &logctx.Backend{Name: p.name, SessionID: result.SessionID})
		var (
			addr string
			res  = provider.JoinUnknownError
		)
		err := p.execute(func() error {
			var err error
			addr, res, err = p.reserve(ctx, result.SessionID, player)
			return err
		})
		if err != nil {
			p.log.WarnContext(ctx, "redisprovider: join failed", slog.String("err", err.Error()))
			res = provider.JoinUnknownError
		}

		p.mu.Lock()
		if res != provider.JoinSuccess {
			delete(p.named, name)
		} else {
			l.session.SessionID = result.SessionID
			l.session.State = provider.StatePending
			l.connect = addr
		}
		p.mu.Unlock()

		p.TriggerJoinSessionComplete(name, res)
	})
	if err != nil && !already {
		p.mu.Lock()
		delete(p.named, name)
		p.mu.Unlock()
	}
	return err
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

	op := &logctx.Operation{Kind: "destroy", Session: string(name), Player: string(l.player)}
	err := p.post(op, func(ctx context.Context) {
		err := p.execute(func() error { return p.withdraw(ctx, l) })

		p.mu.Lock()
		if err != nil {
			l.session.State = prev
		} else {
			delete(p.named, name)
		}
		p.mu.Unlock()

		if err != nil {
			p.log.WarnContext(ctx, "redisprovider: destroy failed", slog.String("err", err.Error()))
		}
		p.TriggerDestroySessionComplete(name, err == nil)
	})
	if err != nil {
		p.mu.Lock()
		l.session.State = prev
		p.mu.Unlock()
	}
	return err
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
	hosting, id := l.session.Hosting, l.session.SessionID
	p.mu.Unlock()

	op := &logctx.Operation{Kind: "start", Session: string(name), Player: string(l.player)}
	return p.post(op, func(ctx context.Context) {
		var err error
		if hosting {
			err = p.execute(func() error {
				return p.client.HSet(ctx, p.sessionKey(id), fieldStarted, "1").Err()
			})
		}

		p.mu.Lock()
		ok := err == nil && l.session.State == provider.StatePending
		if ok {
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

// available rejects new work while the breaker is open.
func (p *Provider) available() error {
	if p.cb.State() == gobreaker.StateOpen {
		return provider.ErrBackendUnavailable
	}
	return nil
}

func (p *Provider) execute(fn func() error) error {
	_, err := p.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", provider.ErrBackendUnavailable, err)
	}
	return err
}

func (p *Provider) post(op *logctx.Operation, fn func(ctx context.Context)) error {
	err := p.loop.Post(func() {
		ctx, cancel := context.WithTimeout(p.ctx, p.opTimeout)
		defer cancel()
		fn(logctx.WithOperation(ctx, op))
	})
	if err != nil {
		return provider.ErrProviderClosed
	}
	return nil
}

var _ provider.Provider = (*Provider)(nil)
