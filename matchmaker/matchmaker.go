// Package matchmaker is the caller side of a coordinator: it hosts a match
// and travels to the lobby, or finds a session of the configured match type,
// joins it and travels to its host.
package matchmaker

//go:generate mockgen -source=matchmaker.go -destination=mocks/mocks.go -package=mocks

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/matchsession-go/coordinator"
	"github.com/ggoodman/matchsession-go/provider"
	"github.com/joeshaw/envdecode"
)

// Sessions is the part of coordinator.Coordinator a Matchmaker drives.
type Sessions interface {
	CreateSession(numConnections int, matchType string)
	FindSessions(maxResults int)
	JoinSession(result provider.SearchResult)
	Subscribe(fn coordinator.Observer) (unsubscribe func())
}

// Traveler moves the local player between maps and servers.
type Traveler interface {
	// ServerTravel opens url as a listen server.
	ServerTravel(url string) error
	// ClientTravel connects to the server at address.
	ClientTravel(address string) error
}

// Config for a Matchmaker. Defaults can be loaded via envdecode.
type Config struct {
	// NumPublicConnections offered when hosting. ENV: MATCHMAKER_NUM_CONNECTIONS
	NumPublicConnections int `env:"MATCHMAKER_NUM_CONNECTIONS,default=4"`
	// MatchType advertised when hosting and required when joining. ENV: MATCHMAKER_MATCH_TYPE
	MatchType string `env:"MATCHMAKER_MATCH_TYPE,default=FreeForAll"`
	// LobbyPath is the map opened after hosting. ENV: MATCHMAKER_LOBBY_PATH
	LobbyPath string `env:"MATCHMAKER_LOBBY_PATH,default=/Game/ThirdPerson/Maps/Lobby"`
	// MaxSearchResults bounds a join search. ENV: MATCHMAKER_MAX_SEARCH_RESULTS
	MaxSearchResults int `env:"MATCHMAKER_MAX_SEARCH_RESULTS,default=10000"`
}

// DefaultConfig returns the configuration used for zero Config fields.
func DefaultConfig() Config {
	return Config{
		NumPublicConnections: 4,
		MatchType:            "FreeForAll",
		LobbyPath:            "/Game/ThirdPerson/Maps/Lobby",
		MaxSearchResults:     10000,
	}
}

// ConfigFromEnv loads a Config with envdecode.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode matchmaker config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.NumPublicConnections <= 0 {
		c.NumPublicConnections = d.NumPublicConnections
	}
	if c.MatchType == "" {
		c.MatchType = d.MatchType
	}
	if c.LobbyPath == "" {
		c.LobbyPath = d.LobbyPath
	}
	if c.MaxSearchResults <= 0 {
		c.MaxSearchResults = d.MaxSearchResults
	}
}

// StatusFunc receives a short human readable progress message.
type StatusFunc func(msg string, ok bool)

// Option configures a Matchmaker.
type Option func(*Matchmaker)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Matchmaker) { m.log = l }
}

// WithStatus reports progress to fn in addition to the log.
func WithStatus(fn StatusFunc) Option {
	return func(m *Matchmaker) { m.status = fn }
}

// Matchmaker reacts to coordinator events on behalf of one local player.
type Matchmaker struct {
	sessions    Sessions
	traveler    Traveler
	cfg         Config
	log         *slog.Logger
	status      StatusFunc
	unsubscribe func()
}

// New subscribes a Matchmaker to s. Zero Config fields take their defaults.
func New(s Sessions, t Traveler, cfg Config, opts ...Option) *Matchmaker {
	cfg.applyDefaults()
	m := &Matchmaker{
		sessions: s,
		traveler: t,
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unsubscribe = s.Subscribe(m.handle)
	return m
}

// Config returns the effective configuration.
func (m *Matchmaker) Config() Config { return m.cfg }

// Host creates a session; the lobby is opened once it exists.
func (m *Matchmaker) Host() {
	m.sessions.CreateSession(m.cfg.NumPublicConnections, m.cfg.MatchType)
}

// Join searches for a session of the configured match type and joins the
// first one found.
func (m *Matchmaker) Join() {
	m.sessions.FindSessions(m.cfg.MaxSearchResults)
}

// Close stops reacting to events.
func (m *Matchmaker) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// SelectMatch returns the first result advertising matchType.
func SelectMatch(results []provider.SearchResult, matchType string) (provider.SearchResult, bool) {
	for _, r := range results {
		if v, ok := r.Attribute(provider.MatchTypeKey); ok && v == matchType {
			return r, true
		}
	}
	return provider.SearchResult{}, false
}

func (m *Matchmaker) handle(ev coordinator.Event) {
	switch ev := ev.(type) {
	case coordinator.CreateCompleted:
		m.onCreate(ev)
	case coordinator.FindCompleted:
		m.onFind(ev)
	case coordinator.JoinCompleted:
		m.onJoin(ev)
	}
}

func (m *Matchmaker) onCreate(ev coordinator.CreateCompleted) {
	if !ev.Success {
		m.report("Failed to create session", false)
		return
	}
	url := m.cfg.LobbyPath + "?listen"
	if err := m.traveler.ServerTravel(url); err != nil {
		m.log.Error("matchmaker: server travel failed", slog.String("url", url), slog.String("err", err.Error()))
		m.report("Failed to open lobby", false)
		return
	}
	m.report("Session Created", true)
}

func (m *Matchmaker) onFind(ev coordinator.FindCompleted) {
	if !ev.Success || len(ev.Results) == 0 {
		m.report("Failed to find sessions", false)
		return
	}
	result, ok := SelectMatch(ev.Results, m.cfg.MatchType)
	if !ok {
		m.log.Info("matchmaker: no session with the wanted match type",
			slog.String("match_type", m.cfg.MatchType),
			slog.Int("results", len(ev.Results)),
		)
		m.report("No "+m.cfg.MatchType+" session found", false)
		return
	}
	m.log.Info("matchmaker: joining session", slog.String("session_id", result.SessionID))
	m.sessions.JoinSession(result)
}

func (m *Matchmaker) onJoin(ev coordinator.JoinCompleted) {
	if !ev.Joinable() {
		m.log.Warn("matchmaker: join failed", slog.String("result", ev.Result.String()), slog.String("address", ev.Address))
		m.report("Failed to join session", false)
		return
	}
	if err := m.traveler.ClientTravel(ev.Address); err != nil {
		m.log.Error("matchmaker: client travel failed", slog.String("address", ev.Address), slog.String("err", err.Error()))
		m.report("Failed to travel to session", false)
		return
	}
	m.report("Joined session", true)
}

func (m *Matchmaker) report(msg string, ok bool) {
	if ok {
		m.log.Info("matchmaker: " + msg)
	} else {
		m.log.Warn("matchmaker: " + msg)
	}
	if m.status != nil {
		m.status(msg, ok)
	}
}
