package provider

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Name identifies a session slot on a provider.
type Name string

// GameSession is the session slot used for regular matches.
const GameSession Name = "GameSession"

// NullSubsystem is the name reported by offline/LAN providers.
const NullSubsystem = "NULL"

// MatchTypeKey is the settings attribute carrying the match type a host
// advertises and a client filters on.
const MatchTypeKey = "MatchType"

// NetID is the unique network identity of a local player.
type NetID string

// Settings describe a session at creation time. A fresh value is built for
// every create request and is not modified afterwards.
type Settings struct {
	NumPublicConnections  int               `json:"num_public_connections"`
	IsLANMatch            bool              `json:"is_lan_match"`
	AllowJoinInProgress   bool              `json:"allow_join_in_progress"`
	AllowJoinViaPresence  bool              `json:"allow_join_via_presence"`
	ShouldAdvertise       bool              `json:"should_advertise"`
	UsesPresence          bool              `json:"uses_presence"`
	UseLobbiesIfAvailable bool              `json:"use_lobbies_if_available"`
	BuildUniqueID         int               `json:"build_unique_id"`
	Attributes            map[string]string `json:"attributes,omitempty"`
}

// Get returns the attribute stored under key.
func (s Settings) Get(key string) (string, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// Validate reports whether the settings can be submitted to a provider.
func (s Settings) Validate() error {
	if s.NumPublicConnections <= 0 {
		return fmt.Errorf("%w: num public connections must be positive, got %d", ErrInvalidSettings, s.NumPublicConnections)
	}
	return nil
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	if s.Attributes != nil {
		out.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Search is a session query. The provider writes its results into the
// search before delivering the find completion; the requester reads them
// from the same object afterwards.
type Search struct {
	MaxResults   int
	IsLANQuery   bool
	PresenceOnly bool

	mu      sync.Mutex
	results []SearchResult
}

// SetResults replaces the stored results.
func (s *Search) SetResults(results []SearchResult) {
	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
}

// Results returns a copy of the stored results in provider order.
func (s *Search) Results() []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchResult, len(s.results))
	copy(out, s.results)
	return out
}

// SearchResult is a joinable session as advertised by its host.
type SearchResult struct {
	SessionID             string   `json:"session_id"`
	OwnerID               NetID    `json:"owner_id"`
	OpenPublicConnections int      `json:"open_public_connections"`
	Settings              Settings `json:"settings"`
}

// IsValid reports whether r refers to a session.
func (r SearchResult) IsValid() bool {
	return r.SessionID != ""
}

// Attribute returns the advertised attribute stored under key.
func (r SearchResult) Attribute(key string) (string, bool) {
	return r.Settings.Get(key)
}

// State is the lifecycle state of a named session.
type State int

const (
	StateNoSession State = iota
	StateCreating
	StatePending
	StateInProgress
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "NoSession"
	case StateCreating:
		return "Creating"
	case StatePending:
		return "Pending"
	case StateInProgress:
		return "InProgress"
	case StateDestroying:
		return "Destroying"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NamedSession is the local view of a session slot.
type NamedSession struct {
	Name      Name
	SessionID string
	OwnerID   NetID
	Hosting   bool
	State     State
	Settings  Settings
}

// JoinResult is the outcome of a join request.
type JoinResult int

const (
	JoinSuccess JoinResult = iota
	JoinSessionIsFull
	JoinSessionDoesNotExist
	JoinAlreadyInSession
	JoinUnknownError
)

var joinResultNames = map[JoinResult]string{
	JoinSuccess:             "Success",
	JoinSessionIsFull:       "SessionIsFull",
	JoinSessionDoesNotExist: "SessionDoesNotExist",
	JoinAlreadyInSession:    "AlreadyInSession",
	JoinUnknownError:        "UnknownError",
}

func (r JoinResult) String() string {
	if s, ok := joinResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("JoinResult(%d)", int(r))
}

// MarshalJSON encodes the result by name.
func (r JoinResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a result name. Unknown names decode to JoinUnknownError.
func (r *JoinResult) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for k, v := range joinResultNames {
		if v == s {
			*r = k
			return nil
		}
	}
	*r = JoinUnknownError
	return nil
}

// Handle identifies a registered completion hook. The zero Handle is never
// returned by a provider and stands for "no hook".
type Handle uint64

// Valid reports whether h refers to a registration.
func (h Handle) Valid() bool { return h != 0 }
