package memoryprovider

import (
	"sort"
	"sync"

	"github.com/ggoodman/matchsession-go/provider"
	"github.com/google/uuid"
)

// Network is the in-process registry that providers advertise sessions on
// and search. It plays the part of a matchmaking master server for every
// Provider constructed on top of it.
type Network struct {
	mu       sync.RWMutex
	sessions map[string]*advertised
	seq      uint64
}

// advertised is a session as the network sees it.
type advertised struct {
	id       string
	seq      uint64
	owner    provider.NetID
	hostAddr string
	settings provider.Settings
	open     int
	members  map[provider.NetID]struct{}
	started  bool
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{sessions: make(map[string]*advertised)}
}

// Len reports how many sessions are advertised.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sessions)
}

func (n *Network) advertise(owner provider.NetID, hostAddr string, settings provider.Settings) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	id := uuid.NewString()
	n.sessions[id] = &advertised{
		id:       id,
		seq:      n.seq,
		owner:    owner,
		hostAddr: hostAddr,
		settings: settings.Clone(),
		open:     settings.NumPublicConnections,
		members:  make(map[provider.NetID]struct{}),
	}
	return id
}

func (n *Network) remove(id string) {
	n.mu.Lock()
	delete(n.sessions, id)
	n.mu.Unlock()
}

func (n *Network) markStarted(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if !ok {
		return false
	}
	s.started = true
	return true
}

func (n *Network) search(player provider.NetID, search *provider.Search) []provider.SearchResult {
	n.mu.RLock()
	matches := make([]*advertised, 0, len(n.sessions))
	for _, s := range n.sessions {
		if !s.settings.ShouldAdvertise || s.owner == player {
			continue
		}
		if s.settings.IsLANMatch != search.IsLANQuery {
			continue
		}
		if search.PresenceOnly && !s.settings.UsesPresence {
			continue
		}
		if s.started && !s.settings.AllowJoinInProgress {
			continue
		}
		matches = append(matches, s)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	if len(matches) > search.MaxResults {
		matches = matches[:search.MaxResults]
	}
	out := make([]provider.SearchResult, len(matches))
	for i, s := range matches {
		out[i] = provider.SearchResult{
			SessionID:             s.id,
			OwnerID:               s.owner,
			OpenPublicConnections: s.open,
			Settings:              s.settings.Clone(),
		}
	}
	n.mu.RUnlock()
	return out
}

// join reserves a public slot for player and returns the host's address.
func (n *Network) join(id string, player provider.NetID) (string, provider.JoinResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if !ok {
		return "", provider.JoinSessionDoesNotExist
	}
	if _, member := s.members[player]; member || s.owner == player {
		return "", provider.JoinAlreadyInSession
	}
	if s.open <= 0 {
		return "", provider.JoinSessionIsFull
	}
	s.open--
	s.members[player] = struct{}{}
	return s.hostAddr, provider.JoinSuccess
}

func (n *Network) leave(id string, player provider.NetID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if !ok {
		return
	}
	if _, member := s.members[player]; member {
		delete(s.members, player)
		s.open++
	}
}
