package coordinator

import (
	"github.com/ggoodman/matchsession-go/provider"
)

// Kind names the operation an event completes.
type Kind string

const (
	KindCreate  Kind = "create"
	KindFind    Kind = "find"
	KindJoin    Kind = "join"
	KindDestroy Kind = "destroy"
	KindStart   Kind = "start"
)

// Event is one normalized completion. The set of implementations is closed:
// CreateCompleted, FindCompleted, JoinCompleted, DestroyCompleted and
// StartCompleted.
type Event interface {
	Kind() Kind
	event()
}

// CreateCompleted reports the outcome of CreateSession, including a create
// issued automatically after a destroy.
type CreateCompleted struct {
	Success bool
}

// FindCompleted reports the outcome of FindSessions. Results keep the order
// the provider returned them in. An empty search is always reported with
// Success false.
type FindCompleted struct {
	Results []provider.SearchResult
	Success bool
}

// JoinCompleted reports the outcome of JoinSession. Address is the connect
// string for the joined session and may be empty even when Result is
// provider.JoinSuccess; an empty address is not joinable.
type JoinCompleted struct {
	Result  provider.JoinResult
	Address string
}

// Joinable reports whether the caller can travel to the session.
func (e JoinCompleted) Joinable() bool {
	return e.Result == provider.JoinSuccess && e.Address != ""
}

// DestroyCompleted reports the outcome of DestroySession.
type DestroyCompleted struct {
	Success bool
}

// StartCompleted reports the outcome of StartSession.
type StartCompleted struct {
	Success bool
}

func (CreateCompleted) Kind() Kind  { return KindCreate }
func (FindCompleted) Kind() Kind    { return KindFind }
func (JoinCompleted) Kind() Kind    { return KindJoin }
func (DestroyCompleted) Kind() Kind { return KindDestroy }
func (StartCompleted) Kind() Kind   { return KindStart }

func (CreateCompleted) event()  {}
func (FindCompleted) event()    {}
func (JoinCompleted) event()    {}
func (DestroyCompleted) event() {}
func (StartCompleted) event()   {}

// Observer receives every event a coordinator emits.
type Observer func(Event)
