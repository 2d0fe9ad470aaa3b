package provider

// Provider is the asynchronous session backend a coordinator orchestrates.
//
// Issue methods (CreateSession, FindSessions, JoinSession, DestroySession,
// StartSession) return immediately. A nil error means the request was
// accepted and exactly one completion of the matching kind will later be
// delivered to every hook registered for that kind. A non-nil error means
// the request was rejected synchronously and no completion will follow.
//
// Completions are delivered on a goroutine owned by the provider. Hooks must
// not be invoked while an issue method or an AddOn*/ClearOn* call is still on
// the stack, so callers are free to hold their own locks around those calls.
type Provider interface {
	// Name identifies the backend. The offline/LAN backend reports NullSubsystem.
	Name() string

	// NamedSession returns the local view of the named session, or nil if
	// this provider is not currently hosting or joined to it.
	NamedSession(name Name) *NamedSession

	CreateSession(player NetID, name Name, settings Settings) error
	FindSessions(player NetID, search *Search) error
	JoinSession(player NetID, name Name, result SearchResult) error
	DestroySession(name Name) error
	StartSession(name Name) error

	// ResolvedConnectString returns the address a client should travel to in
	// order to reach the named session.
	ResolvedConnectString(name Name) (string, bool)

	AddOnCreateSessionComplete(fn CreateCompleteFunc) Handle
	ClearOnCreateSessionComplete(h Handle)
	AddOnFindSessionsComplete(fn FindCompleteFunc) Handle
	ClearOnFindSessionsComplete(h Handle)
	AddOnJoinSessionComplete(fn JoinCompleteFunc) Handle
	ClearOnJoinSessionComplete(h Handle)
	AddOnDestroySessionComplete(fn DestroyCompleteFunc) Handle
	ClearOnDestroySessionComplete(h Handle)
	AddOnStartSessionComplete(fn StartCompleteFunc) Handle
	ClearOnStartSessionComplete(h Handle)
}

// Completion hook signatures, one per operation kind.
type (
	CreateCompleteFunc  func(name Name, ok bool)
	FindCompleteFunc    func(ok bool)
	JoinCompleteFunc    func(name Name, result JoinResult)
	DestroyCompleteFunc func(name Name, ok bool)
	StartCompleteFunc   func(name Name, ok bool)
)
