package provider

import "errors"

var (
	// ErrNoLocalPlayer indicates the request needs a local player identity and none was available.
	ErrNoLocalPlayer = errors.New("no local player")
	// ErrSessionExists indicates a create for a session slot that is already in use.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound indicates a request for a session slot that is not in use.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSettings indicates settings or search parameters that cannot be submitted.
	ErrInvalidSettings = errors.New("invalid session settings")
	// ErrInvalidSearchResult indicates a join against a search result that refers to no session.
	ErrInvalidSearchResult = errors.New("invalid search result")
	// ErrOperationInProgress indicates a request for a slot that is busy with another request.
	ErrOperationInProgress = errors.New("operation already in progress")
	// ErrProviderClosed is returned by issue calls after the provider was closed.
	ErrProviderClosed = errors.New("provider closed")
	// ErrBackendUnavailable indicates the provider refuses work because its backend is failing.
	ErrBackendUnavailable = errors.New("session backend unavailable")
)
