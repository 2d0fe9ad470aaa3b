// Package provider defines the contract between a session coordinator and
// the asynchronous backend that actually hosts, advertises, and joins
// multiplayer sessions.
//
// # Request / completion model
//
// Every operation has two halves. The issue call (CreateSession,
// FindSessions, ...) validates the request and returns at once. Later, on a
// goroutine the provider controls, the outcome is delivered to every hook
// registered for that operation kind through AddOn*Complete. Callers attach a
// hook before issuing and clear it when the completion arrives, or right away
// when the issue call fails.
//
// Implementations
//
//	memoryprovider : in-process network of providers, used for tests and LAN-style demos
//	redisprovider  : Redis-backed session registry shared by many processes
//
// Conformance for both lives in providertest.
package provider
