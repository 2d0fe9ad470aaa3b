// Package memoryprovider implements provider.Provider entirely in process.
//
// A Network stands in for the matchmaking backend; every Provider built on it
// represents one machine with one local player. Completions are delivered in
// issue order on a goroutine owned by each Provider. The default provider
// name is provider.NullSubsystem, so sessions created through it are LAN
// matches, mirroring an offline subsystem.
//
// FailNext lets tests force the next completion of a kind to fail.
package memoryprovider
