// Package coordinator drives the lifecycle of one multiplayer session slot
// (create, find, join, destroy and start) against a provider.Provider.
//
// Every request is answered by exactly one Event delivered to the
// coordinator's observers:
//
//	c := coordinator.New(p, coordinator.WithPlayer("alice"))
//	unsubscribe := c.Subscribe(func(ev coordinator.Event) {
//		switch ev := ev.(type) {
//		case coordinator.CreateCompleted:
//			// travel to the lobby
//		case coordinator.JoinCompleted:
//			if ev.Joinable() {
//				// travel to ev.Address
//			}
//		}
//	})
//	defer unsubscribe()
//	c.CreateSession(4, "FreeForAll")
//
// Creating while a session already occupies the slot destroys it first and
// then creates the new one. In that case observers see DestroyCompleted
// followed, once the provider answers, by CreateCompleted.
//
// Events can be forwarded to other processes with Relay and decoded on the
// receiving side with DecodeEvent.
package coordinator
