package provider

import (
	"sync"
	"sync/atomic"
)

var handleCounter atomic.Uint64

// hookSet is an ordered registry of completion hooks of one kind.
type hookSet[F any] struct {
	mu    sync.Mutex
	hooks []hookEntry[F]
}

type hookEntry[F any] struct {
	handle Handle
	fn     F
}

func (s *hookSet[F]) add(fn F) Handle {
	h := Handle(handleCounter.Add(1))
	s.mu.Lock()
	s.hooks = append(s.hooks, hookEntry[F]{handle: h, fn: fn})
	s.mu.Unlock()
	return h
}

func (s *hookSet[F]) clear(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.hooks {
		if e.handle == h {
			s.hooks = append(s.hooks[:i:i], s.hooks[i+1:]...)
			return
		}
	}
}

// snapshot returns the hooks registered right now, so that hooks may clear
// themselves (or register others) while a completion is being delivered.
func (s *hookSet[F]) snapshot() []F {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]F, len(s.hooks))
	for i, e := range s.hooks {
		out[i] = e.fn
	}
	return out
}

func (s *hookSet[F]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}

// Delegates implements the AddOn*/ClearOn* half of Provider. Concrete
// providers embed it and call the Trigger* methods from their completion
// goroutine.
type Delegates struct {
	create  hookSet[CreateCompleteFunc]
	find    hookSet[FindCompleteFunc]
	join    hookSet[JoinCompleteFunc]
	destroy hookSet[DestroyCompleteFunc]
	start   hookSet[StartCompleteFunc]
}

func (d *Delegates) AddOnCreateSessionComplete(fn CreateCompleteFunc) Handle { return d.create.add(fn) }
func (d *Delegates) ClearOnCreateSessionComplete(h Handle) { d.create.clear(h) }
func (d *Delegates) AddOnFindSessionsComplete(fn FindCompleteFunc) Handle { return d.find.add(fn) }
func (d *Delegates) ClearOnFindSessionsComplete(h Handle) { d.find.clear(h) }
func (d *Delegates) AddOnJoinSessionComplete(fn JoinCompleteFunc) Handle { return d.join.add(fn) }
func (d *Delegates) ClearOnJoinSessionComplete(h Handle) { d.join.clear(h) }
func (d *Delegates) AddOnDestroySessionComplete(fn DestroyCompleteFunc) Handle { return d.destroy.add(fn) }
func (d *Delegates) ClearOnDestroySessionComplete(h Handle) { d.destroy.clear(h) }
func (d *Delegates) AddOnStartSessionComplete(fn StartCompleteFunc) Handle { return d.start.add(fn) }
func (d *Delegates) ClearOnStartSessionComplete(h Handle) { d.start.clear(h) }

func (d *Delegates) TriggerCreateSessionComplete(name Name, ok bool) {
	for _, fn := range d.create.snapshot() {
		fn(name, ok)
	}
}

func (d *Delegates) TriggerFindSessionsComplete(ok bool) {
	for _, fn := range d.find.snapshot() {
		fn(ok)
	}
}

func (d *Delegates) TriggerJoinSessionComplete(name Name, result JoinResult) {
	for _, fn := range d.join.snapshot() {
		fn(name, result)
	}
}

func (d *Delegates) TriggerDestroySessionComplete(name Name, ok bool) {
	for _, fn := range d.destroy.snapshot() {
		fn(name, ok)
	}
}

func (d *Delegates) TriggerStartSessionComplete(name Name, ok bool) {
	for _, fn := range d.start.snapshot() {
		fn(name, ok)
	}
}

// LiveHooks reports how many hooks are registered across all kinds.
func (d *Delegates) LiveHooks() int {
	return d.create.len() + d.find.len() + d.join.len() + d.destroy.len() + d.start.len()
}
