package engine

import (
	"context"
	"sync"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/launch"
)

// runtimeEntry is the live record for one profile. Its mutex
// serializes every read and mutation of that profile's runtime state,
// so checks and transitions on a single profile never interleave.
type runtimeEntry struct {
	mu     sync.Mutex
	rs     fleet.RuntimeState
	cancel context.CancelFunc
	handle launch.Handle
}

// Store tracks the runtime state of every registered profile. The
// outer lock guards only the map; per-profile access goes through the
// entry lock, so operations on different profiles proceed in parallel.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*runtimeEntry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*runtimeEntry)}
}

func (s *Store) entry(name string) (*runtimeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Register creates an entry for name in the stopped state. Registering
// an existing name keeps the current entry untouched.
func (s *Store) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return
	}
	s.entries[name] = &runtimeEntry{rs: fleet.RuntimeState{State: fleet.StateStopped}}
}

// Deregister drops the entry for name.
func (s *Store) Deregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Rename moves the entry for old under next, carrying runtime state
// across a profile rename. Missing old is a no-op.
func (s *Store) Rename(old, next string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[old]
	if !ok {
		return
	}
	delete(s.entries, old)
	s.entries[next] = e
}

// Snapshot returns a copy of name's runtime state.
func (s *Store) Snapshot(name string) (fleet.RuntimeState, bool) {
	e, ok := s.entry(name)
	if !ok {
		return fleet.RuntimeState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rs, true
}

// SnapshotAll returns a copy of every profile's runtime state.
func (s *Store) SnapshotAll() map[string]fleet.RuntimeState {
	s.mu.RLock()
	entries := make(map[string]*runtimeEntry, len(s.entries))
	for name, e := range s.entries {
		entries[name] = e
	}
	s.mu.RUnlock()

	out := make(map[string]fleet.RuntimeState, len(entries))
	for name, e := range entries {
		e.mu.Lock()
		out[name] = e.rs
		e.mu.Unlock()
	}
	return out
}

// TryTransition atomically checks the current state and moves to
// target when the machine allows it. False means the edge is illegal
// from the current state, or name is unknown.
func (s *Store) TryTransition(name string, target fleet.State) bool {
	e, ok := s.entry(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.rs.State.CanTransitionTo(target) {
		return false
	}
	e.rs.State = target
	return true
}

// ForceState sets the state unconditionally. Only the forced-stop path
// uses this; everything else goes through TryTransition.
func (s *Store) ForceState(name string, state fleet.State) bool {
	e, ok := s.entry(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rs.State = state
	return true
}

// Update applies fn to name's runtime state under the entry lock. fn
// must not touch the State field; transitions go through
// TryTransition so the machine stays authoritative.
func (s *Store) Update(name string, fn func(*fleet.RuntimeState)) bool {
	e, ok := s.entry(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rs)
	return true
}

// Arm records the cancel function for name's supervision task.
func (s *Store) Arm(name string, cancel context.CancelFunc) {
	e, ok := s.entry(name)
	if !ok {
		cancel()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = cancel
}

// CancelRun cancels and clears name's supervision task. Safe to call
// when nothing is armed.
func (s *Store) CancelRun(name string) {
	e, ok := s.entry(name)
	if !ok {
		return
	}
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// BindHandle records the live process handle for name.
func (s *Store) BindHandle(name string, h launch.Handle) {
	e, ok := s.entry(name)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle = h
}

// Handle returns the live process handle for name, if any.
func (s *Store) Handle(name string) (launch.Handle, bool) {
	e, ok := s.entry(name)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// ClearHandle drops the process handle for name.
func (s *Store) ClearHandle(name string) {
	e, ok := s.entry(name)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle = nil
}

// KeysInUse returns key name to profile name for every profile
// currently holding a credential. Allocation scans this set so two
// profiles never share a key.
func (s *Store) KeysInUse() map[string]string {
	s.mu.RLock()
	entries := make(map[string]*runtimeEntry, len(s.entries))
	for name, e := range s.entries {
		entries[name] = e
	}
	s.mu.RUnlock()

	inUse := make(map[string]string)
	for name, e := range entries {
		e.mu.Lock()
		if e.rs.KeyName != "" {
			inUse[e.rs.KeyName] = name
		}
		e.mu.Unlock()
	}
	return inUse
}
