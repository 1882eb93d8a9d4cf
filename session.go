package memscan

import (
	"sync"
	"time"
)

// Session ties a target process's region groups, foreign-memory
// handle and scan engine together behind the operations a UI
// collaborator drives directly: reload, focus/enable groups, scan,
// refine, undo, reset, set, and lock.
type Session struct {
	mem    *ForeignMemory
	engine *Engine

	mu           sync.Mutex
	groups       []RegionGroup
	focus        *string
	lockInterval time.Duration
}

// NewSession returns a session targeting pid, detached and with no
// region groups loaded.
func NewSession(pid int32) *Session {
	mem := NewForeignMemory(pid)
	return &Session{mem: mem, engine: NewEngine(mem)}
}

// SetPID retargets the session to a new process identifier, detaching
// first (§4.3's "changing the process identifier implicitly
// detaches").
func (s *Session) SetPID(pid int32) {
	s.mem.SetPID(pid)
}

// PID returns the session's current target process identifier.
func (s *Session) PID() int32 { return s.mem.PID() }

// Memory returns the session's foreign-memory handle.
func (s *Session) Memory() *ForeignMemory { return s.mem }

// Engine returns the session's scan engine.
func (s *Session) Engine() *Engine { return s.engine }

// ReloadMaps re-parses the target's maps file into a fresh snapshot
// of region groups, preserving each existing group's Enabled flag by
// name (new groups default enabled).
func (s *Session) ReloadMaps() error {
	fresh, err := LoadMaps(s.mem.PID())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prevEnabled := make(map[string]bool, len(s.groups))
	for _, g := range s.groups {
		prevEnabled[g.Name] = g.Enabled
	}
	for i := range fresh {
		if enabled, ok := prevEnabled[fresh[i].Name]; ok {
			fresh[i].Enabled = enabled
		}
	}
	s.groups = fresh
	return nil
}

// Groups returns a copy of the session's current region groups.
func (s *Session) Groups() []RegionGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RegionGroup, len(s.groups))
	copy(out, s.groups)
	return out
}

// SetGroupEnabled toggles a region group's Enabled flag by name. Per
// §3's invariant, toggling after a baseline has no retroactive effect
// on the current scan history.
func (s *Session) SetGroupEnabled(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].Name == name {
			s.groups[i].Enabled = enabled
			return
		}
	}
}

// Focus restricts the next FirstScan to a single named group's
// regions, provided that group is also Enabled (an enabled-but-not-
// focused group contributes nothing while a focus is set). Pass nil
// to scan the union of all enabled groups instead.
func (s *Session) Focus(name *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = name
}

// FirstScan runs a fresh baseline scan over the session's current
// groups and focus.
func (s *Session) FirstScan(valueText string, mode Mode, typeOverride *Tag) error {
	s.mu.Lock()
	groups, focus := s.groups, s.focus
	s.mu.Unlock()
	return s.engine.FirstScan(groups, focus, valueText, mode, typeOverride)
}

// NextScan refines the session's current scan.
func (s *Session) NextScan(valueText string, mode Mode, typeOverride *Tag) error {
	s.mu.Lock()
	groups := s.groups
	s.mu.Unlock()
	return s.engine.NextScan(groups, valueText, mode, typeOverride)
}

// PreviousScan undoes the most recent refinement.
func (s *Session) PreviousScan() { s.engine.PreviousScan() }

// Reset discards the scan history.
func (s *Session) Reset() { s.engine.Reset() }

// Results returns the current candidate address set.
func (s *Session) Results() []uint64 { return s.engine.Results() }

// LastError returns the session's pending error string for the UI
// collaborator to display.
func (s *Session) LastError() string { return s.engine.LastError() }

// ClearError clears the pending error string.
func (s *Session) ClearError() { s.engine.ClearError() }

// Set writes valueText to every address in the current result set.
func (s *Session) Set(valueText string) error {
	return AddressSet(s.mem, valueText, s.engine.Results())
}

// SetLockInterval overrides the rewrite period a subsequent Lock call
// starts its pinning task with; zero restores the default.
func (s *Session) SetLockInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockInterval = d
}

// Lock starts a background pinning task rewriting valueText to every
// address in the current result set, at the session's lock interval
// (100ms unless overridden via SetLockInterval), until process exit.
func (s *Session) Lock(valueText string) *Locker {
	s.mu.Lock()
	interval := s.lockInterval
	s.mu.Unlock()
	return NewLocker(s.mem, s.engine.Results(), valueText, interval)
}
