package memscan

import (
	"log"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// defaultLockInterval is the pinning task's rewrite period when the
// caller doesn't supply one.
const defaultLockInterval = 100 * time.Millisecond

// AddressSet parses inputText and writes its encoding to every
// address in addrs, in order. It stops at the first write error and
// returns it; earlier writes are not rolled back, so a failure midway
// leaves a partially-written address set visible.
func AddressSet(mem *ForeignMemory, inputText string, addrs []uint64) error {
	val, ok := Parse(inputText)
	if !ok {
		return newError(BadValue, "could not parse value %q", inputText)
	}
	data := val.ToBytes()
	for _, addr := range addrs {
		if err := mem.Write(addr, data); err != nil {
			return err
		}
	}
	return nil
}

// Locker is a background pinning task: every interval it
// re-snapshots its target value text and address list under its own
// lock and rewrites every address, best-effort. Individual write
// failures are logged and ignored; the task runs until the process
// exits, since no cancellation handle is part of the core contract.
// Multiple Lockers may run concurrently and independently.
type Locker struct {
	mem      *ForeignMemory
	interval time.Duration

	mu        sync.Mutex
	inputText string
	addrs     []uint64
}

// NewLocker starts a background pinning task targeting addrs with the
// encoding of inputText, and returns a handle that lets a caller
// update either afterward. The task owns clones of its inputs, not
// shared mutable state with the scan engine's results. interval <= 0
// selects defaultLockInterval.
func NewLocker(mem *ForeignMemory, addrs []uint64, inputText string, interval time.Duration) *Locker {
	if interval <= 0 {
		interval = defaultLockInterval
	}
	l := &Locker{
		mem:       mem,
		interval:  interval,
		inputText: inputText,
		addrs:     slices.Clone(addrs),
	}
	go l.run()
	return l
}

// SetTarget updates the value text and address list the locker
// rewrites on its next tick.
func (l *Locker) SetTarget(addrs []uint64, inputText string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputText = inputText
	l.addrs = slices.Clone(addrs)
}

func (l *Locker) snapshot() (string, []uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inputText, slices.Clone(l.addrs)
}

func (l *Locker) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for range ticker.C {
		inputText, addrs := l.snapshot()
		val, ok := Parse(inputText)
		if !ok {
			continue
		}
		data := val.ToBytes()
		for _, addr := range addrs {
			if err := l.mem.Write(addr, data); err != nil {
				log.Printf("memscan: lock write to 0x%x failed: %v", addr, err)
			}
		}
	}
}
