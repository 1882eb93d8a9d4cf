package memscan

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ForeignMemory is the attach/detach state and positioned-I/O handle
// for a target process's memory pseudo-file. The attach state and
// file descriptor form a single shared resource behind one mutex;
// read and write each hold the mutex only for the duration of a
// single positioned pread/pwrite, so a lock task's per-address writes
// can interleave with the foreground's reads.
type ForeignMemory struct {
	mu       sync.Mutex
	pid      int32
	fd       int
	attached bool
}

// NewForeignMemory returns a detached handle for pid. A pid of 0 or
// less is legal (matches the "no target selected" state) and simply
// never attaches.
func NewForeignMemory(pid int32) *ForeignMemory {
	return &ForeignMemory{pid: pid, fd: -1}
}

// newAttachedForeignMemory wraps an already-open, positioned-I/O
// capable file descriptor as an attached handle, bypassing Attach's
// /proc/<pid>/mem open. Used by tests to exercise the scan engine
// against a plain file standing in for a target's address space.
func newAttachedForeignMemory(fd int) *ForeignMemory {
	return &ForeignMemory{fd: fd, attached: true}
}

// PID returns the process identifier this handle targets.
func (m *ForeignMemory) PID() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// SetPID reassigns the target process, implicitly detaching first.
// Reattaching to the same PID while already attached is a no-op.
func (m *ForeignMemory) SetPID(pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid == m.pid {
		return
	}
	m.closeLocked()
	m.pid = pid
}

// Attached reports whether the handle currently holds an open file
// descriptor.
func (m *ForeignMemory) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Attach opens the target's memory pseudo-file for positioned
// read/write. It is idempotent if already attached to the same PID.
func (m *ForeignMemory) Attach() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached {
		return nil
	}
	if m.pid <= 0 {
		return newError(IoError, "no target process selected")
	}
	fd, err := unix.Open(memPath(m.pid), unix.O_RDWR, 0)
	if err != nil {
		return wrapError(IoError, fmt.Errorf("opening memory of pid %d: %w", m.pid, err))
	}
	m.fd = fd
	m.attached = true
	return nil
}

// Detach closes the handle. It always succeeds, matching spec §4.3.
func (m *ForeignMemory) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *ForeignMemory) closeLocked() {
	if m.attached {
		unix.Close(m.fd)
	}
	m.fd = -1
	m.attached = false
}

// Read performs a positioned read of len bytes at addr. It fails with
// NotAttached if detached, IoError on an underlying failure. A read
// that partially straddles an unreadable page fails atomically: no
// partial result is returned.
func (m *ForeignMemory) Read(addr uint64, length int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return nil, newError(NotAttached, "read: handle not attached")
	}
	buf := make([]byte, length)
	n, err := unix.Pread(m.fd, buf, int64(addr))
	if err != nil {
		return nil, wrapError(IoError, fmt.Errorf("pread at 0x%x: %w", addr, err))
	}
	if n != length {
		return nil, wrapError(IoError, fmt.Errorf("pread at 0x%x: short read (%d of %d bytes)", addr, n, length))
	}
	return buf, nil
}

// Write performs a positioned write of data at addr. The byte count
// is never truncated: a short write is reported as an IoError.
func (m *ForeignMemory) Write(addr uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return newError(NotAttached, "write: handle not attached")
	}
	n, err := unix.Pwrite(m.fd, data, int64(addr))
	if err != nil {
		return wrapError(IoError, fmt.Errorf("pwrite at 0x%x: %w", addr, err))
	}
	if n != len(data) {
		return wrapError(IoError, fmt.Errorf("pwrite at 0x%x: short write (%d of %d bytes)", addr, n, len(data)))
	}
	return nil
}
