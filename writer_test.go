package memscan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddressSetStopsOnFirstError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem")
	initial := make([]byte, 16)
	putInt32(initial, 0, 0)
	putInt32(initial, 8, 0)
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	mem := newAttachedForeignMemory(int(f.Fd()))

	const unwritable = ^uint64(0) // casts to a negative pwrite offset, forcing EINVAL
	addrs := []uint64{0, unwritable, 8}

	err = AddressSet(mem, "i32:1234", addrs)
	if err == nil {
		t.Fatalf("expected an error from the unwritable address")
	}

	got, readErr := mem.Read(0, 4)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if FromBytes(got, TagInt32).Int32() != 1234 {
		t.Fatalf("address preceding the failure should have been written, got %v", got)
	}

	got, readErr = mem.Read(8, 4)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if FromBytes(got, TagInt32).Int32() != 0 {
		t.Fatalf("address following the failure must be untouched, got %v", got)
	}
}

func TestAddressSetBadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, 4), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	mem := newAttachedForeignMemory(int(f.Fd()))

	if err := AddressSet(mem, "not-a-value:::", []uint64{0}); err == nil {
		t.Fatalf("expected BadValue error")
	}
}

func TestLockerClonesAndUpdatesTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, 16), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	mem := newAttachedForeignMemory(int(f.Fd()))

	addrs := []uint64{0, 8}
	l := NewLocker(mem, addrs, "i32:1", 0)
	if l.interval != defaultLockInterval {
		t.Fatalf("interval <= 0 should select defaultLockInterval, got %v", l.interval)
	}

	addrs[0] = 999 // mutating the caller's slice must not affect the locker's clone
	text, got := l.snapshot()
	if text != "i32:1" || got[0] != 0 || got[1] != 8 {
		t.Fatalf("snapshot() = %q, %v, want independent clone of original target", text, got)
	}

	l.SetTarget([]uint64{4}, "i32:2")
	text, got = l.snapshot()
	if text != "i32:2" || len(got) != 1 || got[0] != 4 {
		t.Fatalf("snapshot() after SetTarget = %q, %v", text, got)
	}
}
