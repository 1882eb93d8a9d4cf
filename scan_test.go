package memscan

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestMemory(t *testing.T, content []byte) *ForeignMemory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return newAttachedForeignMemory(int(f.Fd()))
}

func TestEngineExactFirstScan(t *testing.T) {
	buf := make([]byte, 16)
	putInt32(buf, 0, 1234)
	putInt32(buf, 4, 999)
	putInt32(buf, 8, 1234)
	putInt32(buf, 12, 777)

	mem := newTestMemory(t, buf)
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: true, Regions: []Region{{Start: 0, End: 16}}}}

	if err := engine.FirstScan(groups, nil, "i32:1234", ModeExact, nil); err != nil {
		t.Fatalf("FirstScan: %v", err)
	}
	if got, want := engine.Results(), []uint64{0, 8}; !equalUint64(got, want) {
		t.Fatalf("Results() = %v, want %v", got, want)
	}
	if engine.HistoryLen() != 1 {
		t.Fatalf("HistoryLen() = %d, want 1", engine.HistoryLen())
	}
}

func TestEngineNextScanIncreasedAndUndo(t *testing.T) {
	buf := make([]byte, 16)
	putInt32(buf, 0, 1234)
	putInt32(buf, 4, 999)
	putInt32(buf, 8, 1234)
	putInt32(buf, 12, 777)

	mem := newTestMemory(t, buf)
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: true, Regions: []Region{{Start: 0, End: 16}}}}

	if err := engine.FirstScan(groups, nil, "i32:1234", ModeExact, nil); err != nil {
		t.Fatalf("FirstScan: %v", err)
	}

	grown := make([]byte, 4)
	putInt32(grown, 0, 2000)
	if err := mem.Write(0, grown); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := engine.NextScan(groups, "i32:0", ModeIncreased, nil); err != nil {
		t.Fatalf("NextScan: %v", err)
	}
	if got, want := engine.Results(), []uint64{0}; !equalUint64(got, want) {
		t.Fatalf("Results() after increase = %v, want %v", got, want)
	}
	if engine.HistoryLen() != 2 {
		t.Fatalf("HistoryLen() = %d, want 2", engine.HistoryLen())
	}

	engine.PreviousScan()
	if got, want := engine.Results(), []uint64{0, 8}; !equalUint64(got, want) {
		t.Fatalf("Results() after PreviousScan = %v, want %v", got, want)
	}
	if engine.HistoryLen() != 1 {
		t.Fatalf("HistoryLen() after PreviousScan = %d, want 1", engine.HistoryLen())
	}

	engine.PreviousScan()
	if engine.HistoryLen() != 1 {
		t.Fatalf("PreviousScan must never pop the baseline, HistoryLen() = %d", engine.HistoryLen())
	}
}

func TestEngineNextScanWithEmptyHistoryDelegatesToFirstScan(t *testing.T) {
	buf := make([]byte, 8)
	putInt32(buf, 0, 42)
	mem := newTestMemory(t, buf)
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: true, Regions: []Region{{Start: 0, End: 8}}}}

	if err := engine.NextScan(groups, "i32:42", ModeExact, nil); err != nil {
		t.Fatalf("NextScan on empty history: %v", err)
	}
	if engine.HistoryLen() != 1 {
		t.Fatalf("HistoryLen() = %d, want 1 (delegated first scan)", engine.HistoryLen())
	}
	if got, want := engine.Results(), []uint64{0}; !equalUint64(got, want) {
		t.Fatalf("Results() = %v, want %v", got, want)
	}
}

func TestEngineResetClearsHistoryAndResults(t *testing.T) {
	buf := make([]byte, 4)
	putInt32(buf, 0, 5)
	mem := newTestMemory(t, buf)
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: true, Regions: []Region{{Start: 0, End: 4}}}}

	if err := engine.FirstScan(groups, nil, "i32:5", ModeExact, nil); err != nil {
		t.Fatalf("FirstScan: %v", err)
	}
	engine.Reset()
	if engine.HistoryLen() != 0 || len(engine.Results()) != 0 {
		t.Fatalf("Reset did not clear engine state")
	}
}

func TestEngineValueAt(t *testing.T) {
	buf := make([]byte, 4)
	putInt32(buf, 0, 77)
	mem := newTestMemory(t, buf)
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: true, Regions: []Region{{Start: 0, End: 4}}}}

	if err := engine.FirstScan(groups, nil, "i32:77", ModeExact, nil); err != nil {
		t.Fatalf("FirstScan: %v", err)
	}
	v, tag, ok := engine.ValueAt(0)
	if !ok || tag != TagInt32 || v.Int32() != 77 {
		t.Fatalf("ValueAt(0) = %+v, %v, %v", v, tag, ok)
	}
	if _, _, ok := engine.ValueAt(4); ok {
		t.Fatalf("ValueAt(4) should not be present")
	}
}

func TestEngineFirstScanNoEnabledGroups(t *testing.T) {
	mem := newTestMemory(t, make([]byte, 4))
	engine := NewEngine(mem)
	groups := []RegionGroup{{Name: "r", Enabled: false, Regions: []Region{{Start: 0, End: 4}}}}
	if err := engine.FirstScan(groups, nil, "i32:0", ModeExact, nil); err == nil {
		t.Fatalf("expected NoRegions error with no enabled groups")
	}
	if engine.LastError() == "" {
		t.Fatalf("expected LastError to be set")
	}
	engine.ClearError()
	if engine.LastError() != "" {
		t.Fatalf("ClearError did not clear")
	}
}

func putInt32(buf []byte, offset int, v int32) {
	b := Int32Value(v).ToBytes()
	copy(buf[offset:], b)
}

func equalUint64(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
