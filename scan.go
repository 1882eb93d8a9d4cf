package memscan

import (
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash"
)

// candidate is the value a scan recorded at an address, together with
// the tag it was last decoded as.
type candidate struct {
	value Value
	tag   Tag
}

// regionMemo memoizes a region's decoded candidates for a given byte
// content and tag list, so an unchanged region need not be re-walked
// on a later FirstScan. It is a pure cache: a hash or tag-list
// mismatch simply falls back to a full decode.
type regionMemo struct {
	hash    uint64
	tagsKey string
	decoded map[uint64]candidate
}

// Engine is a scan session: the append-only history of candidate
// maps, the sorted key set of the most recent entry (Results), and
// the foreign-memory handle it reads/writes through.
//
// Engine is not safe for concurrent use by multiple goroutines other
// than through AddressSet/Locker, which write through ForeignMemory
// and re-acquire its mutex per address so the foreground and a
// background lock task can interleave.
type Engine struct {
	mem *ForeignMemory

	mu      sync.Mutex
	history []map[uint64]candidate
	results []uint64
	lastErr string

	regionMemos map[Region]regionMemo
}

// NewEngine returns a scan engine bound to mem with an empty history.
func NewEngine(mem *ForeignMemory) *Engine {
	return &Engine{mem: mem, regionMemos: make(map[Region]regionMemo)}
}

// Memory returns the engine's foreign-memory handle, so a UI
// collaborator can drive Attach/Detach directly.
func (e *Engine) Memory() *ForeignMemory { return e.mem }

// LastError returns the most recently recorded error string, or "" if
// none is pending. The UI collaborator reads, displays, and may clear
// it with ClearError.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ClearError clears the pending error string.
func (e *Engine) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = ""
}

// Results returns a copy of the most recent history entry's sorted
// key set, or an empty slice if no scan has run.
func (e *Engine) Results() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint64, len(e.results))
	copy(out, e.results)
	return out
}

// HistoryLen reports the number of entries in the scan history.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

func tagsSignature(tags []Tag) string {
	var sb strings.Builder
	for i, t := range tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.String())
	}
	return sb.String()
}

func (e *Engine) setErr(err error) error {
	e.mu.Lock()
	e.lastErr = err.Error()
	e.mu.Unlock()
	return err
}

// resolveTags picks type_override if present, else ScanTypes(input).
func resolveTags(input Value, override *Tag) []Tag {
	if override != nil {
		return []Tag{*override}
	}
	return ScanTypes(input)
}

// decodeRegion walks region in strides of each tag's size (aligned to
// region.Start), returning the address→candidate map for that region
// alone. Multiple tags may produce the same address; later tags in
// the tags slice win, matching the scan engine's ordering guarantee.
func decodeRegion(region Region, buf []byte, tags []Tag, exactInput *Value) map[uint64]candidate {
	out := make(map[uint64]candidate)
	for _, t := range tags {
		size := TypeSize(t)
		if size == 0 {
			continue
		}
		for i := 0; i+size <= len(buf); i += size {
			addr := region.Start + uint64(i)
			v := FromBytes(buf[i:i+size], t)
			if exactInput != nil {
				if !v.Equals(*exactInput) {
					continue
				}
			}
			out[addr] = candidate{value: v, tag: t}
		}
	}
	return out
}

// decodeRegionMemoized wraps decodeRegion with the xxhash-keyed memo
// described in SPEC_FULL §4.4: an unchanged (bytes, tags) pair skips
// the stride-walk and reuses the previous decode.
func (e *Engine) decodeRegionMemoized(region Region, buf []byte, tags []Tag, exactInput *Value) map[uint64]candidate {
	// The memo only applies to the baseline's unconditional recording
	// path; an Exact-mode first scan filters by input and is cheap
	// enough (and input-dependent enough) not to bother memoizing.
	if exactInput != nil {
		return decodeRegion(region, buf, tags, exactInput)
	}

	key := tagsSignature(tags)
	hash := xxhash.Sum64(buf)

	e.mu.Lock()
	memo, ok := e.regionMemos[region]
	e.mu.Unlock()
	if ok && memo.hash == hash && memo.tagsKey == key {
		return memo.decoded
	}

	decoded := decodeRegion(region, buf, tags, nil)

	e.mu.Lock()
	e.regionMemos[region] = regionMemo{hash: hash, tagsKey: key, decoded: decoded}
	e.mu.Unlock()
	return decoded
}

// FirstScan parses value_text under mode, resolves the target region
// list (focus, or the union of enabled groups), and records a fresh
// baseline. It clears any prior history: this IS the first scan.
func (e *Engine) FirstScan(groups []RegionGroup, focus *string, valueText string, mode Mode, typeOverride *Tag) error {
	input, ok := Parse(valueText)
	if !ok {
		return e.setErr(newError(BadValue, "could not parse value %q", valueText))
	}
	tags := resolveTags(input, typeOverride)
	regions := SelectRegions(groups, focus)
	if len(regions) == 0 {
		return e.setErr(newError(NoRegions, "no enabled region groups"))
	}

	var exactInput *Value
	if mode == ModeExact {
		exactInput = &input
	}

	baseline := make(map[uint64]candidate)
	for _, region := range regions {
		size := region.Size()
		if size == 0 {
			continue
		}
		buf, err := e.mem.Read(region.Start, int(size))
		if err != nil {
			// Per-region read failures are swallowed: the region
			// contributes zero candidates. Per-page unreadability is
			// common in practice.
			continue
		}
		for addr, c := range e.decodeRegionMemoized(region, buf, tags, exactInput) {
			baseline[addr] = c
		}
	}

	keys := sortedKeys(baseline)
	e.mu.Lock()
	e.history = []map[uint64]candidate{baseline}
	e.results = keys
	e.lastErr = ""
	e.mu.Unlock()
	return nil
}

// NextScan refines the most recent history entry. If history is
// empty it delegates to FirstScan over every enabled group with no
// focus, matching spec §4.4 step 1.
func (e *Engine) NextScan(groups []RegionGroup, valueText string, mode Mode, typeOverride *Tag) error {
	e.mu.Lock()
	empty := len(e.history) == 0
	e.mu.Unlock()
	if empty {
		return e.FirstScan(groups, nil, valueText, mode, typeOverride)
	}

	input, ok := Parse(valueText)
	if !ok {
		return e.setErr(newError(BadValue, "could not parse value %q", valueText))
	}
	tags := resolveTags(input, typeOverride)

	e.mu.Lock()
	prev := e.history[len(e.history)-1]
	e.mu.Unlock()

	next := make(map[uint64]candidate, len(prev))
	for addr, prevCand := range prev {
		for _, t := range tags {
			size := TypeSize(t)
			if size == 0 {
				continue
			}
			buf, err := e.mem.Read(addr, size)
			if err != nil {
				// Per-address read failures drop that candidate,
				// equivalent to the comparator returning false.
				continue
			}
			newVal := FromBytes(buf, t)
			if Comparator(mode, prevCand.value, newVal, input) {
				next[addr] = candidate{value: newVal, tag: t}
			}
		}
	}

	keys := sortedKeys(next)
	e.mu.Lock()
	e.history = append(e.history, next)
	e.results = keys
	e.lastErr = ""
	e.mu.Unlock()
	return nil
}

// PreviousScan pops the most recent history entry, provided at least
// two remain (the baseline is never popped), and restores Results to
// the new last entry's key set.
func (e *Engine) PreviousScan() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) < 2 {
		return
	}
	e.history = e.history[:len(e.history)-1]
	e.results = sortedKeys(e.history[len(e.history)-1])
}

// Reset discards all history and results.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.results = nil
	e.regionMemos = make(map[Region]regionMemo)
}

// ValueAt returns the candidate value and tag recorded for addr in
// the current result set, if any.
func (e *Engine) ValueAt(addr uint64) (Value, Tag, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return Value{}, 0, false
	}
	c, ok := e.history[len(e.history)-1][addr]
	return c.value, c.tag, ok
}

func sortedKeys(m map[uint64]candidate) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
