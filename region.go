package memscan

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Region is a half-open byte interval within the target's address
// space.
type Region struct {
	Start uint64
	End   uint64
}

// Size returns the region's byte length.
func (r Region) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// RegionGroup is a named collection of regions sharing a backing
// label (a maps-file pathname, or a synthetic label such as [heap]).
// Enabled controls inclusion in first-scan's target region list.
type RegionGroup struct {
	Name    string
	Enabled bool
	Regions []Region
}

// anonymousLabel is used for maps entries with no trailing pathname.
const anonymousLabel = "[Anonymous]"

// LoadMaps parses the per-process maps pseudo-file for pid, grouping
// readable regions by backing name and ordering the groups per the
// scan engine's deterministic precedence: [Anonymous] first, then
// [heap], then other bracketed synthetic names lexically, then
// non-bracketed names lexically.
//
// LoadMaps does not require the foreign-memory handle to be attached.
func LoadMaps(pid int32) ([]RegionGroup, error) {
	if pid <= 0 {
		return nil, nil
	}
	return loadMapsFromPath(mapsPath(pid))
}

// loadMapsFromPath does the actual parsing, split out from LoadMaps so
// the maps-file grammar can be exercised in tests against a plain
// file instead of a live /proc entry.
func loadMapsFromPath(path string) ([]RegionGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError(IoError, err)
	}
	defer f.Close()

	byName := make(map[string][]Region)
	order := []string{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			continue
		}
		if !strings.Contains(fields[1], "r") {
			continue
		}
		start, err := strconv.ParseUint(bounds[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(bounds[1], 16, 64)
		if err != nil {
			continue
		}
		if end <= start {
			continue
		}
		name := anonymousLabel
		if len(fields) >= 6 {
			name = strings.Join(fields[5:], " ")
		}
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = append(byName[name], Region{Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapError(IoError, err)
	}

	groups := make([]RegionGroup, 0, len(order))
	for _, name := range order {
		groups = append(groups, RegionGroup{Name: name, Enabled: true, Regions: byName[name]})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groupLess(groups[i].Name, groups[j].Name)
	})
	return groups, nil
}

// groupLess implements the region-group ordering precedence described
// in spec §4.2 / §8 ("Region ordering").
func groupLess(a, b string) bool {
	if a == b {
		return false
	}
	switch {
	case a == anonymousLabel:
		return true
	case b == anonymousLabel:
		return false
	case a == "[heap]":
		return true
	case b == "[heap]":
		return false
	}
	aBracket := strings.HasPrefix(a, "[")
	bBracket := strings.HasPrefix(b, "[")
	if aBracket && !bBracket {
		return true
	}
	if !aBracket && bBracket {
		return false
	}
	return a < b
}

// SelectRegions resolves the first-scan target region list: if focus
// is set, only the regions of the group with that name are used, and
// only if that group is enabled (a disabled focused group yields no
// regions); otherwise the union of all enabled groups' regions is
// used, in stored order.
func SelectRegions(groups []RegionGroup, focus *string) []Region {
	var regions []Region
	for _, g := range groups {
		if !g.Enabled {
			continue
		}
		if focus != nil {
			if g.Name == *focus {
				regions = append(regions, g.Regions...)
			}
			continue
		}
		regions = append(regions, g.Regions...)
	}
	return regions
}

func mapsPath(pid int32) string {
	return "/proc/" + strconv.FormatInt(int64(pid), 10) + "/maps"
}

func memPath(pid int32) string {
	return "/proc/" + strconv.FormatInt(int64(pid), 10) + "/mem"
}
