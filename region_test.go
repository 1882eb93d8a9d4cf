package memscan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegionOrdering(t *testing.T) {
	content := "" +
		"00400000-00401000 r-xp 00000000 00:00 0                                app\n" +
		"7f0000000000-7f0000001000 rw-p 00000000 00:00 0                          libc.so\n" +
		"7ffe00000000-7ffe00001000 rw-p 00000000 00:00 0                          [stack]\n" +
		"7ffd00000000-7ffd00001000 rw-p 00000000 00:00 0                          [heap]\n" +
		"7ffc00000000-7ffc00001000 rw-p 00000000 00:00 0                          \n"

	path := filepath.Join(t.TempDir(), "maps")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	groups, err := loadMapsFromPath(path)
	if err != nil {
		t.Fatalf("loadMapsFromPath: %v", err)
	}

	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	want := []string{anonymousLabel, "[heap]", "[stack]", "app", "libc.so"}
	if len(names) != len(want) {
		t.Fatalf("group names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("group[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegionDiscardsUnreadableAndDegenerate(t *testing.T) {
	content := "" +
		"00400000-00401000 ---p 00000000 00:00 0                                noread\n" +
		"00500000-00500000 rw-p 00000000 00:00 0                                degenerate\n" +
		"00600000-00601000 rw-p 00000000 00:00 0                                ok\n"

	path := filepath.Join(t.TempDir(), "maps")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	groups, err := loadMapsFromPath(path)
	if err != nil {
		t.Fatalf("loadMapsFromPath: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "ok" {
		t.Fatalf("groups = %+v, want only 'ok'", groups)
	}
}

func TestSelectRegionsFocusRequiresEnabled(t *testing.T) {
	groups := []RegionGroup{
		{Name: "a", Enabled: false, Regions: []Region{{Start: 0, End: 8}}},
		{Name: "b", Enabled: true, Regions: []Region{{Start: 8, End: 16}}},
	}
	focus := "a"
	if got := SelectRegions(groups, &focus); len(got) != 0 {
		t.Fatalf("focused-but-disabled group should yield no regions, got %v", got)
	}
	focus = "b"
	if got := SelectRegions(groups, &focus); len(got) != 1 {
		t.Fatalf("focused enabled group should yield its regions, got %v", got)
	}
	if got := SelectRegions(groups, nil); len(got) != 1 {
		t.Fatalf("union of enabled groups should yield 1 region, got %v", got)
	}
}
