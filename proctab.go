package memscan

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// ProcessInfo pairs a PID with the short command name /proc reports
// for it.
type ProcessInfo struct {
	PID  int32
	Comm string
}

// ListProcesses scans /proc for numeric entries and reads each one's
// comm file, returning the live process table sorted by name then
// PID. It is pure data: the process-picker UI built on top of it is
// an external collaborator.
func ListProcesses() []ProcessInfo {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var procs []ProcessInfo
	for _, e := range entries {
		pid, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		comm, err := os.ReadFile("/proc/" + e.Name() + "/comm")
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(comm))
		if name == "" {
			continue
		}
		procs = append(procs, ProcessInfo{PID: int32(pid), Comm: name})
	}
	sort.Slice(procs, func(i, j int) bool {
		if procs[i].Comm != procs[j].Comm {
			return procs[i].Comm < procs[j].Comm
		}
		return procs[i].PID < procs[j].PID
	})
	return procs
}
