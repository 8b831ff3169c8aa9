package mdb

import (
	"debug/elf"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// getEntryPointAddress reads the ELF entry point out of path using
// debug/elf, the same library the Navigator itself uses.
func getEntryPointAddress(path string) (uint64, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return f.Entry, nil
}

var mapsLineRe = regexp.MustCompile(`^(\w+)-(\w+) `)

// firstMappedAddress returns the low address of the first mapping listed
// in /proc/<pid>/maps, i.e. the value initialiseLoadBias itself computes.
func firstMappedAddress(pid int) (uint64, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		match := mapsLineRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		return strconv.ParseUint(match[1], 16, 64)
	}

	return 0, fmt.Errorf("no mappings found for process %d", pid)
}
