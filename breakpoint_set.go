package mdb

import (
	"fmt"
	"sort"
)

// ErrBreakpointExists is returned when a breakpoint is already set at an
// address.
var ErrBreakpointExists = fmt.Errorf("breakpoint already exists at address")

// BreakpointSet owns the debugger's map from runtime address to
// Breakpoint. At most one Breakpoint may exist per address.
type BreakpointSet struct {
	debugger *Debugger
	byAddr   map[VirtualAddress]*Breakpoint
}

func newBreakpointSet(debugger *Debugger) *BreakpointSet {
	return &BreakpointSet{
		debugger: debugger,
		byAddr:   map[VirtualAddress]*Breakpoint{},
	}
}

// Get returns the breakpoint at addr, if any.
func (set *BreakpointSet) Get(addr VirtualAddress) (*Breakpoint, bool) {
	bp, ok := set.byAddr[addr]
	return bp, ok
}

// Set constructs, enables, and inserts a new breakpoint at addr. It fails
// if a breakpoint already exists there.
func (set *BreakpointSet) Set(addr VirtualAddress) (*Breakpoint, error) {
	if _, ok := set.byAddr[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBreakpointExists, addr)
	}

	bp := newBreakpoint(set.debugger, addr)
	err := bp.Enable()
	if err != nil {
		return nil, err
	}

	set.byAddr[addr] = bp
	return bp, nil
}

// Remove disables (if enabled) and erases the breakpoint at addr.
func (set *BreakpointSet) Remove(addr VirtualAddress) error {
	bp, ok := set.byAddr[addr]
	if !ok {
		return fmt.Errorf("no breakpoint at %s", addr)
	}

	if bp.IsEnabled() {
		err := bp.Disable()
		if err != nil {
			return err
		}
	}

	delete(set.byAddr, addr)
	return nil
}

// List returns every breakpoint, ordered by address.
func (set *BreakpointSet) List() []*Breakpoint {
	result := make([]*Breakpoint, 0, len(set.byAddr))
	for _, bp := range set.byAddr {
		result = append(result, bp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].address < result[j].address
	})
	return result
}
