package mdb

import "fmt"

// int3Instruction is the x86-64 software-interrupt opcode (INT3) used to
// implement software breakpoints: the CPU traps with SIGTRAP when it
// executes this byte.
const int3Instruction = byte(0xcc)

// VirtualAddress is a runtime address as observed in the live tracee (the
// program counter, memory addresses returned by ptrace, and so on).
type VirtualAddress uint64

func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%x", uint64(addr))
}

// ParseVirtualAddress parses a "0x"-prefixed hex literal or a bare decimal
// literal into a VirtualAddress.
func ParseVirtualAddress(value string) (VirtualAddress, error) {
	v, err := ParseHexOrDecimal(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse address (%s): %w", value, err)
	}
	return VirtualAddress(v), nil
}

// Breakpoint is a single-address software breakpoint. When enabled, the
// byte at Address in the tracee's memory equals the INT3 opcode; when
// disabled, it equals the saved original byte.
//
// A freshly constructed Breakpoint is disabled and has no saved byte:
// Enable must be called before Disable is meaningful. Calling Enable on
// an already-enabled breakpoint does nothing, so the saved byte is never
// overwritten with the INT3 opcode itself.
type Breakpoint struct {
	debugger *Debugger

	address VirtualAddress

	enabled    bool
	savedByte  byte
	hasEnabled bool // Disable is only meaningful once Enable has run at least once
}

func newBreakpoint(debugger *Debugger, address VirtualAddress) *Breakpoint {
	return &Breakpoint{
		debugger: debugger,
		address:  address,
	}
}

func (bp *Breakpoint) Address() VirtualAddress {
	return bp.address
}

func (bp *Breakpoint) IsEnabled() bool {
	return bp.enabled
}

// Enable reads the byte at Address, saves it, and overwrites it with
// int3Instruction. The core only ever calls Enable on a newly constructed
// or previously disabled breakpoint; calling it while already enabled
// would clobber the saved byte with 0xcc, so it is a no-op in that case.
func (bp *Breakpoint) Enable() error {
	if bp.enabled {
		return nil
	}

	original, err := bp.debugger.readByte(bp.address)
	if err != nil {
		return fmt.Errorf("failed to enable breakpoint at %s: %w", bp.address, err)
	}

	err = bp.debugger.writeByte(bp.address, int3Instruction)
	if err != nil {
		return fmt.Errorf("failed to enable breakpoint at %s: %w", bp.address, err)
	}

	bp.savedByte = original
	bp.hasEnabled = true
	bp.enabled = true
	return nil
}

// Disable restores the saved original byte at Address.
func (bp *Breakpoint) Disable() error {
	if !bp.enabled {
		return nil
	}

	if !bp.hasEnabled {
		return fmt.Errorf(
			"cannot disable breakpoint at %s: never enabled", bp.address)
	}

	err := bp.debugger.writeByte(bp.address, bp.savedByte)
	if err != nil {
		return fmt.Errorf("failed to disable breakpoint at %s: %w", bp.address, err)
	}

	bp.enabled = false
	return nil
}
