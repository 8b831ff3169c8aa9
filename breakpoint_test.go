package mdb

import (
	"testing"
)

// entryPointRuntimeAddress resolves the runtime address /bin/sleep will
// execute its very first instruction at, in a debugger built the same way
// StartCmdAndAttachTo builds one (ASLR disabled, load bias read from
// /proc/<pid>/maps), the same technique initialiseLoadBias itself uses.
func entryPointRuntimeAddress(t *testing.T, pid int) VirtualAddress {
	t.Helper()

	entry, err := getEntryPointAddress("/bin/sleep")
	if err != nil {
		t.Fatalf("failed to read ELF entry point: %v", err)
	}

	base, err := firstMappedAddress(pid)
	if err != nil {
		t.Fatalf("failed to read load base: %v", err)
	}

	return VirtualAddress(base + entry)
}

func TestBreakpointEnableDisableRestoresByte(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	addr := entryPointRuntimeAddress(t, db.Pid)

	original, err := db.readByte(addr)
	if err != nil {
		t.Fatalf("failed to read original byte: %v", err)
	}

	bp, err := db.Breakpoints.Set(addr)
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !bp.IsEnabled() {
		t.Fatal("expected breakpoint to be enabled after Set")
	}

	patched, err := db.readByte(addr)
	if err != nil {
		t.Fatalf("failed to read patched byte: %v", err)
	}
	if patched != int3Instruction {
		t.Errorf("byte at breakpoint address = %#x, want %#x (INT3)", patched, int3Instruction)
	}

	if err := db.Breakpoints.Remove(addr); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	restored, err := db.readByte(addr)
	if err != nil {
		t.Fatalf("failed to read restored byte: %v", err)
	}
	if restored != original {
		t.Errorf("byte after Remove = %#x, want original %#x", restored, original)
	}
}

func TestBreakpointSetDuplicateFails(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	addr := entryPointRuntimeAddress(t, db.Pid)

	if _, err := db.Breakpoints.Set(addr); err != nil {
		t.Fatalf("first Set returned error: %v", err)
	}
	if _, err := db.Breakpoints.Set(addr); err == nil {
		t.Fatal("expected second Set at the same address to fail")
	}
}

func TestBreakpointListIsSortedByAddress(t *testing.T) {
	db, err := StartCmdAndAttachTo("/bin/sleep", "30")
	if err != nil {
		t.Fatalf("StartCmdAndAttachTo returned error: %v", err)
	}
	defer db.Close()

	base := entryPointRuntimeAddress(t, db.Pid)
	high := base + 0x100
	low := base

	if _, err := db.Breakpoints.Set(high); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := db.Breakpoints.Set(low); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	list := db.Breakpoints.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d breakpoints, want 2", len(list))
	}
	if list[0].Address() != low || list[1].Address() != high {
		t.Errorf("List() = [%s, %s], want sorted [%s, %s]", list[0].Address(), list[1].Address(), low, high)
	}
}
