package mdb

import (
	"debug/elf"
	"testing"
)

func TestToRuntimeToDwarfRoundTrip(t *testing.T) {
	nav := &Navigator{loadBias: 0x555500000000}

	cases := []uint64{0, 0x401150, 0xdeadbeef}
	for _, dwarfAddr := range cases {
		runtime := nav.ToRuntime(dwarfAddr)
		back := nav.ToDwarf(runtime)
		if back != dwarfAddr {
			t.Errorf("ToDwarf(ToRuntime(%#x)) = %#x, want %#x", dwarfAddr, back, dwarfAddr)
		}
	}
}

func TestToRuntimeZeroBias(t *testing.T) {
	nav := &Navigator{loadBias: 0}
	if got := nav.ToRuntime(0x401150); got != VirtualAddress(0x401150) {
		t.Errorf("ToRuntime(0x401150) with zero bias = %s, want 0x401150", got)
	}
}

func TestInitialiseLoadBiasNonDynamic(t *testing.T) {
	bias, err := initialiseLoadBias(1, elf.ET_EXEC)
	if err != nil {
		t.Fatalf("initialiseLoadBias returned error: %v", err)
	}
	if bias != 0 {
		t.Errorf("initialiseLoadBias for ET_EXEC = %d, want 0", bias)
	}
}
