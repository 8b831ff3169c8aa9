package mdb

import (
	"reflect"
	"syscall"
	"testing"
)

func TestRegisterTablePositionalLayout(t *testing.T) {
	var regs syscall.PtraceRegs
	structType := reflect.TypeOf(regs)

	for i, desc := range registerTable {
		field, ok := structType.FieldByName(desc.field)
		if !ok {
			t.Fatalf("descriptor %q: field %q does not exist on syscall.PtraceRegs", desc.Name, desc.field)
		}

		wordSize := reflect.TypeOf(uint64(0)).Size()
		wantOffset := uintptr(i) * wordSize
		if field.Offset != wantOffset {
			t.Errorf(
				"descriptor %d (%s): offset %d does not match table position (want %d)",
				i, desc.Name, field.Offset, wantOffset)
		}
	}
}

func TestByName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"rip", true},
		{"rax", true},
		{"rbp", true},
		{"not-a-register", false},
	}

	for _, c := range cases {
		_, ok := ByName(c.name)
		if ok != c.want {
			t.Errorf("ByName(%q) ok = %v, want %v", c.name, ok, c.want)
		}
	}
}

func TestByDwarfNumber(t *testing.T) {
	desc, ok := ByDwarfNumber(0)
	if !ok || desc.Name != "rax" {
		t.Errorf("ByDwarfNumber(0) = %+v, %v, want rax, true", desc, ok)
	}

	_, ok = ByDwarfNumber(999)
	if ok {
		t.Errorf("ByDwarfNumber(999) unexpectedly found a descriptor")
	}
}

func TestFormatHex(t *testing.T) {
	got := FormatHex(0x2a)
	want := "0x000000000000002a"
	if got != want {
		t.Errorf("FormatHex(0x2a) = %q, want %q", got, want)
	}
}

func TestParseHexOrDecimal(t *testing.T) {
	cases := []struct {
		input string
		want  uint64
	}{
		{"0x2a", 42},
		{"0X2A", 42},
		{"42", 42},
		{"0", 0},
	}

	for _, c := range cases {
		got, err := ParseHexOrDecimal(c.input)
		if err != nil {
			t.Errorf("ParseHexOrDecimal(%q) returned error: %v", c.input, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseHexOrDecimal(%q) = %d, want %d", c.input, got, c.want)
		}
	}

	if _, err := ParseHexOrDecimal("not-a-number"); err == nil {
		t.Error("ParseHexOrDecimal(\"not-a-number\") expected an error, got nil")
	}
}
