package mdb

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Alan998/mini-debugger/ptrace"
)

// ErrUnknownRegister is returned when a DWARF register number or a register
// name does not resolve to a RegisterDescriptor.
var ErrUnknownRegister = fmt.Errorf("unknown register")

// RegisterDescriptor is a single entry of the register file's static
// descriptor table: an architectural register, its DWARF register number
// (or -1 if DWARF never refers to it directly), its display name, and the
// name of the field it occupies within syscall.PtraceRegs.
//
// The table's positional order matches the kernel's user_regs_struct
// layout on linux/amd64 exactly. RegisterFile.Read/Write fetch the whole
// block in one syscall and pick the word out of it by the descriptor's
// field name.
type RegisterDescriptor struct {
	Name    string
	DwarfId int // -1 if this register has no DWARF number

	field string // syscall.PtraceRegs field name
}

// registerTable lists the general-purpose registers in the same order as
// syscall.PtraceRegs on linux/amd64, together with the DWARF register
// numbers assigned by the System V x86-64 ABI. Entry i names the field
// at byte offset i*8 of the kernel user_regs_struct block, and `register
// dump` lists the registers in this order.
var registerTable = []RegisterDescriptor{
	{Name: "r15", DwarfId: 15, field: "R15"},
	{Name: "r14", DwarfId: 14, field: "R14"},
	{Name: "r13", DwarfId: 13, field: "R13"},
	{Name: "r12", DwarfId: 12, field: "R12"},
	{Name: "rbp", DwarfId: 6, field: "Rbp"},
	{Name: "rbx", DwarfId: 3, field: "Rbx"},
	{Name: "r11", DwarfId: 11, field: "R11"},
	{Name: "r10", DwarfId: 10, field: "R10"},
	{Name: "r9", DwarfId: 9, field: "R9"},
	{Name: "r8", DwarfId: 8, field: "R8"},
	{Name: "rax", DwarfId: 0, field: "Rax"},
	{Name: "rcx", DwarfId: 2, field: "Rcx"},
	{Name: "rdx", DwarfId: 1, field: "Rdx"},
	{Name: "rsi", DwarfId: 4, field: "Rsi"},
	{Name: "rdi", DwarfId: 5, field: "Rdi"},
	{Name: "orig_rax", DwarfId: -1, field: "Orig_rax"},
	{Name: "rip", DwarfId: 16, field: "Rip"},
	{Name: "cs", DwarfId: 51, field: "Cs"},
	{Name: "eflags", DwarfId: 49, field: "Eflags"},
	{Name: "rsp", DwarfId: 7, field: "Rsp"},
	{Name: "ss", DwarfId: 52, field: "Ss"},
	{Name: "fs_base", DwarfId: 58, field: "Fs_base"},
	{Name: "gs_base", DwarfId: 59, field: "Gs_base"},
	{Name: "ds", DwarfId: 53, field: "Ds"},
	{Name: "es", DwarfId: 50, field: "Es"},
	{Name: "fs", DwarfId: 54, field: "Fs"},
	{Name: "gs", DwarfId: 55, field: "Gs"},
}

// RegisterFile reads and writes the tracee's general-purpose register
// block via ptrace, addressing individual registers by their field within
// that block rather than by issuing one syscall per register.
type RegisterFile struct {
	tracer *ptrace.Tracer
}

func newRegisterFile(tracer *ptrace.Tracer) *RegisterFile {
	return &RegisterFile{tracer: tracer}
}

// Descriptors returns the full register descriptor table, in kernel block
// order.
func (rf *RegisterFile) Descriptors() []RegisterDescriptor {
	return registerTable
}

// ByName looks up a descriptor by its display name.
func ByName(name string) (RegisterDescriptor, bool) {
	for _, d := range registerTable {
		if d.Name == name {
			return d, true
		}
	}
	return RegisterDescriptor{}, false
}

// ByDwarfNumber looks up a descriptor by its DWARF register number.
func ByDwarfNumber(dwarfId int) (RegisterDescriptor, bool) {
	for _, d := range registerTable {
		if d.DwarfId == dwarfId {
			return d, true
		}
	}
	return RegisterDescriptor{}, false
}

func fieldValue(regs *ptrace.UserRegs, field string) uint64 {
	return reflect.ValueOf(*regs).FieldByName(field).Uint()
}

func setFieldValue(regs *ptrace.UserRegs, field string, value uint64) {
	reflect.ValueOf(regs).Elem().FieldByName(field).SetUint(value)
}

// Read fetches the whole general-purpose register block and returns the
// word at desc's position within it.
func (rf *RegisterFile) Read(desc RegisterDescriptor) (uint64, error) {
	regs, err := rf.tracer.GetRegisters()
	if err != nil {
		return 0, fmt.Errorf("failed to read register %s: %w", desc.Name, err)
	}
	return fieldValue(regs, desc.field), nil
}

// Write fetches the register block, overwrites the word at desc's
// position, and writes the block back.
func (rf *RegisterFile) Write(desc RegisterDescriptor, value uint64) error {
	regs, err := rf.tracer.GetRegisters()
	if err != nil {
		return fmt.Errorf("failed to write register %s: %w", desc.Name, err)
	}

	setFieldValue(regs, desc.field, value)

	err = rf.tracer.SetRegisters(regs)
	if err != nil {
		return fmt.Errorf("failed to write register %s: %w", desc.Name, err)
	}
	return nil
}

// ReadByDwarfNumber locates the descriptor whose DWARF register number
// equals dwarfId and reads it.
func (rf *RegisterFile) ReadByDwarfNumber(dwarfId int) (uint64, error) {
	desc, ok := ByDwarfNumber(dwarfId)
	if !ok {
		return 0, fmt.Errorf("%w: dwarf register %d", ErrUnknownRegister, dwarfId)
	}
	return rf.Read(desc)
}

// FormatHex renders a register value as a 16-hex-digit zero-padded string,
// the format the "register dump" command prints each register in.
func FormatHex(value uint64) string {
	return fmt.Sprintf("0x%016x", value)
}

// ParseHexOrDecimal parses either a "0x"-prefixed hex literal or a decimal
// value, the format used by "register write" and address arguments.
func ParseHexOrDecimal(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	base := 10
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		value = value[2:]
		base = 16
	}
	return strconv.ParseUint(value, base, 64)
}
