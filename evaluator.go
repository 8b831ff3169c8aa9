package mdb

import (
	"fmt"
)

// evaluationContext adapts a debugger's live register and memory state to
// the dwarfeval.Host interface, so a DWARF location expression resolves
// against wherever the current stack frame actually put the value.
type evaluationContext struct {
	db  *Debugger
	rbp uint64
}

func newEvaluationContext(db *Debugger) (*evaluationContext, error) {
	rbp, ok := ByName("rbp")
	if !ok {
		panic("should never happen: rbp missing from register table")
	}

	value, err := db.Registers.Read(rbp)
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation context: %w", err)
	}

	return &evaluationContext{db: db, rbp: value}, nil
}

func (ctx *evaluationContext) Register(dwarfNum int) (uint64, error) {
	return ctx.db.Registers.ReadByDwarfNumber(dwarfNum)
}

// FrameBase approximates DW_AT_frame_base / DW_OP_call_frame_cfa as
// rbp+16: past a standard `push rbp; mov rbp, rsp` prologue, the
// Canonical Frame Address is the caller's rsp at the call instruction,
// which sits 8 bytes above the return address (at rbp+8), which in turn
// sits 8 bytes above the saved rbp (at rbp). This does not hold for frame-pointer-omitted code, the same
// limitation the backtrace walker carries.
func (ctx *evaluationContext) FrameBase() (uint64, error) {
	return ctx.rbp + 16, nil
}

func (ctx *evaluationContext) DerefWord(addr uint64) (uint64, error) {
	value, err := ctx.db.ReadWord(VirtualAddress(addr))
	if err != nil {
		return 0, fmt.Errorf("failed to dereference address %#x: %w", addr, err)
	}
	return value, nil
}

// ProgramCounter exposes this frame's PC in DWARF space.
func (ctx *evaluationContext) ProgramCounter() (uint64, error) {
	pc, err := ctx.db.ProgramCounter()
	if err != nil {
		return 0, err
	}
	return ctx.db.Navigator.ToDwarf(pc), nil
}
