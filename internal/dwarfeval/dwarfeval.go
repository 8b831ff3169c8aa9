// Package dwarfeval evaluates the small subset of the DWARF expression
// language used by variable location attributes (DW_AT_location,
// DW_AT_frame_base): the byte-code stack machine of DW_OP_* opcodes that
// says where a variable's value lives, either a memory address or a
// register.
//
// This is hand-written rather than borrowed from a library because it is
// the one piece of DWARF consumption mdb treats as core logic; everything
// else about reading ELF/DWARF structure is delegated to debug/elf and
// debug/dwarf.
package dwarfeval

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Host supplies the tracee state an expression may need: a general
// register's current value, the current function's frame base, and a
// word read from tracee memory (DW_OP_deref is not part of the supported
// subset today, but Host carries it for that future extension).
type Host interface {
	Register(dwarfNum int) (uint64, error)
	FrameBase() (uint64, error)
	DerefWord(addr uint64) (uint64, error)
}

// ResultKind classifies what a Location addresses.
type ResultKind int

const (
	// KindAddress means Location.Address is a memory address to read.
	KindAddress ResultKind = iota
	// KindRegister means Location.Register is a DWARF register number
	// holding the value directly; there is nothing to dereference.
	KindRegister
)

// Location is the outcome of evaluating a location expression.
type Location struct {
	Kind     ResultKind
	Address  uint64
	Register int
}

// ErrUnsupportedOp is returned when an expression uses an opcode outside
// the supported subset. Callers surface this as the "unhandled variable
// location" error case.
type ErrUnsupportedOp struct {
	Opcode byte
}

func (e *ErrUnsupportedOp) Error() string {
	return fmt.Sprintf("unsupported DWARF location opcode 0x%02x", e.Opcode)
}

// Supported DW_OP_* opcodes, named per the DWARF standard.
const (
	opAddr         = 0x03
	opConst1u      = 0x08
	opConst2u      = 0x0a
	opConst4u      = 0x0c
	opConst8u      = 0x0e
	opPlus         = 0x22
	opPlusUconst   = 0x23
	opRegx         = 0x90
	opFbreg        = 0x91
	opBregx        = 0x92
	opCallFrameCFA = 0x9c
	opReg0         = 0x50
	opReg31        = 0x6f
	opBreg0        = 0x70
	opBreg31       = 0x8f
)

// Evaluate runs expr against host and returns the location it describes.
// Unlike a general-purpose DWARF expression evaluator, this only
// implements the opcodes real-world Go/C toolchains emit for local
// variables and parameters: address literals, small constants, additive
// combination, register-relative addressing, and the frame-base forms.
// Anything else is reported as ErrUnsupportedOp.
func Evaluate(expr []byte, host Host) (Location, error) {
	var stack []uint64

	push := func(v uint64) { stack = append(stack, v) }
	pop := func() (uint64, error) {
		if len(stack) == 0 {
			return 0, fmt.Errorf("dwarf expression stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	r := bytes.NewReader(expr)

	for r.Len() > 0 {
		opcode, err := r.ReadByte()
		if err != nil {
			return Location{}, fmt.Errorf("failed to read dwarf opcode: %w", err)
		}

		switch {
		case opcode == opAddr:
			var addr uint64
			if err := binary.Read(r, binary.LittleEndian, &addr); err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_addr operand: %w", err)
			}
			push(addr)

		case opcode == opConst1u:
			b, err := r.ReadByte()
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_const1u operand: %w", err)
			}
			push(uint64(b))

		case opcode == opConst2u:
			var v uint16
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_const2u operand: %w", err)
			}
			push(uint64(v))

		case opcode == opConst4u:
			var v uint32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_const4u operand: %w", err)
			}
			push(uint64(v))

		case opcode == opConst8u:
			var v uint64
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_const8u operand: %w", err)
			}
			push(v)

		case opcode == opPlus:
			b, err := pop()
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_plus: %w", err)
			}
			a, err := pop()
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_plus: %w", err)
			}
			push(a + b)

		case opcode == opPlusUconst:
			operand, err := readULEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_plus_uconst operand: %w", err)
			}
			a, err := pop()
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_plus_uconst: %w", err)
			}
			push(a + operand)

		case opcode == opFbreg:
			offset, err := readSLEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_fbreg operand: %w", err)
			}
			base, err := host.FrameBase()
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_fbreg: %w", err)
			}
			push(uint64(int64(base) + offset))

		case opcode == opCallFrameCFA:
			base, err := host.FrameBase()
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_call_frame_cfa: %w", err)
			}
			push(base)

		case opcode >= opReg0 && opcode <= opReg31:
			return Location{Kind: KindRegister, Register: int(opcode - opReg0)}, nil

		case opcode == opRegx:
			regNum, err := readULEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_regx operand: %w", err)
			}
			return Location{Kind: KindRegister, Register: int(regNum)}, nil

		case opcode >= opBreg0 && opcode <= opBreg31:
			offset, err := readSLEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_bregN operand: %w", err)
			}
			val, err := host.Register(int(opcode - opBreg0))
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_bregN: %w", err)
			}
			push(uint64(int64(val) + offset))

		case opcode == opBregx:
			regNum, err := readULEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_bregx register operand: %w", err)
			}
			offset, err := readSLEB128(r)
			if err != nil {
				return Location{}, fmt.Errorf("failed to read DW_OP_bregx offset operand: %w", err)
			}
			val, err := host.Register(int(regNum))
			if err != nil {
				return Location{}, fmt.Errorf("DW_OP_bregx: %w", err)
			}
			push(uint64(int64(val) + offset))

		default:
			return Location{}, &ErrUnsupportedOp{Opcode: opcode}
		}
	}

	if len(stack) == 0 {
		return Location{}, fmt.Errorf("dwarf location expression produced no result")
	}

	return Location{Kind: KindAddress, Address: stack[len(stack)-1]}, nil
}

// readULEB128 decodes an unsigned little-endian base-128 integer, the
// variable-length integer encoding DWARF uses throughout.
func readULEB128(r io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// readSLEB128 decodes a signed little-endian base-128 integer.
func readSLEB128(r io.ByteReader) (int64, error) {
	var result int64
	var shift uint

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}
