package dwarfeval

import (
	"fmt"
	"testing"
)

type fakeHost struct {
	registers map[int]uint64
	frameBase uint64
	memory    map[uint64]uint64
}

func (h *fakeHost) Register(dwarfNum int) (uint64, error) {
	v, ok := h.registers[dwarfNum]
	if !ok {
		return 0, fmt.Errorf("no such register: %d", dwarfNum)
	}
	return v, nil
}

func (h *fakeHost) FrameBase() (uint64, error) {
	return h.frameBase, nil
}

func (h *fakeHost) DerefWord(addr uint64) (uint64, error) {
	v, ok := h.memory[addr]
	if !ok {
		return 0, fmt.Errorf("no such address: %#x", addr)
	}
	return v, nil
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func TestEvaluateAddr(t *testing.T) {
	expr := append([]byte{opAddr}, 0x10, 0, 0, 0, 0, 0, 0, 0)
	loc, err := Evaluate(expr, &fakeHost{})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindAddress || loc.Address != 0x10 {
		t.Errorf("got %+v, want address 0x10", loc)
	}
}

func TestEvaluateRegN(t *testing.T) {
	expr := []byte{opReg0 + 3}
	loc, err := Evaluate(expr, &fakeHost{})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindRegister || loc.Register != 3 {
		t.Errorf("got %+v, want register 3", loc)
	}
}

func TestEvaluateRegx(t *testing.T) {
	expr := append([]byte{opRegx}, uleb128(20)...)
	loc, err := Evaluate(expr, &fakeHost{})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindRegister || loc.Register != 20 {
		t.Errorf("got %+v, want register 20", loc)
	}
}

func TestEvaluateBregN(t *testing.T) {
	host := &fakeHost{registers: map[int]uint64{6: 0x1000}}
	expr := append([]byte{opBreg0 + 6}, sleb128(-8)...)
	loc, err := Evaluate(expr, host)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindAddress || loc.Address != 0x1000-8 {
		t.Errorf("got %+v, want address %#x", loc, uint64(0x1000-8))
	}
}

func TestEvaluateBregx(t *testing.T) {
	host := &fakeHost{registers: map[int]uint64{6: 0x2000}}
	expr := append([]byte{opBregx}, append(uleb128(6), sleb128(16)...)...)
	loc, err := Evaluate(expr, host)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindAddress || loc.Address != 0x2010 {
		t.Errorf("got %+v, want address 0x2010", loc)
	}
}

func TestEvaluateFbreg(t *testing.T) {
	host := &fakeHost{frameBase: 0x7ffe0000}
	expr := append([]byte{opFbreg}, sleb128(-24)...)
	loc, err := Evaluate(expr, host)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	want := uint64(0x7ffe0000 - 24)
	if loc.Kind != KindAddress || loc.Address != want {
		t.Errorf("got %+v, want address %#x", loc, want)
	}
}

func TestEvaluateCallFrameCFA(t *testing.T) {
	host := &fakeHost{frameBase: 0x1230}
	loc, err := Evaluate([]byte{opCallFrameCFA}, host)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Kind != KindAddress || loc.Address != 0x1230 {
		t.Errorf("got %+v, want address 0x1230", loc)
	}
}

func TestEvaluatePlusUconst(t *testing.T) {
	expr := append([]byte{opAddr}, 0x10, 0, 0, 0, 0, 0, 0, 0)
	expr = append(expr, opPlusUconst)
	expr = append(expr, uleb128(4)...)

	loc, err := Evaluate(expr, &fakeHost{})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if loc.Address != 0x14 {
		t.Errorf("got address %#x, want 0x14", loc.Address)
	}
}

func TestEvaluateUnsupportedOp(t *testing.T) {
	_, err := Evaluate([]byte{0xff}, &fakeHost{})
	if err == nil {
		t.Fatal("expected an error for an unsupported opcode")
	}
	var unsupported *ErrUnsupportedOp
	if !asUnsupportedOp(err, &unsupported) {
		t.Errorf("expected *ErrUnsupportedOp, got %T: %v", err, err)
	}
}

func asUnsupportedOp(err error, target **ErrUnsupportedOp) bool {
	if e, ok := err.(*ErrUnsupportedOp); ok {
		*target = e
		return true
	}
	return false
}

func TestEvaluateEmptyExpressionFails(t *testing.T) {
	_, err := Evaluate(nil, &fakeHost{})
	if err == nil {
		t.Fatal("expected an error for an empty expression")
	}
}
