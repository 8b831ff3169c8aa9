package mdb

import (
	"encoding/binary"
	"fmt"
)

// wordSize is the machine word size on x86-64.
const wordSize = 8

// ReadFromVirtualMemory reads len(out) bytes from the tracee's address
// space starting at addr, tolerating unaligned addresses. It does not
// distinguish code from data.
func (db *Debugger) ReadFromVirtualMemory(addr VirtualAddress, out []byte) (int, error) {
	if !db.state.Stopped() {
		return 0, fmt.Errorf(
			"cannot read memory: process %d not stopped (%s)", db.Pid, db.state)
	}

	n, err := db.tracer.ReadFromVirtualMemory(uintptr(addr), out)
	if err != nil {
		return n, fmt.Errorf("failed to read memory at %s: %w", addr, err)
	}
	return n, nil
}

// WriteToVirtualMemory writes data into the tracee's address space
// starting at addr, one word at a time via PTRACE_POKEDATA (the only
// portable ptrace write primitive). Writes that don't land on a word
// boundary, or whose length isn't a multiple of the word size, are
// handled with a read-modify-write of the boundary words.
func (db *Debugger) WriteToVirtualMemory(addr VirtualAddress, data []byte) (int, error) {
	if !db.state.Stopped() {
		return 0, fmt.Errorf(
			"cannot write memory: process %d not stopped (%s)", db.Pid, db.state)
	}

	written := 0
	for written < len(data) {
		wordAddr := (uint64(addr) + uint64(written)) &^ (wordSize - 1)
		offset := int(uint64(addr) + uint64(written) - wordAddr)

		var buf [wordSize]byte
		existing, err := db.tracer.PeekData(uintptr(wordAddr))
		if err != nil {
			return written, fmt.Errorf(
				"failed to write memory at %s: %w", addr, err)
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(existing))

		n := copy(buf[offset:], data[written:])

		err = db.tracer.PokeData(uintptr(wordAddr), uintptr(binary.LittleEndian.Uint64(buf[:])))
		if err != nil {
			return written, fmt.Errorf(
				"failed to write memory at %s: %w", addr, err)
		}

		written += n
	}

	return written, nil
}

// ReadWord reads a single machine word at addr.
func (db *Debugger) ReadWord(addr VirtualAddress) (uint64, error) {
	buf := make([]byte, wordSize)
	n, err := db.ReadFromVirtualMemory(addr, buf)
	if err != nil {
		return 0, err
	}
	if n < wordSize {
		return 0, fmt.Errorf("short read at %s: got %d of %d bytes", addr, n, wordSize)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// WriteWord writes a single machine word at addr.
func (db *Debugger) WriteWord(addr VirtualAddress, value uint64) error {
	buf := make([]byte, wordSize)
	binary.LittleEndian.PutUint64(buf, value)
	_, err := db.WriteToVirtualMemory(addr, buf)
	return err
}

func (db *Debugger) readByte(addr VirtualAddress) (byte, error) {
	buf := make([]byte, 1)
	n, err := db.ReadFromVirtualMemory(addr, buf)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("short read at %s", addr)
	}
	return buf[0], nil
}

func (db *Debugger) writeByte(addr VirtualAddress, value byte) error {
	_, err := db.WriteToVirtualMemory(addr, []byte{value})
	return err
}
