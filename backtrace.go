package mdb

import "fmt"

// maxBacktraceDepth guards against an unbounded walk if the rbp chain
// ever loops back on itself instead of terminating at main.
const maxBacktraceDepth = 128

// PrintBacktrace implements the `backtrace` command: starting at the
// current frame, print frame #0's function, then follow
// the classic rbp chain (saved rbp at [rbp], return address at
// [rbp+8]) until it reaches main or the chain becomes unreadable.
//
// This assumes every frame was compiled with a frame pointer. For code
// built with -fomit-frame-pointer the walk follows whatever rbp holds: it
// stops at the first unreadable word or unresolvable return address, and
// may print frames taken from stale values before that, but it never
// writes to the tracee, since every step after frame #0 is a memory read.
func (db *Debugger) PrintBacktrace() error {
	pc, err := db.ProgramCounter()
	if err != nil {
		return err
	}

	fn, err := db.Navigator.FunctionFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return fmt.Errorf("failed to walk backtrace: %w", err)
	}

	fmt.Printf("frame #0: %s %s\n", db.Navigator.ToRuntime(fn.LowPC), fn.Name)

	if fn.Name == "main" {
		return nil
	}

	rbpDesc, ok := ByName("rbp")
	if !ok {
		panic("should never happen: rbp missing from register table")
	}
	rbp, err := db.Registers.Read(rbpDesc)
	if err != nil {
		return fmt.Errorf("failed to walk backtrace: %w", err)
	}

	for frameIndex := 1; frameIndex <= maxBacktraceDepth; frameIndex++ {
		savedRbp, err := db.ReadWord(VirtualAddress(rbp))
		if err != nil {
			return nil
		}

		returnAddr, err := db.ReadWord(VirtualAddress(rbp + 8))
		if err != nil || returnAddr == 0 {
			return nil
		}

		callerFn, err := db.Navigator.FunctionFromPC(db.Navigator.ToDwarf(VirtualAddress(returnAddr)))
		if err != nil {
			return nil
		}

		fmt.Printf("frame #%d: %s %s\n", frameIndex, db.Navigator.ToRuntime(callerFn.LowPC), callerFn.Name)

		if callerFn.Name == "main" {
			return nil
		}

		rbp = savedRbp
	}

	return nil
}
