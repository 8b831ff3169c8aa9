package mdb

import (
	"fmt"
	"syscall"
)

// stepOverBreakpointAt executes the micro-sequence needed to step past an
// enabled breakpoint sitting at addr: disable it, single-step the
// original instruction underneath, then re-enable it. It is a no-op if
// there is no enabled breakpoint at addr.
func (db *Debugger) stepOverBreakpointAt(addr VirtualAddress) error {
	bp, ok := db.Breakpoints.Get(addr)
	if !ok || !bp.IsEnabled() {
		return nil
	}

	err := bp.Disable()
	if err != nil {
		return err
	}

	err = db.tracer.SingleStep()
	if err != nil {
		return fmt.Errorf("failed to step over breakpoint at %s: %w", addr, err)
	}

	_, err = db.waitForSignal()
	if err != nil {
		return fmt.Errorf("failed to step over breakpoint at %s: %w", addr, err)
	}

	return bp.Enable()
}

// Continue resumes the tracee (transparently stepping over any breakpoint
// sitting at the current PC first) and waits for it to stop again.
func (db *Debugger) Continue() (ProcessState, error) {
	err := db.resume()
	if err != nil {
		return ProcessState{}, err
	}

	state, err := db.waitForSignal()
	if err != nil {
		return ProcessState{}, fmt.Errorf("failed to continue process %d: %w", db.Pid, err)
	}

	db.reportStop(state)
	return state, nil
}

// SingleStepInstruction steps exactly one machine instruction, handling
// the breakpoint micro-sequence if the current PC carries one.
func (db *Debugger) SingleStepInstruction() (ProcessState, error) {
	if db.state.Exited() {
		return db.state, fmt.Errorf(
			"failed to step process %d: %w", db.Pid, ErrProcessExited)
	}

	addr := db.state.NextInstructionAddress

	bp, ok := db.Breakpoints.Get(addr)
	enabled := ok && bp.IsEnabled()
	if enabled {
		err := bp.Disable()
		if err != nil {
			return ProcessState{}, err
		}
	}

	err := db.tracer.SingleStep()
	if err != nil {
		return ProcessState{}, fmt.Errorf(
			"failed to single step process %d: %w", db.Pid, err)
	}

	state, err := db.waitForSignal()
	if err != nil {
		return ProcessState{}, fmt.Errorf(
			"failed to single step process %d: %w", db.Pid, err)
	}

	if enabled {
		err = bp.Enable()
		if err != nil {
			return ProcessState{}, err
		}
	}

	return state, nil
}

// reportStop announces why the tracee just stopped: on a software-
// interrupt stop it prints the hit breakpoint and a source window; on
// any other stop, it reports the signal.
func (db *Debugger) reportStop(state ProcessState) {
	if !state.Stopped() {
		return
	}

	info, err := db.tracer.GetSigInfo()
	if err != nil {
		fmt.Println("failed to read signal info:", err)
		return
	}

	event := newStopEvent(state.StopSignal(), info.Code)

	switch event.Signal {
	case syscall.SIGTRAP:
		switch event.TrapKind {
		case SoftwareTrap:
			pc := state.NextInstructionAddress
			fmt.Printf("Hit breakpoint at address %s\n", pc)
			db.printSourceAt(pc)
		case SingleStepTrap:
			// silent
		default:
			fmt.Printf("stopped with SIGTRAP, unhandled sub-code %d\n", event.SubCode)
		}
	case syscall.SIGSEGV:
		fmt.Printf("process %d segfaulted at %s\n", db.Pid, state.NextInstructionAddress)
	default:
		fmt.Printf("process %d stopped by signal %v\n", db.Pid, event.Signal)
	}
}

// printSourceAt resolves pc to a source line and prints a context window
// around it, silently doing nothing if pc has no debug info (e.g. it is
// inside libc).
func (db *Debugger) printSourceAt(pc VirtualAddress) {
	line, err := db.Navigator.LineEntryFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return
	}

	err = PrintSourceWindow(line.File, line.Line, defaultSourceContext)
	if err != nil {
		fmt.Println("failed to print source window:", err)
	}
}

const defaultSourceContext = 3

// StepIn steps into the next source line: single-step (breakpoint-aware)
// until the line entry at the new PC reports a different source line,
// then print the new location.
func (db *Debugger) StepIn() error {
	pc, err := db.ProgramCounter()
	if err != nil {
		return err
	}

	startLine, err := db.Navigator.LineEntryFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return fmt.Errorf("failed to step in: %w", err)
	}

	for {
		state, err := db.SingleStepInstruction()
		if err != nil {
			return fmt.Errorf("failed to step in: %w", err)
		}
		if !state.Stopped() {
			return nil
		}

		line, err := db.Navigator.LineEntryFromPC(db.Navigator.ToDwarf(state.NextInstructionAddress))
		if err != nil {
			continue
		}
		if line.Line != startLine.Line {
			return PrintSourceWindow(line.File, line.Line, defaultSourceContext)
		}
	}
}

// StepOver steps over the current source line without descending into
// any call it makes: temporarily breakpoint every other statement
// boundary in the current function plus the current frame's return
// address, continue past them, then remove every temporary breakpoint
// regardless of how continue returns.
func (db *Debugger) StepOver() error {
	pc, err := db.ProgramCounter()
	if err != nil {
		return err
	}

	fn, err := db.Navigator.FunctionFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return fmt.Errorf("failed to step over: %w", err)
	}

	line, err := db.Navigator.LineEntryFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return fmt.Errorf("failed to step over: %w", err)
	}

	temporaries, err := db.setTemporaryBreakpointsAcrossFunction(fn, line.Address)
	if err != nil {
		return err
	}

	if addr, ok := db.currentReturnAddress(); ok {
		if _, exists := db.Breakpoints.Get(addr); !exists {
			if _, err := db.Breakpoints.Set(addr); err == nil {
				temporaries = append(temporaries, addr)
			}
		}
	}

	defer func() {
		for _, addr := range temporaries {
			_ = db.Breakpoints.Remove(addr)
		}
	}()

	_, err = db.Continue()
	if err != nil {
		return fmt.Errorf("failed to step over: %w", err)
	}
	return nil
}

// setTemporaryBreakpointsAcrossFunction places a breakpoint at every
// statement boundary of fn other than the one at currentLineAddr,
// skipping any address that already carries one, and returns the
// addresses it added.
func (db *Debugger) setTemporaryBreakpointsAcrossFunction(fn *FunctionEntry, currentLineAddr uint64) ([]VirtualAddress, error) {
	entries, err := db.Navigator.LineEntriesInRange(fn.LowPC, fn.HighPC)
	if err != nil {
		return nil, fmt.Errorf("failed to step over: %w", err)
	}

	var temporaries []VirtualAddress
	for _, entry := range entries {
		if entry.Address == currentLineAddr {
			continue
		}

		addr := db.Navigator.ToRuntime(entry.Address)
		if _, exists := db.Breakpoints.Get(addr); exists {
			continue
		}
		if _, err := db.Breakpoints.Set(addr); err != nil {
			continue
		}
		temporaries = append(temporaries, addr)
	}

	return temporaries, nil
}

// currentReturnAddress reads the return address stored at [rbp+8] of the
// current frame.
func (db *Debugger) currentReturnAddress() (VirtualAddress, bool) {
	rbpDesc, ok := ByName("rbp")
	if !ok {
		panic("should never happen: rbp missing from register table")
	}

	rbp, err := db.Registers.Read(rbpDesc)
	if err != nil {
		return 0, false
	}

	returnAddr, err := db.ReadWord(VirtualAddress(rbp + 8))
	if err != nil {
		return 0, false
	}

	return VirtualAddress(returnAddr), true
}

// StepOut runs the tracee until the current function returns: breakpoint
// the current frame's return address if it doesn't already carry one,
// continue, and remove the breakpoint again if it was added just for
// this call.
func (db *Debugger) StepOut() error {
	addr, ok := db.currentReturnAddress()
	if !ok {
		return fmt.Errorf("failed to step out: could not read return address")
	}

	_, existed := db.Breakpoints.Get(addr)
	temporary := !existed
	if temporary {
		if _, err := db.Breakpoints.Set(addr); err != nil {
			return fmt.Errorf("failed to step out: %w", err)
		}
	}

	defer func() {
		if temporary {
			_ = db.Breakpoints.Remove(addr)
		}
	}()

	_, err := db.Continue()
	if err != nil {
		return fmt.Errorf("failed to step out: %w", err)
	}
	return nil
}
