// Package mdb implements the core engine of a minimal interactive
// source-level debugger for x86-64 Linux ELF executables: it launches or
// attaches to a tracee, drives it through ptrace, and exposes breakpoint
// placement, stepping, register/memory inspection, backtraces, and
// DWARF-based variable reads. The interactive REPL lives in cmd/mdb.
package mdb

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/Alan998/mini-debugger/ptrace"
)

// ErrProcessExited is returned by operations that require a live tracee
// once the tracee has exited.
var ErrProcessExited = fmt.Errorf("process exited")

// Debugger is a single debugging session: one tracee, its breakpoints,
// its register file, and the DWARF/ELF navigation built from its
// executable.
type Debugger struct {
	tracer *ptrace.Tracer

	Registers   *RegisterFile
	Breakpoints *BreakpointSet
	Navigator   *Navigator

	Pid         int
	ownsProcess bool

	state ProcessState
}

func newDebugger(tracer *ptrace.Tracer, ownsProcess bool) (*Debugger, error) {
	db := &Debugger{
		tracer:      tracer,
		Pid:         tracer.Pid,
		ownsProcess: ownsProcess,
		state:       newRunningProcessState(tracer.Pid),
	}
	db.Registers = newRegisterFile(tracer)
	db.Breakpoints = newBreakpointSet(db)

	// The child stops with SIGTRAP immediately after exec because of
	// PTRACE_TRACEME; this must be consumed before anything else touches
	// the tracee.
	_, err := db.waitForSignal()
	if err != nil {
		_ = tracer.Detach()
		return nil, err
	}

	nav, err := newNavigator(db)
	if err != nil {
		_ = tracer.Detach()
		return nil, fmt.Errorf("failed to initialize navigator: %w", err)
	}
	db.Navigator = nav

	return db, nil
}

// StartAndAttachTo forks and execs cmd, tracing it from birth.
func StartAndAttachTo(cmd *exec.Cmd) (*Debugger, error) {
	tracer, err := ptrace.StartAndAttachToProcess(cmd)
	if err != nil {
		return nil, err
	}
	return newDebugger(tracer, true)
}

// StartCmdAndAttachTo launches name with args, tracing it from birth, and
// disables address-space randomization for the child so absolute address
// breakpoints (`break 0x<hex-addr>`) remain valid across runs.
//
// Go's os/exec offers no hook to run code between fork and exec in the
// child, so the ADDR_NO_RANDOMIZE personality flag is set on the debugger
// process itself before forking: Linux personality flags survive both
// fork and execve (they are only reset by a setuid/setgid exec), so the
// tracee inherits it.
func StartCmdAndAttachTo(name string, args ...string) (*Debugger, error) {
	err := disableAddressSpaceRandomization()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	return StartAndAttachTo(cmd)
}

// AttachTo attaches to an already-running process.
func AttachTo(pid int) (*Debugger, error) {
	tracer, err := ptrace.AttachToProcess(pid)
	if err != nil {
		return nil, err
	}
	return newDebugger(tracer, false)
}

// State returns the last observed process state.
func (db *Debugger) State() ProcessState {
	return db.state
}

// resume continues the tracee without waiting for it to stop; callers pair
// this with waitForSignal to preserve the ordering guarantee that every
// mutation to the tracee happens while it is stopped.
func (db *Debugger) resume() error {
	if db.state.Exited() {
		return fmt.Errorf("failed to resume process %d: %w", db.Pid, ErrProcessExited)
	}

	err := db.stepOverBreakpointAt(db.state.NextInstructionAddress)
	if err != nil {
		return fmt.Errorf("failed to resume process %d: %w", db.Pid, err)
	}

	err = db.tracer.Resume(0)
	if err != nil {
		return fmt.Errorf("failed to resume process %d: %w", db.Pid, err)
	}

	db.state = newRunningProcessState(db.Pid)
	return nil
}

// waitForSignal blocks until the tracee changes state, then reconstructs
// db.state, including the program counter rewind that undoes the
// INT3-induced PC advance on a breakpoint hit.
func (db *Debugger) waitForSignal() (ProcessState, error) {
	var status syscall.WaitStatus
	// NOTE: Go's syscall package has no waitpid; Wait4 with no options is
	// the equivalent blocking call.
	_, err := syscall.Wait4(db.Pid, &status, 0, nil)
	if err != nil {
		return ProcessState{}, fmt.Errorf("failed to wait for process %d: %w", db.Pid, err)
	}

	db.state = newProcessState(db.Pid, status)

	if !db.state.Stopped() {
		return db.state, nil
	}

	pc, err := db.getProgramCounter()
	if err != nil {
		return ProcessState{}, fmt.Errorf(
			"failed to wait for process %d: %w", db.Pid, err)
	}
	db.state.NextInstructionAddress = pc

	if db.state.StopSignal() != syscall.SIGTRAP {
		return db.state, nil
	}

	// The INT3 the CPU executed leaves the PC one byte past the trap; if
	// there's an enabled breakpoint at pc-1, rewind PC to point back at
	// the (currently-patched) instruction so re-execution after Disable
	// runs the original byte.
	trapAddr := pc - 1
	if bp, ok := db.Breakpoints.Get(trapAddr); ok && bp.IsEnabled() {
		err := db.setProgramCounter(trapAddr)
		if err != nil {
			return ProcessState{}, fmt.Errorf(
				"failed to reset program counter at breakpoint: %w", err)
		}
	}

	return db.state, nil
}

func (db *Debugger) signal(sig syscall.Signal) error {
	err := syscall.Kill(db.Pid, sig)
	if err != nil {
		return fmt.Errorf("failed to signal process %d (%v): %w", db.Pid, sig, err)
	}
	return nil
}

// Close stops the tracee (if still running), detaches, and if the
// debugger owns the process (it launched it rather than attaching to an
// existing one), kills it.
func (db *Debugger) Close() error {
	if db.state.Running() {
		err := db.signal(syscall.SIGSTOP)
		if err != nil {
			return err
		}
		_, err = db.waitForSignal()
		if err != nil {
			return err
		}
	}

	if db.state.Exited() {
		return nil
	}

	err := db.tracer.Detach()
	if err != nil {
		return err
	}

	err = db.signal(syscall.SIGCONT)
	if err != nil {
		return err
	}

	if db.ownsProcess {
		err = db.signal(syscall.SIGKILL)
		if err != nil {
			return err
		}
		_, err = db.waitForSignal()
		if err != nil {
			return err
		}
	}

	if db.Navigator != nil {
		_ = db.Navigator.Close()
	}

	return nil
}

func (db *Debugger) getProgramCounter() (VirtualAddress, error) {
	rip, ok := ByName("rip")
	if !ok {
		panic("should never happen: rip missing from register table")
	}
	value, err := db.Registers.Read(rip)
	if err != nil {
		return 0, fmt.Errorf("failed to read program counter: %w", err)
	}
	return VirtualAddress(value), nil
}

func (db *Debugger) setProgramCounter(addr VirtualAddress) error {
	rip, ok := ByName("rip")
	if !ok {
		panic("should never happen: rip missing from register table")
	}
	err := db.Registers.Write(rip, uint64(addr))
	if err != nil {
		return fmt.Errorf("failed to set program counter to %s: %w", addr, err)
	}
	db.state.NextInstructionAddress = addr
	return nil
}

// ProgramCounter returns the tracee's current instruction pointer.
func (db *Debugger) ProgramCounter() (VirtualAddress, error) {
	return db.getProgramCounter()
}
