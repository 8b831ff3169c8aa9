package mdb

import (
	"fmt"
	"syscall"
)

// ProcessState is a snapshot of the tracee's run state as last observed by
// wait_for_stop. A nil Status means the process is currently running
// (the debugger has resumed it and has not yet waited for the next stop).
type ProcessState struct {
	Pid int

	Status *syscall.WaitStatus

	// NextInstructionAddress is only meaningful when Stopped() is true.
	NextInstructionAddress VirtualAddress
}

func newRunningProcessState(pid int) ProcessState {
	return ProcessState{Pid: pid}
}

func newProcessState(pid int, status syscall.WaitStatus) ProcessState {
	return ProcessState{Pid: pid, Status: &status}
}

func (s ProcessState) Running() bool {
	return s.Status == nil
}

func (s ProcessState) Stopped() bool {
	return s.Status != nil && s.Status.Stopped()
}

func (s ProcessState) StopSignal() syscall.Signal {
	if s.Status == nil {
		return -1
	}
	return s.Status.StopSignal()
}

func (s ProcessState) Exited() bool {
	return s.Status != nil && s.Status.Exited()
}

func (s ProcessState) ExitStatus() int {
	if s.Status == nil {
		return -1
	}
	return s.Status.ExitStatus()
}

func (s ProcessState) Signaled() bool {
	return s.Status != nil && s.Status.Signaled()
}

func (s ProcessState) TerminatingSignal() syscall.Signal {
	if s.Status == nil {
		return -1
	}
	return s.Status.Signal()
}

func (s ProcessState) String() string {
	switch {
	case s.Running():
		return fmt.Sprintf("process %d running", s.Pid)
	case s.Stopped():
		return fmt.Sprintf(
			"process %d stopped at %s (signal %v)",
			s.Pid, s.NextInstructionAddress, s.StopSignal())
	case s.Signaled():
		return fmt.Sprintf(
			"process %d terminated by signal %v", s.Pid, s.TerminatingSignal())
	case s.Exited():
		return fmt.Sprintf("process %d exited with status %d", s.Pid, s.ExitStatus())
	default:
		return fmt.Sprintf("process %d in unknown state", s.Pid)
	}
}

// StopEvent is produced every time the tracee stops: the signal that
// stopped it, and the kernel's sub-code classifying why (a software
// breakpoint trap, a single-step trap, or something else).
type StopEvent struct {
	Signal   syscall.Signal
	SubCode  int32
	TrapKind TrapKind
}

// newStopEvent classifies a raw stop signal and si_code into a StopEvent.
// subCode is only meaningful when signal is SIGTRAP; it is carried
// through unchanged otherwise; trapCodeToKind's classification degrades
// gracefully in that case since callers only inspect TrapKind after
// checking Signal == SIGTRAP.
func newStopEvent(signal syscall.Signal, subCode int32) StopEvent {
	return StopEvent{Signal: signal, SubCode: subCode, TrapKind: trapCodeToKind(subCode)}
}
