// Package ptrace provides a goroutine-safe wrapper around the Linux
// ptrace(2) tracing facility, used to control a single tracee process.
package ptrace

import (
	"fmt"
	"os/exec"
	"syscall"
)

// Tracer owns the single OS thread that all ptrace calls for one tracee
// must be issued from.
type Tracer struct {
	Pid int

	server *traceServer
}

// StartAndAttachToProcess forks and execs cmd with PTRACE_TRACEME set in
// the child. It does not wait for the post-exec SIGTRAP; the caller reaps
// it via the usual wait4 path.
func StartAndAttachToProcess(cmd *exec.Cmd) (*Tracer, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Ptrace = true

	server := newTraceServer()
	tracer := &Tracer{server: server}

	_, err := tracer.send(request{opType: startOp, cmd: cmd})
	if err != nil {
		close(server.requestChan)
		return nil, err
	}

	tracer.Pid = cmd.Process.Pid
	return tracer, nil
}

// AttachToProcess attaches to an already-running process via PTRACE_ATTACH.
func AttachToProcess(pid int) (*Tracer, error) {
	server := newTraceServer()
	tracer := &Tracer{Pid: pid, server: server}

	_, err := tracer.send(request{opType: attachOp, pid: pid})
	if err != nil {
		close(server.requestChan)
		return nil, err
	}

	return tracer, nil
}

func (tracer *Tracer) send(req request) (response, error) {
	respChan := make(chan response, 1)
	req.pid = tracer.Pid
	req.responseChan = respChan

	select {
	case <-tracer.server.ctx.Done():
		return response{}, fmt.Errorf(
			"invalid operation. tracer has detached from process %d", tracer.Pid)
	case tracer.server.requestChan <- req:
		resp := <-respChan
		return resp, resp.err
	}
}

func (tracer *Tracer) Detach() error {
	_, err := tracer.send(request{opType: detachOp})
	return err
}

func (tracer *Tracer) Resume(signal int) error {
	_, err := tracer.send(request{opType: resumeOp, signal: signal})
	return err
}

func (tracer *Tracer) SingleStep() error {
	_, err := tracer.send(request{opType: singleStepOp})
	return err
}

func (tracer *Tracer) GetRegisters() (*UserRegs, error) {
	out := &UserRegs{}
	_, err := tracer.send(request{opType: getRegsOp, regs: out})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tracer *Tracer) SetRegisters(in *UserRegs) error {
	_, err := tracer.send(request{opType: setRegsOp, regs: in})
	return err
}

func (tracer *Tracer) GetSigInfo() (*SigInfo, error) {
	resp, err := tracer.send(request{opType: getSigInfoOp})
	return resp.sigInfo, err
}

// PeekData reads a single machine word at addr via PTRACE_PEEKDATA.
func (tracer *Tracer) PeekData(addr uintptr) (uintptr, error) {
	resp, err := tracer.send(request{opType: peekDataOp, addr: addr})
	return resp.registerData, err
}

// PokeData writes a single machine word at addr via PTRACE_POKEDATA.
func (tracer *Tracer) PokeData(addr uintptr, data uintptr) error {
	_, err := tracer.send(request{opType: pokeDataOp, addr: addr, registerData: data})
	return err
}

// ReadFromVirtualMemory reads len(data) bytes starting at addr using
// process_vm_readv. Read permission is still governed by ptrace, which is
// why this lives on the Tracer rather than being a bare syscall wrapper.
func (tracer *Tracer) ReadFromVirtualMemory(addr uintptr, data []byte) (int, error) {
	resp, err := tracer.send(request{opType: readMemoryOp, addr: addr, data: data})
	return resp.count, err
}
