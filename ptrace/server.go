package ptrace

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"syscall"
)

type opType string

const (
	startOp      = opType("start")
	attachOp     = opType("attach")
	detachOp     = opType("detach")
	resumeOp     = opType("resume")
	singleStepOp = opType("singlestep")
	getRegsOp    = opType("getregs")
	setRegsOp    = opType("setregs")
	getSigInfoOp = opType("getsiginfo")
	peekDataOp   = opType("peekdata")
	pokeDataOp   = opType("pokedata")
	readMemoryOp = opType("readmemory")
)

type request struct {
	opType

	pid int

	cmd *exec.Cmd // start

	signal int // resume

	regs *UserRegs // get/set regs

	addr uintptr // peek/poke data, read memory

	// peek/poke data
	registerData uintptr

	// read memory
	data []byte

	responseChan chan response
}

type response struct {
	count        int
	registerData uintptr
	sigInfo      *SigInfo
	err          error
}

// traceServer pins a single OS thread and serializes every ptrace(2) call
// for one tracee through it. All ptrace requests to a process, including
// PTRACE_TRACEME as issued by exec.Cmd.Start with SysProcAttr.Ptrace set,
// must originate from the same OS thread:
// https://github.com/golang/go/issues/7699
type traceServer struct {
	cancel func()
	ctx    context.Context

	requestChan chan request
}

func newTraceServer() *traceServer {
	ctx, cancel := context.WithCancel(context.Background())

	server := &traceServer{
		cancel:      cancel,
		ctx:         ctx,
		requestChan: make(chan request),
	}

	go server.run()
	return server
}

func (server *traceServer) run() {
	runtime.LockOSThread()
	defer func() {
		server.cancel()
		runtime.UnlockOSThread()
	}()

	for req := range server.requestChan {
		req.responseChan <- server.dispatch(req)

		if req.opType == detachOp {
			return
		}
	}
}

func (server *traceServer) dispatch(req request) response {
	switch req.opType {
	case startOp:
		err := req.cmd.Start()
		if err != nil {
			return response{err: fmt.Errorf("failed to start process: %w", err)}
		}
		return response{}

	case attachOp:
		err := syscall.PtraceAttach(req.pid)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to attach to process %d: %w", req.pid, err)}
		}
		return response{}

	case detachOp:
		err := syscall.PtraceDetach(req.pid)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to detach from process %d: %w", req.pid, err)}
		}
		return response{}

	case resumeOp:
		err := syscall.PtraceCont(req.pid, req.signal)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to resume process %d: %w", req.pid, err)}
		}
		return response{}

	case singleStepOp:
		err := syscall.PtraceSingleStep(req.pid)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to single step process %d: %w", req.pid, err)}
		}
		return response{}

	case getRegsOp:
		err := getRegs(req.pid, req.regs)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to get registers for process %d: %w", req.pid, err)}
		}
		return response{}

	case setRegsOp:
		err := setRegs(req.pid, req.regs)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to set registers for process %d: %w", req.pid, err)}
		}
		return response{}

	case getSigInfoOp:
		info := &SigInfo{}
		err := getSigInfo(req.pid, info)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to get signal info for process %d: %w", req.pid, err)}
		}
		return response{sigInfo: info}

	case peekDataOp:
		data, err := peekData(req.pid, req.addr)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to peek data at 0x%x of process %d: %w",
				req.addr, req.pid, err)}
		}
		return response{registerData: data}

	case pokeDataOp:
		err := pokeData(req.pid, req.addr, req.registerData)
		if err != nil {
			return response{err: fmt.Errorf(
				"failed to poke data at 0x%x of process %d: %w",
				req.addr, req.pid, err)}
		}
		return response{}

	case readMemoryOp:
		n, err := readVirtualMemory(req.pid, req.addr, req.data)
		if err != nil {
			return response{count: n, err: fmt.Errorf(
				"failed to read memory at 0x%x of process %d: %w",
				req.addr, req.pid, err)}
		}
		return response{count: n}

	default:
		panic("unhandled ptrace op: " + string(req.opType))
	}
}
