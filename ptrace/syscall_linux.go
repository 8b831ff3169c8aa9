package ptrace

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// UserRegs matches user_regs_struct (64-bit variant) defined in <sys/user.h>.
// syscall.PtraceRegs already has the correct field layout and order for
// linux/amd64, so it is reused directly rather than redeclared.
type UserRegs = syscall.PtraceRegs

// SigInfo matches siginfo_t as filled in by PTRACE_GETSIGINFO.
type SigInfo = unix.Siginfo

const vmPageSize = 0x1000

func ptrace(request int, pid int, addr uintptr, data uintptr) error {
	_, _, errno := syscall.Syscall6(
		syscall.SYS_PTRACE,
		uintptr(request),
		uintptr(pid),
		addr,
		data,
		0,
		0)
	if errno == 0 {
		return nil
	}
	return errno
}

func ptracePtr(request int, pid int, addr uintptr, data unsafe.Pointer) error {
	return ptrace(request, pid, addr, uintptr(data))
}

func getRegs(pid int, out *UserRegs) error {
	return ptracePtr(syscall.PTRACE_GETREGS, pid, 0, unsafe.Pointer(out))
}

func setRegs(pid int, in *UserRegs) error {
	return ptracePtr(syscall.PTRACE_SETREGS, pid, 0, unsafe.Pointer(in))
}

func getSigInfo(pid int, out *SigInfo) error {
	return ptracePtr(syscall.PTRACE_GETSIGINFO, pid, 0, unsafe.Pointer(out))
}

func peekData(pid int, addr uintptr) (uintptr, error) {
	data := uintptr(0)
	err := ptracePtr(syscall.PTRACE_PEEKDATA, pid, addr, unsafe.Pointer(&data))
	return data, err
}

func pokeData(pid int, addr uintptr, data uintptr) error {
	return ptrace(syscall.PTRACE_POKEDATA, pid, addr, data)
}

// readVirtualMemory reads len(data) bytes starting at addr using
// process_vm_readv, which is both faster than word-at-a-time PEEKDATA and,
// unlike PEEKDATA, does not require the target word to be individually
// accessible via ptrace's user-visible errno reporting.
func readVirtualMemory(pid int, addr uintptr, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	localIovs := []unix.Iovec{{Base: &data[0]}}
	localIovs[0].SetLen(len(data))

	remoteIovs := []unix.RemoteIovec{
		{Base: uintptr(addr), Len: len(data)},
	}

	n, err := unix.ProcessVMReadv(pid, localIovs, remoteIovs, 0)
	return n, err
}
