package mdb

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// addrNoRandomize is ADDR_NO_RANDOMIZE from <linux/personality.h>.
const addrNoRandomize = 0x0040000

// disableAddressSpaceRandomization sets the ADDR_NO_RANDOMIZE personality
// flag on the current process so that a subsequently forked and exec'd
// child inherits it. personality(2)'s "0xffffffff" persona value is the
// documented way to query the current flags without changing them.
func disableAddressSpaceRandomization() error {
	current, _, errno := unix.Syscall(unix.SYS_PERSONALITY, 0xffffffff, 0, 0)
	if errno != 0 {
		return fmt.Errorf("failed to disable address space randomization: %w", errno)
	}

	_, _, errno = unix.Syscall(unix.SYS_PERSONALITY, current|addrNoRandomize, 0, 0)
	if errno != 0 {
		return fmt.Errorf("failed to disable address space randomization: %w", errno)
	}

	return nil
}
