//go:build linux

package system

import (
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// SetTime sets the system time and stores it in the RTC as UTC
func SetTime(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return err
	}

	// no RTC is not an error
	_ = exec.Command("hwclock", "-w", "-u").Run()
	return nil
}
