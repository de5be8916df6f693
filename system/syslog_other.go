//go:build !linux

package system

import "errors"

// EnableSyslog is not supported on this platform
func EnableSyslog(string) error {
	return errors.New("syslog not supported on this platform")
}
