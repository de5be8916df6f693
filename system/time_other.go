//go:build !linux

package system

import (
	"errors"
	"time"
)

// SetTime is not supported on this platform
func SetTime(time.Time) error {
	return errors.New("setting time not supported on this platform")
}
