//go:build linux

package system

import (
	"log"
	"log/syslog"
)

// EnableSyslog sends the standard logger to syslog. Component loggers
// created after this call follow it.
func EnableSyslog(tag string) error {
	lgr, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, tag)
	if err != nil {
		return err
	}

	log.SetOutput(lgr)

	return nil
}
