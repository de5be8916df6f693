package system

import (
	"log"
	"time"

	"github.com/beevik/ntp"
)

// UpdateTimeFromNetwork sets the system clock from an NTP server. It is
// used once a cellular data connection comes up on devices without a
// battery backed clock.
func UpdateTimeFromNetwork(server string) error {
	resp, err := ntp.Query(server)
	if err != nil {
		return err
	}
	if err := resp.Validate(); err != nil {
		return err
	}

	offset := resp.ClockOffset
	if offset < time.Second && offset > -time.Second {
		return nil
	}
	log.Printf("system clock is off by %v, setting it", offset)
	return SetTime(time.Now().Add(offset))
}
