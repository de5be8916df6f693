package server

import (
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/modem"
	"github.com/simpleiot/cellmgr/nats"
)

// target presents the devices of every running manager to the API
type target struct {
	managers []*modem.Manager
}

func (t *target) Devices() []data.DeviceSnapshot {
	var ret []data.DeviceSnapshot
	for _, m := range t.managers {
		ret = append(ret, m.Devices()...)
	}
	return ret
}

func (t *target) Device(id string) nats.Device {
	for _, m := range t.managers {
		if d := m.Device(id); d != nil {
			return d
		}
	}
	return nil
}
