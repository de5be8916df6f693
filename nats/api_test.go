package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

type fakeDevice struct {
	snap     data.DeviceSnapshot
	enabled  []bool
	roaming  []bool
	apn      *data.APN
	networks []data.Network
	fail     data.Error
}

func (d *fakeDevice) Snapshot() data.DeviceSnapshot { return d.snap }

func (d *fakeDevice) SetEnabled(enable bool, cb mm.ResultFunc) {
	d.enabled = append(d.enabled, enable)
	cb(data.Error{})
}

func (d *fakeDevice) Connect(cb mm.ResultFunc)    { cb(d.fail) }
func (d *fakeDevice) Disconnect(cb mm.ResultFunc) { cb(d.fail) }
func (d *fakeDevice) Reset(cb mm.ResultFunc)      { cb(d.fail) }

func (d *fakeDevice) Scan(cb func([]data.Network, data.Error)) { cb(d.networks, data.Error{}) }

func (d *fakeDevice) RegisterOnNetwork(_ string, cb mm.ResultFunc) { cb(data.Error{}) }
func (d *fakeDevice) Activate(_ string, cb mm.ResultFunc)          { cb(data.Error{}) }
func (d *fakeDevice) SetAllowRoaming(allow bool)                   { d.roaming = append(d.roaming, allow) }

func (d *fakeDevice) SetUserAPN(apn *data.APN) data.Error {
	d.apn = apn
	return data.Error{}
}

func (d *fakeDevice) SetPPPCredentials(_, _ string) data.Error {
	return data.NewError(data.KindNotRegistered, "no service")
}

type fakeTarget struct {
	devs map[string]*fakeDevice
}

func (t *fakeTarget) Devices() []data.DeviceSnapshot {
	var ret []data.DeviceSnapshot
	for _, d := range t.devs {
		ret = append(ret, d.snap)
	}
	return ret
}

func (t *fakeTarget) Device(id string) Device {
	d, ok := t.devs[id]
	if !ok {
		return nil
	}
	return d
}

// start runs a NATS server, an event loop and the API
func start(t *testing.T) (*nats.Conn, *API, *fakeDevice) {
	s, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoSigs: true,
		NoLog:  true,
	})
	if err != nil {
		t.Fatal("Error creating nats server: ", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(s.Shutdown)

	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatal("Error connecting: ", err)
	}
	t.Cleanup(nc.Close)

	l := loop.New()
	go l.Run()
	t.Cleanup(func() { l.Stop(nil) })

	dev := &fakeDevice{snap: data.DeviceSnapshot{
		Path:      "/org/freedesktop/ModemManager1/Modem/0",
		Interface: "wwan0",
		State:     data.DeviceRegistered.String(),
	}}
	api := NewAPI(nc, l, &fakeTarget{devs: map[string]*fakeDevice{"wwan0": dev}})
	if err := api.Start(); err != nil {
		t.Fatal("start failed: ", err)
	}
	t.Cleanup(api.Stop)
	return nc, api, dev
}

func TestEnableDisable(t *testing.T) {
	nc, _, dev := start(t)

	r, err := Call(nc, "wwan0", OpEnable, Request{}, time.Second)
	if err != nil {
		t.Fatal("enable failed: ", err)
	}
	if r.Device == nil || r.Device.Interface != "wwan0" {
		t.Error("response carries no snapshot")
	}
	if _, err := Call(nc, "wwan0", OpDisable, Request{}, time.Second); err != nil {
		t.Fatal("disable failed: ", err)
	}
	if diff := cmp.Diff([]bool{true, false}, dev.enabled); diff != "" {
		t.Error("enable calls: ", diff)
	}
}

func TestRequestErrors(t *testing.T) {
	nc, _, dev := start(t)

	dev.fail = data.NewError(data.KindNotRegistered, "device is Enabled")
	r, err := Call(nc, "wwan0", OpConnect, Request{}, time.Second)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if r.Kind != data.KindNotRegistered.String() {
		t.Error("wrong kind: ", r.Kind)
	}

	if _, err := Call(nc, "wwan9", OpConnect, Request{}, time.Second); err == nil {
		t.Error("expected error for unknown device")
	}
	if _, err := Call(nc, "wwan0", "explode", Request{}, time.Second); err == nil {
		t.Error("expected error for unknown op")
	}
	if _, err := Call(nc, "wwan0", OpRoaming, Request{}, time.Second); err == nil {
		t.Error("expected error for roaming without value")
	}
	if _, err := Call(nc, "wwan0", OpPPP, Request{Username: "u"}, time.Second); err == nil {
		t.Error("expected ppp error")
	}
}

func TestSettings(t *testing.T) {
	nc, _, dev := start(t)

	allow := true
	if _, err := Call(nc, "wwan0", OpRoaming, Request{AllowRoaming: &allow}, time.Second); err != nil {
		t.Fatal("roaming failed: ", err)
	}
	apn := &data.APN{Name: "custom", Username: "u"}
	if _, err := Call(nc, "wwan0", OpAPN, Request{APN: apn}, time.Second); err != nil {
		t.Fatal("apn failed: ", err)
	}

	if diff := cmp.Diff([]bool{true}, dev.roaming); diff != "" {
		t.Error("roaming: ", diff)
	}
	if diff := cmp.Diff(apn, dev.apn); diff != "" {
		t.Error("apn: ", diff)
	}
}

func TestScan(t *testing.T) {
	nc, _, dev := start(t)
	dev.networks = []data.Network{{ID: "310410", LongName: "Example Mobile"}}

	r, err := Call(nc, "wwan0", OpScan, Request{}, time.Second)
	if err != nil {
		t.Fatal("scan failed: ", err)
	}
	if diff := cmp.Diff(dev.networks, r.Networks); diff != "" {
		t.Error("networks: ", diff)
	}
}

func TestPublish(t *testing.T) {
	nc, api, dev := start(t)

	sub, err := nc.SubscribeSync(SubjectState("wwan0"))
	if err != nil {
		t.Fatal("subscribe: ", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal("flush: ", err)
	}

	api.Publish(dev.snap)
	msg, err := sub.NextMsg(time.Second)
	if err != nil {
		t.Fatal("no state published: ", err)
	}

	var got data.DeviceSnapshot
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal("decode: ", err)
	}
	if diff := cmp.Diff(dev.snap, got); diff != "" {
		t.Error("snapshot: ", diff)
	}
}

func TestDevices(t *testing.T) {
	nc, _, _ := start(t)

	devs, err := ListDevices(nc, time.Second)
	if err != nil {
		t.Fatal("request failed: ", err)
	}
	if len(devs) != 1 || devs[0].Interface != "wwan0" {
		t.Errorf("unexpected devices: %+v", devs)
	}
}

func TestDecodeRequestSubject(t *testing.T) {
	dev, op, err := decodeRequestSubject(SubjectRequest("wwan0", OpScan))
	if err != nil || dev != "wwan0" || op != OpScan {
		t.Errorf("got %v %v %v", dev, op, err)
	}
	if _, _, err := decodeRequestSubject(SubjectState("wwan0")); err == nil {
		t.Error("state subject decoded as request")
	}
}
