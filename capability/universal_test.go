package capability

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/mm"
	"github.com/simpleiot/cellmgr/mm/mmtest"
)

func TestUniversalDeferredEnable(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	h.f.AutoSucceed("Location.Setup")
	h.f.SetAuto("Properties.GetAll", func(*mmtest.Call) (interface{}, data.Error) {
		return mm.Props{
			mm.Prop3gppRegistrationState: mm.Reg3gppHome,
			mm.Prop3gppOperatorCode:      "310410",
		}, data.Error{}
	})

	var got *data.Error
	u.StartModem(func(err data.Error) { got = &err })

	h.f.Next("Modem.Enable").Fail(data.NewError(data.KindWrongState, "initializing"))
	h.m.RunPending()
	if got != nil {
		t.Fatal("wrong state should defer the enable, got ", got)
	}

	h.f.EmitStateChanged(testPath, data.ModemInitializing, data.ModemDisabled)
	h.m.RunPending()
	if n := len(h.f.Calls("Modem.Enable")); n != 2 {
		t.Fatal("enable should be retried once disabled, calls: ", n)
	}

	h.f.Next("Modem.Enable").Reply(nil)
	h.m.RunPending()
	if got != nil {
		t.Fatal("enable should wait for the modem state, got ", got)
	}

	h.f.EmitStateChanged(testPath, data.ModemDisabled, data.ModemEnabled)
	h.m.RunPending()
	if got == nil || !got.IsSuccess() {
		t.Fatal("start should complete after the modem is enabled, got ", got)
	}
	if !u.IsRegistered() || u.NetworkID() != "310410" {
		t.Error("registration should be refreshed after start")
	}

	exp := []data.ModemState{data.ModemDisabled, data.ModemEnabled}
	if diff := cmp.Diff(exp, h.rec.states); diff != "" {
		t.Error("modem states mismatch (-exp +got):\n", diff)
	}
}

func TestUniversalEnableTimeout(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	var results []data.Error
	u.EnableModem(true, func(err data.Error) { results = append(results, err) })
	h.f.Next("Modem.Enable").Reply(nil)
	h.m.RunPending()

	h.m.Advance(mm.TimeoutEnable)
	if len(results) != 1 || results[0].Kind != data.KindOperationTimeout {
		t.Fatal("expected enable timeout, got ", results)
	}

	h.f.EmitStateChanged(testPath, data.ModemEnabling, data.ModemEnabled)
	h.m.RunPending()
	if len(results) != 1 {
		t.Error("state change after timeout should not complete again")
	}
}

func TestUniversalStopIgnoresPowerDown(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	h.f.AutoSucceed("Modem.Enable")
	h.f.SetAuto("Modem.SetPowerState", func(*mmtest.Call) (interface{}, data.Error) {
		return nil, data.NewError(data.KindOperationFailed, "no power control")
	})

	var got *data.Error
	u.StopModem(func(err data.Error) { got = &err })
	h.m.RunPending()

	if got == nil || !got.IsSuccess() {
		t.Fatal("power down failure should be ignored, got ", got)
	}
	exp := []string{"Modem.Enable", "Modem.SetPowerState"}
	if diff := cmp.Diff(exp, h.f.Methods()); diff != "" {
		t.Error("stop sequence mismatch (-exp +got):\n", diff)
	}
	if p := h.f.Calls("Modem.SetPowerState")[0].Args[0]; p != mm.PowerStateLow {
		t.Error("expected low power, got ", p)
	}
}

func TestUniversalRegistrationDropDelayed(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	reg := func(state uint32) {
		u.OnPropertiesChanged(mm.Interface3gpp, mm.Props{mm.Prop3gppRegistrationState: state}, nil)
	}

	u.OnPropertiesChanged(mm.InterfaceModem, mm.Props{mm.PropState: int32(data.ModemConnected)}, nil)
	reg(mm.Reg3gppHome)
	reg(mm.Reg3gppSearching)

	if !u.IsRegistered() {
		t.Fatal("drop while connected should be delayed")
	}
	h.m.Advance(10 * time.Second)
	if !u.IsRegistered() {
		t.Fatal("drop applied too early")
	}
	h.m.Advance(5 * time.Second)
	if u.IsRegistered() {
		t.Fatal("drop should apply after the delay")
	}

	reg(mm.Reg3gppHome)
	reg(mm.Reg3gppIdle)
	reg(mm.Reg3gppRoaming)
	h.m.Advance(time.Minute)
	if u.RoamingState() != data.RoamingStateRoaming {
		t.Error("later update should replace the pending drop, got ", u.RoamingState())
	}
}

func TestUniversalRegistrationDropImmediateWhenIdle(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	u.OnPropertiesChanged(mm.Interface3gpp, mm.Props{mm.Prop3gppRegistrationState: mm.Reg3gppHome}, nil)
	u.OnPropertiesChanged(mm.Interface3gpp, mm.Props{mm.Prop3gppRegistrationState: mm.Reg3gppIdle}, nil)
	if u.IsRegistered() {
		t.Error("drop while not connected should apply at once")
	}
	if h.rec.regs != 2 {
		t.Error("expected two registration updates, got ", h.rec.regs)
	}
}

func TestUniversalSignalScaling(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	for _, q := range []uint32{0, 25, 60} {
		u.OnPropertiesChanged(mm.InterfaceModem, mm.Props{
			mm.PropSignalQuality: []interface{}{q, true},
		}, nil)
	}
	if diff := cmp.Diff([]int{1, 51, 100}, h.rec.strengths); diff != "" {
		t.Error("scaled quality mismatch (-exp +got):\n", diff)
	}
}

func TestUniversalConnectStaticBearer(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	var res ConnectResult
	var got *data.Error
	u.Connect(ConnectParams{
		User:     &data.APN{Name: "internet", Username: "me"},
		Provider: apns("p1", "p2"),
	}, func(r ConnectResult, err data.Error) {
		res = r
		got = &err
	})

	call := h.f.Next("Simple.Connect")
	expProps := mm.Props{"allow-roaming": false, "apn": "internet", "user": "me"}
	if diff := cmp.Diff(expProps, call.Args[0].(mm.Props)); diff != "" {
		t.Error("connect props mismatch (-exp +got):\n", diff)
	}

	bearerPath := "/org/freedesktop/ModemManager1/Bearer/0"
	call.Reply(bearerPath)
	h.m.RunPending()

	props := h.f.Next("Properties.GetAll")
	if props == nil || props.Path != bearerPath || props.Args[0] != mm.InterfaceBearer {
		t.Fatal("bearer properties should be read")
	}
	props.Reply(mm.Props{
		mm.PropBearerInterface: "wwan0",
		mm.PropBearerIP4Config: mm.Props{
			"method":  mm.BearerIPStatic,
			"address": "10.0.0.2",
			"prefix":  uint32(30),
			"gateway": "10.0.0.1",
			"dns1":    "192.0.2.53",
			"mtu":     uint32(1430),
		},
	})
	h.m.RunPending()

	if got == nil || !got.IsSuccess() {
		t.Fatal("connect should succeed, got ", got)
	}
	exp := Bearer{
		Path:      bearerPath,
		Interface: "wwan0",
		Method:    IPMethodStatic,
		Static: &StaticConfig{
			Address: "10.0.0.2",
			Prefix:  30,
			Gateway: "10.0.0.1",
			DNS:     []string{"192.0.2.53"},
			MTU:     1430,
		},
	}
	if diff := cmp.Diff(exp, res.Bearer); diff != "" {
		t.Error("bearer mismatch (-exp +got):\n", diff)
	}
	if res.APN == nil || res.APN.Name != "internet" {
		t.Error("result should carry the APN used")
	}
	if len(h.f.Calls("Simple.Connect")) != 1 {
		t.Error("3GPP connect is a single attempt")
	}
}

func TestUniversalResetInProgress(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	u.Reset(func(data.Error) {})
	var got data.Error
	u.Reset(func(err data.Error) { got = err })
	if got.Kind != data.KindInProgress {
		t.Error("second reset should be rejected, got ", got)
	}
	if n := len(h.f.Calls("Modem.Reset")); n != 1 {
		t.Error("expected one reset call, got ", n)
	}
}

func TestUniversalLocation(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	h.f.SetAuto("Location.GetLocation", func(*mmtest.Call) (interface{}, data.Error) {
		return map[uint32]interface{}{mm.LocationSource3gppLacCi: "310,410,1A2B,3C4D5E"}, data.Error{}
	})

	var loc string
	u.GetLocation(func(s string, err data.Error) { loc = s })
	h.m.RunPending()
	if loc != "310,410,1A2B,3C4D5E" {
		t.Error("unexpected location: ", loc)
	}
}

func TestUniversalSimIdentity(t *testing.T) {
	h := newHarness()
	u := newUniversal(h.cfg)

	simPath := "/org/freedesktop/ModemManager1/SIM/0"
	h.f.SetAuto("Properties.GetAll", func(c *mmtest.Call) (interface{}, data.Error) {
		if c.Path != simPath {
			return nil, data.NewError(data.KindNotFound, "unexpected")
		}
		return mm.Props{
			mm.PropSimImsi:         "310410123456789",
			mm.PropSimIdentifier:   "8901410123456789012",
			mm.PropSimOperatorName: "Example",
		}, data.Error{}
	})

	u.OnPropertiesChanged(mm.InterfaceModem, mm.Props{
		mm.PropSim: simPath,
		mm.PropPorts: []interface{}{
			[]interface{}{"cdc-wdm0", uint32(6)},
			[]interface{}{"wwan0", mm.PortTypeNet},
		},
	}, nil)
	h.m.RunPending()

	info := u.Info()
	if info.IMSI != "310410123456789" || info.ICCID != "8901410123456789012" || info.SPN != "Example" {
		t.Errorf("unexpected SIM info: %+v", info)
	}
	if info.Device != "wwan0" {
		t.Error("net port should become the device, got ", info.Device)
	}
	if u.NetworkID() != "31041" {
		t.Error("network id should fall back to the IMSI prefix, got ", u.NetworkID())
	}
}
