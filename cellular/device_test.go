package cellular

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/ppp"
)

func TestStopDisabledIsNoop(t *testing.T) {
	h := newHarness(t, false)

	calls := 0
	h.d.Stop(func(err data.Error) {
		calls++
		if err.IsFailure() {
			t.Error("stop of a disabled device should succeed, got ", err)
		}
	})
	h.d.Stop(func(data.Error) { calls++ })

	if calls != 2 {
		t.Error("every stop should complete, got ", calls)
	}
	if len(h.cap.stops) != 0 {
		t.Error("stop of a disabled device should not touch the modem")
	}
	if h.d.State() != data.DeviceDisabled {
		t.Error("expected Disabled, got ", h.d.State())
	}
}

func TestStartFailureReturnsToDisabled(t *testing.T) {
	h := newHarness(t, false)

	var got data.Error
	h.d.Start(func(err data.Error) { got = err })
	if h.d.State() != data.DeviceEnabling {
		t.Fatal("expected Enabling, got ", h.d.State())
	}
	h.cap.starts[0](data.NewError(data.KindPinRequired, "SIM PIN"))

	if got.Kind != data.KindPinRequired {
		t.Error("start should report the modem error, got ", got)
	}
	if h.d.State() != data.DeviceDisabled {
		t.Error("expected Disabled, got ", h.d.State())
	}
}

func TestConnectDHCP(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	if h.d.State() != data.DeviceEnabled {
		t.Fatal("expected Enabled, got ", h.d.State())
	}

	h.register(data.RoamingStateHome)
	if h.d.State() != data.DeviceRegistered || h.d.Service() == nil {
		t.Fatal("registration should create the service")
	}

	h.d.Connect(func(data.Error) {})
	params := h.cap.connects[0].params
	expAPNs := []data.APN{{Name: "broadband"}, {Name: "phone"}}
	if diff := cmp.Diff(expAPNs, params.Provider); diff != "" {
		t.Error("provider APNs mismatch (-exp +got):\n", diff)
	}
	if params.AllowRoaming {
		t.Error("roaming should not be allowed")
	}
	if h.d.Service().State() != data.ServiceAssociating {
		t.Error("service should be associating, got ", h.d.Service().State())
	}

	h.cap.connects[0].cb(capability.ConnectResult{
		APN:    &data.APN{Name: "broadband"},
		Bearer: capability.Bearer{Interface: "wwan0", Method: capability.IPMethodDHCP},
	}, data.Error{})

	if h.d.State() != data.DeviceConnected {
		t.Fatal("expected Connected, got ", h.d.State())
	}
	if diff := cmp.Diff([]string{"wwan0"}, h.links.setUp); diff != "" {
		t.Error("link should be brought up (-exp +got):\n", diff)
	}

	h.links.emit(testIndex, true)
	h.m.RunPending()
	if h.d.State() != data.DeviceLinked {
		t.Fatal("expected Linked, got ", h.d.State())
	}
	if diff := cmp.Diff([]string{"wwan0"}, h.ip.dhcp); diff != "" {
		t.Error("DHCP mismatch (-exp +got):\n", diff)
	}

	h.ip.dones[0](nil)
	h.m.RunPending()

	snap := h.d.Snapshot()
	if snap.Service == nil || snap.Service.State != "ready" {
		t.Fatalf("service should be ready, got %+v", snap.Service)
	}
	if snap.Service.LastGoodAPN == nil || snap.Service.LastGoodAPN.Name != "broadband" {
		t.Error("connected APN should become the last good APN")
	}
	if snap.EquipmentID != "356938035643809" {
		t.Error("equipment id should be the IMEI, got ", snap.EquipmentID)
	}
	if snap.HomeProvider.Name != "Example Mobile" {
		t.Error("home provider should come from the IMSI, got ", snap.HomeProvider)
	}

	saved := h.store.profiles[data.Identity{IMSI: testIMSI}.Key()]
	if saved.LastGoodAPN == nil || saved.LastGoodAPN.Name != "broadband" {
		t.Error("last good APN should be persisted")
	}
}

func TestDHCPFailureRollsBack(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Interface: "wwan0", Method: capability.IPMethodDHCP})

	if h.d.State() != data.DeviceLinked {
		t.Fatal("link already up should go straight to Linked, got ", h.d.State())
	}

	h.ip.dones[0](errTest)
	h.m.RunPending()
	if len(h.cap.disconnects) != 1 {
		t.Fatal("IP failure should disconnect")
	}
	h.cap.disconnects[0](data.Error{})

	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}
	if f := h.d.Service().Failure(); f != data.FailureDHCP {
		t.Error("expected DHCP failure, got ", f)
	}
	if diff := cmp.Diff([]string{"wwan0"}, h.ip.released); diff != "" {
		t.Error("IP config should be released (-exp +got):\n", diff)
	}
}

func TestRoamingNotAllowed(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateRoaming)

	var got data.Error
	h.d.Connect(func(err data.Error) { got = err })

	if got.Kind != data.KindNotOnHomeNetwork {
		t.Error("expected NotOnHomeNetwork, got ", got)
	}
	if len(h.cap.connects) != 0 {
		t.Error("no connect should be attempted while roaming")
	}
	if f := h.d.Service().Failure(); f != data.FailureNotOnHomeNetwork {
		t.Error("expected not on home network failure, got ", f)
	}
}

func TestProviderRequiresRoaming(t *testing.T) {
	h := newHarness(t, false)
	p := h.providers["310410"]
	p.RequiresRoaming = true
	h.providers["310410"] = p

	h.start(t)
	h.register(data.RoamingStateRoaming)

	h.d.Connect(func(data.Error) {})
	if len(h.cap.connects) != 1 {
		t.Fatal("connect should proceed when the provider requires roaming")
	}
	if !h.cap.connects[0].params.AllowRoaming {
		t.Error("connect should allow roaming")
	}
}

func TestRoamingWhileConnectedDisconnects(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Method: capability.IPMethodDHCP})

	h.register(data.RoamingStateRoaming)
	if len(h.cap.disconnects) != 1 {
		t.Fatal("roaming while connected should disconnect")
	}
	h.cap.disconnects[0](data.Error{})
	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}

	h.d.SetAllowRoaming(true)
	h.d.Connect(func(data.Error) {})
	if len(h.cap.connects) != 2 {
		t.Error("connect should be attempted once roaming is allowed")
	}
}

func TestStaleConnectedDiscarded(t *testing.T) {
	h := newHarness(t, false)

	h.cap.delegate.ModemStateChanged(data.ModemConnected)
	if h.d.State() != data.DeviceDisabled {
		t.Error("connected while disabled should be discarded, got ", h.d.State())
	}

	h.d.Start(func(data.Error) {})
	h.cap.delegate.ModemStateChanged(data.ModemConnected)
	if h.d.State() != data.DeviceEnabling {
		t.Error("connected while enabling should be discarded, got ", h.d.State())
	}
}

func TestModemConnectedWithoutRequest(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true

	h.cap.delegate.ModemStateChanged(data.ModemConnected)
	if h.d.State() != data.DeviceLinked {
		t.Error("modem connected should establish the link, got ", h.d.State())
	}

	h.cap.delegate.ModemStateChanged(data.ModemDisconnecting)
	if h.d.State() != data.DeviceLinked {
		t.Error("disconnecting should wait for the final state")
	}
	h.cap.delegate.ModemStateChanged(data.ModemRegistered)
	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}
}

func TestLinkDown(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Interface: "wwan0", Method: capability.IPMethodDHCP})
	h.ip.dones[0](nil)
	h.m.RunPending()

	h.links.emit(testIndex, false)
	h.m.RunPending()
	if h.d.State() != data.DeviceConnected {
		t.Fatal("link down should return to Connected, got ", h.d.State())
	}
	if diff := cmp.Diff([]string{"wwan0"}, h.ip.released); diff != "" {
		t.Error("IP config should be dropped (-exp +got):\n", diff)
	}

	h.links.emit(testIndex, true)
	h.m.RunPending()
	if h.d.State() != data.DeviceLinked || len(h.ip.dhcp) != 2 {
		t.Error("link up should configure IP again")
	}
}

func TestStaticBearer(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true

	static := &capability.StaticConfig{Address: "10.0.0.2", Prefix: 30, Gateway: "10.0.0.1"}
	h.connect(t, capability.Bearer{Interface: "wwan0", Method: capability.IPMethodStatic, Static: static})

	if diff := cmp.Diff([]capability.StaticConfig{*static}, h.ip.static); diff != "" {
		t.Error("static config mismatch (-exp +got):\n", diff)
	}
	if len(h.ip.dhcp) != 0 {
		t.Error("static bearer should not run DHCP")
	}
}

func TestDisconnectFailureWhileDisconnecting(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Method: capability.IPMethodDHCP})

	var got *data.Error
	h.d.Disconnect(func(err data.Error) { got = &err })
	h.cap.delegate.ModemStateChanged(data.ModemDisconnecting)
	h.cap.disconnects[0](data.NewError(data.KindOperationFailed, "busy"))

	if got == nil || got.IsFailure() {
		t.Fatal("failure while disconnecting should be ignored, got ", got)
	}
	if !h.d.State().IsConnected() {
		t.Error("state should wait for the modem, got ", h.d.State())
	}

	h.cap.delegate.ModemStateChanged(data.ModemRegistered)
	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}
}

func TestDisconnectFailureCleansUp(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Method: capability.IPMethodDHCP})

	var got data.Error
	h.d.Disconnect(func(err data.Error) { got = err })
	h.cap.disconnects[0](data.NewError(data.KindOperationFailed, "gone"))

	if got.Kind != data.KindOperationFailed {
		t.Error("error should be reported, got ", got)
	}
	if h.d.State() != data.DeviceRegistered {
		t.Error("local state should be cleaned up, got ", h.d.State())
	}
}

func TestPPPAuthFailure(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.connect(t, capability.Bearer{Interface: "ttyUSB0", Method: capability.IPMethodPPP})

	if len(h.runner.procs) != 1 {
		t.Fatal("pppd should be started")
	}
	if dev := h.runner.args[len(h.runner.args)-1]; dev != "/dev/ttyUSB0" {
		t.Error("pppd should run on the modem port, got ", dev)
	}

	h.d.ppp.session.Notify(ppp.ReasonAuthenticating, nil)
	h.runner.procs[0].exit(1)
	h.m.RunPending()

	if len(h.cap.disconnects) != 1 {
		t.Fatal("pppd exit should disconnect the modem")
	}
	h.cap.disconnects[0](data.Error{})

	if f := h.d.Service().Failure(); f != data.FailurePPPAuth {
		t.Errorf("expected %q, got %q", data.FailurePPPAuth, f)
	}
	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}
}

func TestPPPConnect(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.d.SetPPPCredentials("user", "pass")
	h.connect(t, capability.Bearer{Interface: "ttyUSB0", Method: capability.IPMethodPPP})

	l := h.d.ppp
	if u, p := l.PPPLogin(); u != "user" || p != "pass" {
		t.Error("unexpected credentials: ", u, p)
	}

	l.session.Notify(ppp.ReasonConnect, map[string]string{
		ppp.KeyInterface:       "ppp0",
		ppp.KeyInternalAddress: "10.64.0.2",
		ppp.KeyExternalAddress: "10.64.0.1",
		ppp.KeyDNS1:            "192.0.2.53",
		ppp.KeyDNS2:            "192.0.2.54",
		ppp.KeyMRU:             "1500",
	})
	if h.d.State() != data.DeviceLinked {
		t.Fatal("expected Linked, got ", h.d.State())
	}
	exp := []capability.StaticConfig{{
		Address: "10.64.0.2",
		Prefix:  32,
		Gateway: "10.64.0.1",
		DNS:     []string{"192.0.2.53", "192.0.2.54"},
		MTU:     1500,
	}}
	if diff := cmp.Diff(exp, h.ip.static); diff != "" {
		t.Error("PPP IP config mismatch (-exp +got):\n", diff)
	}

	// an explicit disconnect stops pppd without a failure
	h.d.Disconnect(func(data.Error) {})
	if !h.runner.procs[0].stopped {
		t.Error("disconnect should stop pppd")
	}
	h.runner.procs[0].exit(0)
	h.m.RunPending()
	h.cap.disconnects[0](data.Error{})
	if f := h.d.Service().Failure(); f != data.FailureNone {
		t.Error("explicit disconnect should not fail the service, got ", f)
	}
}

func TestInvalidApnClearsLastGood(t *testing.T) {
	h := newHarness(t, false)
	h.store.profiles[data.Identity{IMSI: testIMSI}.Key()] = data.Profile{
		Key:         data.Identity{IMSI: testIMSI}.Key(),
		ServiceID:   "c0ffee",
		LastGoodAPN: &data.APN{Name: "stale"},
	}
	h.start(t)
	h.register(data.RoamingStateHome)

	h.d.Connect(func(data.Error) {})
	if lg := h.cap.connects[0].params.LastGood; lg == nil || lg.Name != "stale" {
		t.Fatal("stored last good APN should be tried")
	}
	h.cap.connects[0].cb(capability.ConnectResult{}, data.NewError(data.KindInvalidApn, "no more APNs"))

	if h.d.Service().Failure() != data.FailureInvalidAPN {
		t.Error("expected invalid APN failure, got ", h.d.Service().Failure())
	}
	snap := h.d.Snapshot()
	if snap.Service.LastGoodAPN != nil {
		t.Error("last good APN should be cleared")
	}
	if h.d.State() != data.DeviceRegistered {
		t.Error("expected Registered, got ", h.d.State())
	}
}

func TestServiceReattach(t *testing.T) {
	h := newHarness(t, false)
	key := data.Identity{IMSI: testIMSI}.Key()
	h.store.profiles[key] = data.Profile{
		Key:          key,
		ServiceID:    "c0ffee",
		UserAPN:      &data.APN{Name: "custom"},
		AllowRoaming: true,
	}

	h.start(t)
	h.register(data.RoamingStateRoaming)

	if h.d.Service().ID() != "c0ffee" {
		t.Error("service should be re-attached, got ", h.d.Service().ID())
	}
	h.d.Connect(func(data.Error) {})
	if len(h.cap.connects) != 1 {
		t.Fatal("stored allow roaming should permit connect")
	}
	if u := h.cap.connects[0].params.User; u == nil || u.Name != "custom" {
		t.Error("stored user APN should be used")
	}
}

func TestRegistrationLost(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Method: capability.IPMethodDHCP})

	h.cap.registered = false
	h.cap.delegate.RegistrationChanged()

	if h.d.State() != data.DeviceEnabled {
		t.Error("expected Enabled, got ", h.d.State())
	}
	if h.d.Service() != nil {
		t.Error("service should be destroyed")
	}
	if _, ok := h.store.profiles[data.Identity{IMSI: testIMSI}.Key()]; !ok {
		t.Error("service should be saved before it is destroyed")
	}
}

func TestRegistrationLostDuringConnect(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)

	var got *data.Error
	h.d.Connect(func(err data.Error) { got = &err })
	if len(h.cap.connects) != 1 {
		t.Fatal("no connect issued")
	}

	h.cap.registered = false
	h.cap.delegate.RegistrationChanged()

	h.cap.connects[0].cb(capability.ConnectResult{
		APN:    &data.APN{Name: "broadband"},
		Bearer: capability.Bearer{Method: capability.IPMethodDHCP},
	}, data.Error{})

	if got == nil || got.Kind != data.KindWrongState {
		t.Fatal("expected WrongState, got ", got)
	}
	if h.d.State() != data.DeviceEnabled {
		t.Error("expected Enabled, got ", h.d.State())
	}
	if len(h.cap.disconnects) != 1 {
		t.Fatal("bearer of the discarded connect was not dropped")
	}

	h.cap.disconnects[0](data.NewError(data.KindOperationFailed, "gone"))
	if h.cap.cleanups != 1 {
		t.Error("expected cleanup after a failed disconnect, got ", h.cap.cleanups)
	}
	if len(h.ip.dhcp) != 0 {
		t.Error("IP configured for a discarded connection")
	}
}

func TestStopWhileConnected(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)
	h.links.up[testIndex] = true
	h.connect(t, capability.Bearer{Interface: "wwan0", Method: capability.IPMethodDHCP})

	var got *data.Error
	h.d.Stop(func(err data.Error) { got = &err })
	if h.d.State() != data.DeviceDisabling {
		t.Fatal("expected Disabling, got ", h.d.State())
	}
	h.cap.stops[0](data.Error{})

	if got == nil || got.IsFailure() {
		t.Fatal("stop failed: ", got)
	}
	if h.d.State() != data.DeviceDisabled || h.d.Service() != nil {
		t.Error("device should be disabled without a service")
	}
	if len(h.ip.released) != 1 {
		t.Error("IP config should be released")
	}
}

func TestCloseDiscardsLateConnect(t *testing.T) {
	h := newHarness(t, false)
	h.start(t)
	h.register(data.RoamingStateHome)

	called := false
	h.d.Connect(func(data.Error) { called = true })
	h.d.Close()
	if !h.cap.closed {
		t.Fatal("close should release the capability")
	}

	n := len(h.snapshots)
	h.cap.connects[0].cb(capability.ConnectResult{
		Bearer: capability.Bearer{Method: capability.IPMethodDHCP},
	}, data.Error{})
	h.m.RunPending()

	if called {
		t.Error("connect completion after close should be dropped")
	}
	if h.d.State() != data.DeviceRegistered {
		t.Error("state should not change after close, got ", h.d.State())
	}
	if len(h.snapshots) != n {
		t.Error("no updates should be published after close")
	}
	if len(h.links.watchers) != 0 {
		t.Error("link watch should be cancelled")
	}
}

func TestScan(t *testing.T) {
	h := newHarness(t, false)

	var got data.Error
	h.d.Scan(func(_ []data.Network, err data.Error) { got = err })
	if got.Kind != data.KindWrongState {
		t.Error("scan while disabled should fail, got ", got)
	}

	h.start(t)
	var nets []data.Network
	h.d.Scan(func(n []data.Network, _ data.Error) { nets = n })
	h.d.Scan(func(_ []data.Network, err data.Error) { got = err })
	if got.Kind != data.KindInProgress {
		t.Error("second scan should be rejected, got ", got)
	}
	if !h.d.Snapshot().Scanning {
		t.Error("snapshot should show scanning")
	}

	found := []data.Network{{ID: "310410", LongName: "Example Mobile", Status: "current"}}
	h.cap.scans[0](found, data.Error{})
	if diff := cmp.Diff(found, nets); diff != "" {
		t.Error("scan result mismatch (-exp +got):\n", diff)
	}
	if diff := cmp.Diff(found, h.d.Snapshot().FoundNetworks); diff != "" {
		t.Error("found networks mismatch (-exp +got):\n", diff)
	}
}

func TestLocation(t *testing.T) {
	h := newHarness(t, false)
	h.cap.location = "310,410,1A2B,3C4D5E"
	h.start(t)

	exp := &data.CellLocation{MCC: "310", MNC: "410", LAC: "1A2B", CI: "3C4D5E"}
	if diff := cmp.Diff(exp, h.d.Snapshot().Location); diff != "" {
		t.Error("location mismatch (-exp +got):\n", diff)
	}

	h.cap.location = "311,480,0001,0002"
	h.m.Advance(LocationInterval)
	if loc := h.d.Snapshot().Location; loc == nil || loc.MNC != "480" {
		t.Error("location should be polled again, got ", loc)
	}

	if _, ok := parseLocation("310,410"); ok {
		t.Error("short location should not parse")
	}
}
