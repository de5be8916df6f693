package cellular

import (
	"errors"
	"testing"

	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
	"github.com/simpleiot/cellmgr/ppp"
)

type connectCall struct {
	params capability.ConnectParams
	cb     func(capability.ConnectResult, data.Error)
}

// fakeCap is a capability whose completions are driven by the test
type fakeCap struct {
	variant    capability.Variant
	delegate   capability.Delegate
	info       capability.Info
	registered bool
	roaming    string
	networkID  string
	bearer     *capability.Bearer

	starts      []mm.ResultFunc
	stops       []mm.ResultFunc
	connects    []connectCall
	disconnects []mm.ResultFunc
	scans       []func([]data.Network, data.Error)
	location    string
	cleanups    int
	closed      bool
}

func (f *fakeCap) Variant() capability.Variant { return f.variant }
func (f *fakeCap) Info() capability.Info       { return f.info }

func (f *fakeCap) StartModem(cb mm.ResultFunc) { f.starts = append(f.starts, cb) }
func (f *fakeCap) StopModem(cb mm.ResultFunc)  { f.stops = append(f.stops, cb) }

func (f *fakeCap) EnableModem(_ bool, cb mm.ResultFunc) { cb(data.Error{}) }
func (f *fakeCap) Reset(cb mm.ResultFunc)               { cb(data.Error{}) }
func (f *fakeCap) Register(cb mm.ResultFunc)            { cb(data.Error{}) }

func (f *fakeCap) RegisterOnNetwork(id string, cb mm.ResultFunc) {
	f.networkID = id
	cb(data.Error{})
}

func (f *fakeCap) GetRegistrationInfo(cb mm.ResultFunc) { cb(data.Error{}) }
func (f *fakeCap) IsRegistered() bool                   { return f.registered }
func (f *fakeCap) SetUnregistered(bool)                 { f.registered = false }
func (f *fakeCap) RoamingState() string                 { return f.roaming }
func (f *fakeCap) NetworkTechnology() string            { return data.TechnologyLte }
func (f *fakeCap) NetworkID() string                    { return f.networkID }

func (f *fakeCap) Connect(p capability.ConnectParams, cb func(capability.ConnectResult, data.Error)) {
	f.connects = append(f.connects, connectCall{p, cb})
}

func (f *fakeCap) Disconnect(cb mm.ResultFunc) { f.disconnects = append(f.disconnects, cb) }
func (f *fakeCap) DisconnectCleanup()          { f.cleanups++ }
func (f *fakeCap) ActiveBearer() *capability.Bearer {
	return f.bearer
}

func (f *fakeCap) Scan(cb func([]data.Network, data.Error)) { f.scans = append(f.scans, cb) }
func (f *fakeCap) GetModemInfo(cb mm.ResultFunc)            { cb(data.Error{}) }
func (f *fakeCap) GetSignalQuality()                        {}

func (f *fakeCap) SetCarrier(_ string, cb mm.ResultFunc) { cb(data.Error{}) }
func (f *fakeCap) Activate(_ string, cb mm.ResultFunc)   { cb(data.Error{}) }

func (f *fakeCap) GetLocation(cb func(string, data.Error)) {
	if f.location == "" {
		cb("", data.NewError(data.KindNotSupported, "location not supported"))
		return
	}
	cb(f.location, data.Error{})
}

func (f *fakeCap) OnPropertiesChanged(string, mm.Props, []string) {}
func (f *fakeCap) Close()                                         { f.closed = true }

type fakeLinks struct {
	up       map[int]bool
	watchers map[int]func(bool)
	setUp    []string
}

func (l *fakeLinks) Watch(index int, fn func(bool)) func() {
	l.watchers[index] = fn
	return func() { delete(l.watchers, index) }
}

func (l *fakeLinks) IsUp(index int) bool { return l.up[index] }

func (l *fakeLinks) SetUp(name string) error {
	l.setUp = append(l.setUp, name)
	return nil
}

func (l *fakeLinks) emit(index int, up bool) {
	l.up[index] = up
	if fn, ok := l.watchers[index]; ok {
		fn(up)
	}
}

type fakeIP struct {
	dhcp     []string
	static   []capability.StaticConfig
	dones    []func(error)
	released []string
}

func (f *fakeIP) DHCP(iface string, done func(error)) {
	f.dhcp = append(f.dhcp, iface)
	f.dones = append(f.dones, done)
}

func (f *fakeIP) Static(_ string, cfg capability.StaticConfig, done func(error)) {
	f.static = append(f.static, cfg)
	f.dones = append(f.dones, done)
}

func (f *fakeIP) Release(iface string) { f.released = append(f.released, iface) }

type fakeStore struct {
	profiles map[string]data.Profile
	saved    []data.Profile
}

func (s *fakeStore) Load(id data.Identity) (data.Profile, bool, error) {
	p, ok := s.profiles[id.Key()]
	return p, ok, nil
}

func (s *fakeStore) Save(p data.Profile) error {
	s.saved = append(s.saved, p)
	s.profiles[p.Key] = p
	return nil
}

type fakeProviders map[string]data.Provider

func (f fakeProviders) Lookup(id string) (data.Provider, bool) {
	p, ok := f[id]
	return p, ok
}

type fakeProcess struct {
	exit    func(int)
	stopped bool
}

func (p *fakeProcess) Pid() int { return 77 }
func (p *fakeProcess) Stop()    { p.stopped = true }

type fakeRunner struct {
	args  []string
	procs []*fakeProcess
}

func (r *fakeRunner) Start(_ string, args, _ []string, exit func(int)) (ppp.Process, error) {
	r.args = args
	p := &fakeProcess{exit: exit}
	r.procs = append(r.procs, p)
	return p, nil
}

var errTest = errors.New("test failure")

const (
	testIMSI  = "310410123456789"
	testIndex = 3
)

type harness struct {
	m         *loop.Manual
	cap       *fakeCap
	links     *fakeLinks
	ip        *fakeIP
	store     *fakeStore
	providers fakeProviders
	runner    *fakeRunner
	snapshots []data.DeviceSnapshot
	d         *Device
}

func newHarness(t *testing.T, allowRoaming bool) *harness {
	h := &harness{
		m: loop.NewManual(),
		cap: &fakeCap{
			info:    capability.Info{IMSI: testIMSI, IMEI: "356938035643809"},
			roaming: data.RoamingStateHome,
		},
		links:  &fakeLinks{up: map[int]bool{}, watchers: map[int]func(bool){}},
		ip:     &fakeIP{},
		store:  &fakeStore{profiles: map[string]data.Profile{}},
		runner: &fakeRunner{},
		providers: fakeProviders{
			"310410": {
				ID:   "310410",
				Name: "Example Mobile",
				APNs: []data.APN{{Name: "broadband"}, {Name: "phone"}},
			},
		},
	}

	newCapability = func(v capability.Variant, c capability.Config) capability.Capability {
		h.cap.variant = v
		h.cap.delegate = c.Delegate
		return h.cap
	}
	t.Cleanup(func() { newCapability = capability.New })

	h.d = NewDevice(Config{
		Dispatcher:   h.m,
		Path:         "/org/freedesktop/ModemManager1/Modem/0",
		Variant:      capability.ThreeGPP,
		Interface:    "wwan0",
		Index:        testIndex,
		MAC:          "02:00:00:00:00:01",
		Providers:    h.providers,
		Profiles:     h.store,
		Links:        h.links,
		IP:           h.ip,
		PPP:          ppp.NewBridge(h.m, h.runner, nil, ppp.Options{}),
		OnChange:     func(s data.DeviceSnapshot) { h.snapshots = append(h.snapshots, s) },
		AllowRoaming: allowRoaming,
	})
	return h
}

// start enables the device and completes the modem start
func (h *harness) start(t *testing.T) {
	var got *data.Error
	h.d.Start(func(err data.Error) { got = &err })
	if len(h.cap.starts) != 1 {
		t.Fatal("expected one modem start, got ", len(h.cap.starts))
	}
	h.cap.starts[0](data.Error{})
	if got == nil || !got.IsSuccess() {
		t.Fatal("start failed: ", got)
	}
}

func (h *harness) register(roaming string) {
	h.cap.registered = true
	h.cap.roaming = roaming
	h.cap.delegate.RegistrationChanged()
}

// connect connects and completes the modem connect with bearer
func (h *harness) connect(t *testing.T, bearer capability.Bearer) {
	var got *data.Error
	h.d.Connect(func(err data.Error) { got = &err })
	n := len(h.cap.connects)
	if n == 0 {
		t.Fatal("no connect issued, got ", got)
	}
	h.cap.connects[n-1].cb(capability.ConnectResult{
		APN:    &data.APN{Name: "broadband"},
		Bearer: bearer,
	}, data.Error{})
	if got == nil || !got.IsSuccess() {
		t.Fatal("connect failed: ", got)
	}
}
