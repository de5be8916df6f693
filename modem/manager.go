package modem

import (
	"log"
	"os"
	"sort"

	"github.com/blang/semver/v4"
	"github.com/simpleiot/cellmgr/cellular"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// MinVersion is the oldest ModemManager1 daemon that is used
var MinVersion = semver.MustParse("1.0.0")

// Config configures a Manager
type Config struct {
	Factory    mm.Factory
	Dispatcher loop.Dispatcher
	Resolver   Resolver
	// Device is the template for created devices. Path, Service,
	// Variant and interface fields are filled in per modem.
	Device cellular.Config
	// AutoEnable starts devices as soon as they are created
	AutoEnable bool
	// OnDevices is called when a device is added or removed
	OnDevices func()
}

// Manager follows one ModemManager service on the bus and keeps one Modem
// per modem object. All methods must be called on the loop.
type Manager struct {
	log     *log.Logger
	cfg     Config
	classic bool
	service string

	cancelWatch func()
	owner       string
	session     *loop.Scope
	objects     mm.ObjectManagerProxy
	devices     mm.ClassicManagerProxy
	modems      map[string]*Modem
}

// NewManager returns a manager for ModemManager1
func NewManager(cfg Config) *Manager {
	return newManager(cfg, mm.Service, false)
}

// NewClassicManager returns a manager for the classic ModemManager
func NewClassicManager(cfg Config) *Manager {
	return newManager(cfg, mm.ClassicService, true)
}

func newManager(cfg Config, service string, classic bool) *Manager {
	prefix := "mm1: "
	if classic {
		prefix = "mm-classic: "
	}
	return &Manager{
		log:     log.New(os.Stderr, prefix, log.LstdFlags|log.Lmsgprefix),
		cfg:     cfg,
		classic: classic,
		service: service,
		modems:  make(map[string]*Modem),
	}
}

// Start watches the service name
func (m *Manager) Start() {
	if m.cancelWatch != nil {
		return
	}
	m.cancelWatch = m.cfg.Factory.Bus().WatchNameOwner(m.service, m.onOwner)
}

// Stop stops watching and tears down every modem
func (m *Manager) Stop() {
	if m.cancelWatch == nil {
		return
	}
	m.cancelWatch()
	m.cancelWatch = nil
	m.disconnect()
}

// Modems returns the tracked modem paths, sorted
func (m *Manager) Modems() []string {
	ret := make([]string, 0, len(m.modems))
	for p := range m.modems {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

// Devices returns snapshots of all bound devices, sorted by path
func (m *Manager) Devices() []data.DeviceSnapshot {
	var ret []data.DeviceSnapshot
	for _, p := range m.Modems() {
		if d := m.modems[p].Device(); d != nil {
			ret = append(ret, d.Snapshot())
		}
	}
	return ret
}

// Device finds a device by interface name or modem path
func (m *Manager) Device(id string) *cellular.Device {
	for p, mod := range m.modems {
		d := mod.Device()
		if d == nil {
			continue
		}
		if p == id || d.Snapshot().Interface == id {
			return d
		}
	}
	return nil
}

func (m *Manager) devicesChanged() {
	if m.cfg.OnDevices != nil {
		m.cfg.OnDevices()
	}
}

func (m *Manager) onOwner(owner string) {
	if owner == m.owner {
		return
	}
	if m.owner != "" {
		m.log.Printf("%v vanished", m.service)
		m.disconnect()
	}
	if owner == "" {
		return
	}

	m.log.Printf("%v appeared, owner %v", m.service, owner)
	m.owner = owner
	m.session = loop.NewScope()
	if m.classic {
		m.connectClassic()
	} else {
		m.connect()
	}
}

func (m *Manager) connect() {
	m.objects = m.cfg.Factory.ObjectManager(m.owner)
	m.objects.OnInterfacesAdded(loop.Bind2(m.session, m.onInterfacesAdded))
	m.objects.OnInterfacesRemoved(loop.Bind2(m.session, m.onInterfacesRemoved))

	props := m.cfg.Factory.Properties(m.owner, mm.Path)
	props.GetAll(mm.InterfaceManager, mm.TimeoutDefault, loop.Bind2(m.session, func(p mm.Props, err data.Error) {
		props.Close()
		if err.IsSuccess() && !m.versionOK(p) {
			return
		}
		m.objects.GetManagedObjects(mm.TimeoutDefault, loop.Bind2(m.session, m.onManagedObjects))
	}))
}

// versionOK returns false if the daemon reports a version older than
// MinVersion. An unreadable version is accepted.
func (m *Manager) versionOK(p mm.Props) bool {
	s, ok := p.String(mm.PropVersion)
	if !ok {
		return true
	}
	v, err := semver.ParseTolerant(s)
	if err != nil {
		m.log.Printf("unparsable version %q: %v", s, err)
		return true
	}
	if v.LT(MinVersion) {
		m.log.Printf("ModemManager %v is older than %v, ignoring it", v, MinVersion)
		return false
	}
	return true
}

func (m *Manager) onManagedObjects(objs mm.ManagedObjects, err data.Error) {
	if err.IsFailure() {
		m.log.Println("error getting managed objects: ", err)
		return
	}
	for path, ifaces := range objs {
		m.onInterfacesAdded(path, ifaces)
	}
}

func (m *Manager) onInterfacesAdded(path string, ifaces mm.InterfaceProps) {
	if mod, ok := m.modems[path]; ok {
		for iface, props := range ifaces {
			mod.onPropertiesChanged(iface, props, nil)
		}
		return
	}
	if !ifaces.Has(mm.InterfaceModem) {
		return
	}

	m.log.Println("adding modem ", path)
	mod := newModem(m, m.owner, path)
	m.modems[path] = mod
	mod.init(ifaces)
}

func (m *Manager) onInterfacesRemoved(path string, ifaces []string) {
	for _, i := range ifaces {
		if i == mm.InterfaceModem {
			m.removeModem(path)
			return
		}
	}
}

func (m *Manager) connectClassic() {
	m.devices = m.cfg.Factory.ClassicManager(m.owner)
	m.devices.OnDeviceAdded(loop.Bind(m.session, m.addClassicModem))
	m.devices.OnDeviceRemoved(loop.Bind(m.session, m.removeModem))
	m.devices.EnumerateDevices(mm.TimeoutDefault, loop.Bind2(m.session, func(paths []string, err data.Error) {
		if err.IsFailure() {
			m.log.Println("error enumerating devices: ", err)
			return
		}
		for _, p := range paths {
			m.addClassicModem(p)
		}
	}))
}

func (m *Manager) addClassicModem(path string) {
	if _, ok := m.modems[path]; ok {
		return
	}
	m.log.Println("adding modem ", path)
	mod := newModem(m, m.owner, path)
	m.modems[path] = mod
	mod.initClassic()
}

func (m *Manager) removeModem(path string) {
	mod, ok := m.modems[path]
	if !ok {
		return
	}
	m.log.Println("removing modem ", path)
	delete(m.modems, path)
	hadDevice := mod.Device() != nil
	mod.Close()
	if hadDevice {
		m.devicesChanged()
	}
}

// disconnect drops everything learned from the current owner
func (m *Manager) disconnect() {
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	if m.objects != nil {
		m.objects.Close()
		m.objects = nil
	}
	if m.devices != nil {
		m.devices.Close()
		m.devices = nil
	}

	removed := len(m.modems) > 0
	for p, mod := range m.modems {
		mod.Close()
		delete(m.modems, p)
	}
	m.owner = ""
	if removed {
		m.devicesChanged()
	}
}
