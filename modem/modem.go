// Package modem binds modems announced by ModemManager to cellular devices.
// A Manager follows one ModemManager service, classic or ModemManager1,
// and owns a Modem for every modem object the service exposes.
package modem

import (
	"log"
	"os"
	"path/filepath"

	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/cellular"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// Resolver maps a kernel interface name to its index and MAC address
type Resolver interface {
	Lookup(name string) (index int, mac string, err error)
}

// Modem is one remote modem object. It creates its cellular device once
// the data interface of the modem can be resolved.
type Modem struct {
	log     *log.Logger
	mgr     *Manager
	owner   string
	path    string
	classic bool
	scope   *loop.Scope
	props   mm.PropertiesProxy
	ifaces  mm.InterfaceProps
	variant capability.Variant
	known   bool
	device  *cellular.Device
}

func newModem(mgr *Manager, owner, path string) *Modem {
	m := &Modem{
		log:     log.New(os.Stderr, "modem: ", log.LstdFlags|log.Lmsgprefix),
		mgr:     mgr,
		owner:   owner,
		path:    path,
		classic: mgr.classic,
		scope:   loop.NewScope(),
		props:   mgr.cfg.Factory.Properties(owner, path),
		ifaces:  make(mm.InterfaceProps),
	}

	m.props.OnPropertiesChanged(func(iface string, changed mm.Props, invalidated []string) {
		m.onPropertiesChanged(iface, changed, invalidated)
	})
	if m.classic {
		m.props.OnMMPropertiesChanged(func(iface string, changed mm.Props) {
			m.onPropertiesChanged(iface, changed, nil)
		})
	}
	return m
}

// Path returns the modem object path
func (m *Modem) Path() string {
	return m.path
}

// Device returns the bound device, nil while the interface is unresolved
func (m *Modem) Device() *cellular.Device {
	return m.device
}

// init binds a ModemManager1 modem from its managed object properties
func (m *Modem) init(ifaces mm.InterfaceProps) {
	for iface, props := range ifaces {
		m.ifaces[iface] = props
	}
	v, ok := capability.SelectVariant(m.ifaces)
	if !ok {
		m.log.Println("no supported modem interface on ", m.path)
		return
	}
	m.setVariant(v)
	m.createDevice()
}

func (m *Modem) setVariant(v capability.Variant) {
	m.variant = v
	m.known = true
}

// initClassic reads the classic modem properties and probes the
// registration interfaces when the modem type is not known
func (m *Modem) initClassic() {
	m.props.GetAll(mm.ClassicInterfaceModem, mm.TimeoutDefault, loop.Bind2(m.scope, func(p mm.Props, err data.Error) {
		if err.IsFailure() {
			m.log.Printf("error reading %v: %v", m.path, err)
			return
		}
		m.ifaces[mm.ClassicInterfaceModem] = p

		t, _ := p.Uint32(mm.ClassicPropType)
		if v, ok := capability.SelectClassicVariant(t, nil); ok {
			m.setVariant(v)
			m.createDevice()
			return
		}
		m.probe([]string{mm.ClassicInterfaceGsmNetwork, mm.ClassicInterfaceCdma})
	}))
}

func (m *Modem) probe(ifaces []string) {
	if len(ifaces) == 0 {
		m.log.Println("unknown modem type for ", m.path)
		return
	}
	iface := ifaces[0]
	m.props.GetAll(iface, mm.TimeoutDefault, loop.Bind2(m.scope, func(p mm.Props, err data.Error) {
		if err.IsFailure() {
			m.probe(ifaces[1:])
			return
		}
		m.ifaces[iface] = p
		v, _ := capability.SelectClassicVariant(0, []string{iface})
		m.setVariant(v)
		m.createDevice()
	}))
}

// link returns the data interface name and whether it is only a serial
// port used for PPP
func (m *Modem) link() (string, bool) {
	if m.classic {
		p := m.ifaces[mm.ClassicInterfaceModem]
		name, _ := p.String(mm.ClassicPropDevice)
		method, ok := p.Uint32(mm.ClassicPropIPMethod)
		return name, ok && method == mm.ClassicIPMethodPPP
	}

	p := m.ifaces[mm.InterfaceModem]
	if name, ok := p.NetPort(); ok {
		return name, false
	}
	port, _ := p.String(mm.PropPrimaryPort)
	return port, port != ""
}

func (m *Modem) createDevice() {
	if m.device != nil || !m.known || m.scope.Closed() {
		return
	}

	name, serial := m.link()
	if name == "" {
		m.log.Println("waiting for the data port of ", m.path)
		return
	}
	name = filepath.Base(name)

	var index int
	var mac string
	if !serial {
		var err error
		index, mac, err = m.mgr.cfg.Resolver.Lookup(name)
		if err != nil {
			m.log.Printf("waiting for interface %v: %v", name, err)
			return
		}
	}

	cfg := m.mgr.cfg.Device
	cfg.Dispatcher = m.mgr.cfg.Dispatcher
	cfg.Factory = m.mgr.cfg.Factory
	cfg.Service = m.owner
	cfg.Path = m.path
	cfg.Variant = m.variant
	cfg.Interface = name
	cfg.Index = index
	cfg.MAC = mac

	m.log.Printf("%v: %v device on %v", m.path, m.variant, name)
	m.device = cellular.NewDevice(cfg)
	for iface, props := range m.ifaces {
		m.device.OnPropertiesChanged(iface, props, nil)
	}

	if m.mgr.cfg.AutoEnable {
		m.device.Start(loop.Bind(m.scope, func(err data.Error) {
			if err.IsFailure() {
				m.log.Printf("error enabling %v: %v", name, err)
			}
		}))
	}
	m.mgr.devicesChanged()
}

func (m *Modem) onPropertiesChanged(iface string, changed mm.Props, invalidated []string) {
	if m.scope.Closed() {
		return
	}
	if m.device != nil {
		m.device.OnPropertiesChanged(iface, changed, invalidated)
		return
	}

	p := m.ifaces[iface]
	if p == nil {
		p = make(mm.Props)
		m.ifaces[iface] = p
	}
	for k, v := range changed {
		p[k] = v
	}
	for _, k := range invalidated {
		delete(p, k)
	}
	if !m.known && !m.classic {
		if v, ok := capability.SelectVariant(m.ifaces); ok {
			m.setVariant(v)
		}
	}
	m.createDevice()
}

// Close tears down the device. Pending completions are dropped.
func (m *Modem) Close() {
	if m.scope.Closed() {
		return
	}
	m.scope.Close()
	m.props.Close()
	if m.device != nil {
		m.log.Println("removing device for ", m.path)
		m.device.Close()
		m.device = nil
	}
}
