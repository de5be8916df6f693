package mmtest

import (
	"time"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/mm"
)

type proxy struct {
	f       *Factory
	service string
	path    string
	subs    []*handler
}

func (p *proxy) on(signal string, fn interface{}) {
	p.subs = append(p.subs, p.f.on(p.path, signal, fn))
}

func (p *proxy) Close() {
	p.f.off(p.subs)
	p.subs = nil
}

func (p *proxy) result(method string, timeout time.Duration, cb mm.ResultFunc, args ...interface{}) {
	cb = mm.WithDeadlineResult(p.f.disp, timeout, method, cb)
	p.f.issue(p.service, p.path, method, timeout, func(_ interface{}, err data.Error) {
		cb(err)
	}, args...)
}

func (p *proxy) str(method string, timeout time.Duration, cb func(string, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, method, cb)
	p.f.issue(p.service, p.path, method, timeout, func(v interface{}, err data.Error) {
		s, _ := v.(string)
		cb(s, err)
	})
}

func (p *proxy) u32(method string, timeout time.Duration, cb func(uint32, data.Error), args ...interface{}) {
	cb = mm.WithDeadline(p.f.disp, timeout, method, cb)
	p.f.issue(p.service, p.path, method, timeout, func(v interface{}, err data.Error) {
		u, _ := v.(uint32)
		cb(u, err)
	}, args...)
}

func (f *Factory) proxy(service, path string) proxy {
	return proxy{f: f, service: service, path: path}
}

// Bus returns the fake name owner watcher
func (f *Factory) Bus() mm.Bus {
	return &bus{f: f}
}

type bus struct {
	f *Factory
}

func (b *bus) WatchNameOwner(name string, fn func(string)) func() {
	h := b.f.on("", "NameOwnerChanged:"+name, fn)
	owner := b.f.owners[name]
	b.f.disp.Post(func() {
		for _, live := range b.f.handlers[key("", "NameOwnerChanged:"+name)] {
			if live == h {
				fn(owner)
			}
		}
	})
	return func() { b.f.off([]*handler{h}) }
}

type objectManager struct{ proxy }

// ObjectManager returns a fake object manager
func (f *Factory) ObjectManager(service string) mm.ObjectManagerProxy {
	return &objectManager{f.proxy(service, mm.Path)}
}

func (p *objectManager) GetManagedObjects(timeout time.Duration, cb func(mm.ManagedObjects, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetManagedObjects", cb)
	p.f.issue(p.service, p.path, "ObjectManager.GetManagedObjects", timeout, func(v interface{}, err data.Error) {
		objs, _ := v.(mm.ManagedObjects)
		cb(objs, err)
	})
}

func (p *objectManager) OnInterfacesAdded(fn func(string, mm.InterfaceProps)) {
	p.on("InterfacesAdded", fn)
}

func (p *objectManager) OnInterfacesRemoved(fn func(string, []string)) {
	p.on("InterfacesRemoved", fn)
}

type classicManager struct{ proxy }

// ClassicManager returns a fake classic manager
func (f *Factory) ClassicManager(service string) mm.ClassicManagerProxy {
	return &classicManager{f.proxy(service, mm.ClassicPath)}
}

func (p *classicManager) EnumerateDevices(timeout time.Duration, cb func([]string, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "EnumerateDevices", cb)
	p.f.issue(p.service, p.path, "ClassicManager.EnumerateDevices", timeout, func(v interface{}, err data.Error) {
		paths, _ := v.([]string)
		cb(paths, err)
	})
}

func (p *classicManager) OnDeviceAdded(fn func(string)) {
	p.on("DeviceAdded", fn)
}

func (p *classicManager) OnDeviceRemoved(fn func(string)) {
	p.on("DeviceRemoved", fn)
}

type properties struct{ proxy }

// Properties returns a fake properties proxy
func (f *Factory) Properties(service, path string) mm.PropertiesProxy {
	return &properties{f.proxy(service, path)}
}

func (p *properties) GetAll(iface string, timeout time.Duration, cb func(mm.Props, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetAll", cb)
	p.f.issue(p.service, p.path, "Properties.GetAll", timeout, func(v interface{}, err data.Error) {
		props, _ := v.(mm.Props)
		cb(props, err)
	}, iface)
}

func (p *properties) OnPropertiesChanged(fn func(string, mm.Props, []string)) {
	p.on("PropertiesChanged", fn)
}

func (p *properties) OnMMPropertiesChanged(fn func(string, mm.Props)) {
	p.on("MmPropertiesChanged", fn)
}

type modem struct{ proxy }

// Modem returns a fake ModemManager1 modem
func (f *Factory) Modem(service, path string) mm.ModemProxy {
	return &modem{f.proxy(service, path)}
}

func (p *modem) Enable(enable bool, timeout time.Duration, cb mm.ResultFunc) {
	p.result("Modem.Enable", timeout, cb, enable)
}

func (p *modem) SetPowerState(state uint32, timeout time.Duration, cb mm.ResultFunc) {
	p.result("Modem.SetPowerState", timeout, cb, state)
}

func (p *modem) Reset(timeout time.Duration, cb mm.ResultFunc) {
	p.result("Modem.Reset", timeout, cb)
}

func (p *modem) OnStateChanged(fn func(from, to data.ModemState, reason uint32)) {
	p.on("StateChanged", fn)
}

type modem3gpp struct{ proxy }

// Modem3gpp returns a fake 3GPP proxy
func (f *Factory) Modem3gpp(service, path string) mm.Modem3gppProxy {
	return &modem3gpp{f.proxy(service, path)}
}

func (p *modem3gpp) Register(operatorID string, timeout time.Duration, cb mm.ResultFunc) {
	p.result("Modem3gpp.Register", timeout, cb, operatorID)
}

func (p *modem3gpp) Scan(timeout time.Duration, cb func([]mm.Props, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "Scan", cb)
	p.f.issue(p.service, p.path, "Modem3gpp.Scan", timeout, func(v interface{}, err data.Error) {
		res, _ := v.([]mm.Props)
		cb(res, err)
	})
}

type simple struct {
	proxy
	prefix string
}

// Simple returns a fake ModemManager1 simple proxy
func (f *Factory) Simple(service, path string) mm.SimpleProxy {
	return &simple{f.proxy(service, path), "Simple"}
}

// ClassicSimple returns a fake classic simple proxy
func (f *Factory) ClassicSimple(service, path string) mm.SimpleProxy {
	return &simple{f.proxy(service, path), "ClassicSimple"}
}

func (p *simple) Connect(props mm.Props, timeout time.Duration, cb func(string, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "Connect", cb)
	p.f.issue(p.service, p.path, p.prefix+".Connect", timeout, func(v interface{}, err data.Error) {
		bearer, _ := v.(string)
		cb(bearer, err)
	}, props)
}

func (p *simple) Disconnect(bearer string, timeout time.Duration, cb mm.ResultFunc) {
	p.result(p.prefix+".Disconnect", timeout, cb, bearer)
}

func (p *simple) GetStatus(timeout time.Duration, cb func(mm.Props, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetStatus", cb)
	p.f.issue(p.service, p.path, p.prefix+".GetStatus", timeout, func(v interface{}, err data.Error) {
		props, _ := v.(mm.Props)
		cb(props, err)
	})
}

type location struct{ proxy }

// Location returns a fake location proxy
func (f *Factory) Location(service, path string) mm.LocationProxy {
	return &location{f.proxy(service, path)}
}

func (p *location) Setup(sources uint32, signal bool, timeout time.Duration, cb mm.ResultFunc) {
	p.result("Location.Setup", timeout, cb, sources, signal)
}

func (p *location) GetLocation(timeout time.Duration, cb func(map[uint32]interface{}, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetLocation", cb)
	p.f.issue(p.service, p.path, "Location.GetLocation", timeout, func(v interface{}, err data.Error) {
		loc, _ := v.(map[uint32]interface{})
		cb(loc, err)
	})
}

type classicModem struct{ proxy }

// ClassicModem returns a fake classic modem
func (f *Factory) ClassicModem(service, path string) mm.ClassicModemProxy {
	return &classicModem{f.proxy(service, path)}
}

func (p *classicModem) Enable(enable bool, timeout time.Duration, cb mm.ResultFunc) {
	p.result("ClassicModem.Enable", timeout, cb, enable)
}

func (p *classicModem) Disconnect(timeout time.Duration, cb mm.ResultFunc) {
	p.result("ClassicModem.Disconnect", timeout, cb)
}

func (p *classicModem) GetInfo(timeout time.Duration, cb func(mm.ModemInfo, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetInfo", cb)
	p.f.issue(p.service, p.path, "ClassicModem.GetInfo", timeout, func(v interface{}, err data.Error) {
		info, _ := v.(mm.ModemInfo)
		cb(info, err)
	})
}

func (p *classicModem) SetCarrier(carrier string, timeout time.Duration, cb mm.ResultFunc) {
	p.result("ClassicModem.SetCarrier", timeout, cb, carrier)
}

func (p *classicModem) OnStateChanged(fn func(from, to, reason uint32)) {
	p.on("ClassicStateChanged", fn)
}

type gsmCard struct{ proxy }

// GsmCard returns a fake GSM card proxy
func (f *Factory) GsmCard(service, path string) mm.GsmCardProxy {
	return &gsmCard{f.proxy(service, path)}
}

func (p *gsmCard) GetIMEI(timeout time.Duration, cb func(string, data.Error)) {
	p.str("GsmCard.GetIMEI", timeout, cb)
}

func (p *gsmCard) GetIMSI(timeout time.Duration, cb func(string, data.Error)) {
	p.str("GsmCard.GetIMSI", timeout, cb)
}

func (p *gsmCard) GetSPN(timeout time.Duration, cb func(string, data.Error)) {
	p.str("GsmCard.GetSPN", timeout, cb)
}

func (p *gsmCard) GetMSISDN(timeout time.Duration, cb func(string, data.Error)) {
	p.str("GsmCard.GetMSISDN", timeout, cb)
}

type gsmNetwork struct{ proxy }

// GsmNetwork returns a fake GSM network proxy
func (f *Factory) GsmNetwork(service, path string) mm.GsmNetworkProxy {
	return &gsmNetwork{f.proxy(service, path)}
}

func (p *gsmNetwork) Register(networkID string, timeout time.Duration, cb mm.ResultFunc) {
	p.result("GsmNetwork.Register", timeout, cb, networkID)
}

func (p *gsmNetwork) Scan(timeout time.Duration, cb func([]map[string]string, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "Scan", cb)
	p.f.issue(p.service, p.path, "GsmNetwork.Scan", timeout, func(v interface{}, err data.Error) {
		res, _ := v.([]map[string]string)
		cb(res, err)
	})
}

func (p *gsmNetwork) GetRegistrationInfo(timeout time.Duration, cb func(mm.RegistrationInfo, data.Error)) {
	cb = mm.WithDeadline(p.f.disp, timeout, "GetRegistrationInfo", cb)
	p.f.issue(p.service, p.path, "GsmNetwork.GetRegistrationInfo", timeout, func(v interface{}, err data.Error) {
		info, _ := v.(mm.RegistrationInfo)
		cb(info, err)
	})
}

func (p *gsmNetwork) GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error)) {
	p.u32("GsmNetwork.GetSignalQuality", timeout, cb)
}

func (p *gsmNetwork) OnRegistrationInfo(fn func(mm.RegistrationInfo)) {
	p.on("RegistrationInfo", fn)
}

func (p *gsmNetwork) OnSignalQuality(fn func(uint32)) {
	p.on("SignalQuality", fn)
}

type cdma struct{ proxy }

// Cdma returns a fake CDMA proxy
func (f *Factory) Cdma(service, path string) mm.CdmaProxy {
	return &cdma{f.proxy(service, path)}
}

func (p *cdma) GetRegistrationState(timeout time.Duration, cb func(uint32, uint32, data.Error)) {
	g := mm.WithDeadline(p.f.disp, timeout, "GetRegistrationState", func(v [2]uint32, err data.Error) {
		cb(v[0], v[1], err)
	})
	p.f.issue(p.service, p.path, "Cdma.GetRegistrationState", timeout, func(v interface{}, err data.Error) {
		states, _ := v.([2]uint32)
		g(states, err)
	})
}

func (p *cdma) GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error)) {
	p.u32("Cdma.GetSignalQuality", timeout, cb)
}

func (p *cdma) Activate(carrier string, timeout time.Duration, cb func(uint32, data.Error)) {
	p.u32("Cdma.Activate", timeout, cb, carrier)
}

func (p *cdma) OnRegistrationStateChanged(fn func(cdma1x, evdo uint32)) {
	p.on("RegistrationStateChanged", fn)
}

func (p *cdma) OnSignalQuality(fn func(uint32)) {
	p.on("SignalQuality", fn)
}
