package mm

import (
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/simpleiot/cellmgr/data"
)

// object is the common part of every proxy: a remote object and the signal
// subscriptions made through it
type object struct {
	d       *DBus
	service string
	path    dbus.ObjectPath
	iface   string
	subs    []int
}

func (d *DBus) object(service, path, iface string) object {
	return object{d: d, service: service, path: dbus.ObjectPath(path), iface: iface}
}

func (o *object) method(name string) string {
	return o.iface + "." + name
}

func (o *object) on(iface, member string, fn func(*dbus.Signal)) {
	o.subs = append(o.subs, o.d.subscribe(o.service, o.path, iface, member, "", fn))
}

// Close drops all signal subscriptions of the proxy
func (o *object) Close() {
	o.d.unsubscribe(o.subs...)
	o.subs = nil
}

func bodyUint32(sig *dbus.Signal, i int) uint32 {
	if len(sig.Body) <= i {
		return 0
	}
	v, _ := sig.Body[i].(uint32)
	return v
}

func bodyString(sig *dbus.Signal, i int) string {
	if len(sig.Body) <= i {
		return ""
	}
	switch v := sig.Body[i].(type) {
	case string:
		return v
	case dbus.ObjectPath:
		return string(v)
	}
	return ""
}

// ObjectManager returns the ModemManager1 object manager proxy
func (d *DBus) ObjectManager(service string) ObjectManagerProxy {
	return &objectManager{object: d.object(service, Path, DBusInterfaceObjectMgr)}
}

type objectManager struct {
	object
}

func (p *objectManager) GetManagedObjects(timeout time.Duration, cb func(ManagedObjects, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "GetManagedObjects", cb)
	p.d.call(p.service, p.path, p.method("GetManagedObjects"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply map[dbus.ObjectPath]map[string]map[string]dbus.Variant
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		objs := make(ManagedObjects, len(reply))
		for path, ifaces := range reply {
			objs[string(path)] = toInterfaceProps(ifaces)
		}
		cb(objs, data.Error{})
	})
}

func (p *objectManager) OnInterfacesAdded(fn func(string, InterfaceProps)) {
	p.on(DBusInterfaceObjectMgr, "InterfacesAdded", func(sig *dbus.Signal) {
		if len(sig.Body) < 2 {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			p.d.log.Printf("InterfacesAdded had unexpected body: %+v", sig.Body)
			return
		}
		fn(bodyString(sig, 0), toInterfaceProps(ifaces))
	})
}

func (p *objectManager) OnInterfacesRemoved(fn func(string, []string)) {
	p.on(DBusInterfaceObjectMgr, "InterfacesRemoved", func(sig *dbus.Signal) {
		if len(sig.Body) < 2 {
			return
		}
		ifaces, _ := sig.Body[1].([]string)
		fn(bodyString(sig, 0), ifaces)
	})
}

// ClassicManager returns the classic ModemManager proxy
func (d *DBus) ClassicManager(service string) ClassicManagerProxy {
	return &classicManager{object: d.object(service, ClassicPath, ClassicInterface)}
}

type classicManager struct {
	object
}

func (p *classicManager) EnumerateDevices(timeout time.Duration, cb func([]string, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "EnumerateDevices", cb)
	p.d.call(p.service, p.path, p.method("EnumerateDevices"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var paths []dbus.ObjectPath
		if err := c.Store(&paths); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		cb(plain(paths).([]string), data.Error{})
	})
}

func (p *classicManager) OnDeviceAdded(fn func(string)) {
	p.on(ClassicInterface, "DeviceAdded", func(sig *dbus.Signal) {
		fn(bodyString(sig, 0))
	})
}

func (p *classicManager) OnDeviceRemoved(fn func(string)) {
	p.on(ClassicInterface, "DeviceRemoved", func(sig *dbus.Signal) {
		fn(bodyString(sig, 0))
	})
}

// Properties returns a properties proxy for path
func (d *DBus) Properties(service, path string) PropertiesProxy {
	return &properties{object: d.object(service, path, DBusInterfaceProperties)}
}

type properties struct {
	object
}

func (p *properties) GetAll(iface string, timeout time.Duration, cb func(Props, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "GetAll", cb)
	p.d.call(p.service, p.path, p.method("GetAll"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply map[string]dbus.Variant
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		cb(toProps(reply), data.Error{})
	}, iface)
}

func (p *properties) OnPropertiesChanged(fn func(string, Props, []string)) {
	p.on(DBusInterfaceProperties, "PropertiesChanged", func(sig *dbus.Signal) {
		if len(sig.Body) < 2 {
			return
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			p.d.log.Printf("PropertiesChanged had unexpected body: %+v", sig.Body)
			return
		}
		var invalidated []string
		if len(sig.Body) > 2 {
			invalidated, _ = sig.Body[2].([]string)
		}
		fn(bodyString(sig, 0), toProps(changed), invalidated)
	})
}

func (p *properties) OnMMPropertiesChanged(fn func(string, Props)) {
	p.on(DBusInterfaceProperties, "MmPropertiesChanged", func(sig *dbus.Signal) {
		if len(sig.Body) < 2 {
			return
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		fn(bodyString(sig, 0), toProps(changed))
	})
}

// Modem returns a ModemManager1 modem proxy
func (d *DBus) Modem(service, path string) ModemProxy {
	return &modem{object: d.object(service, path, InterfaceModem)}
}

type modem struct {
	object
}

func (p *modem) Enable(enable bool, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Enable"), timeout, cb, enable)
}

func (p *modem) SetPowerState(state uint32, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("SetPowerState"), timeout, cb, state)
}

func (p *modem) Reset(timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Reset"), timeout, cb)
}

func (p *modem) OnStateChanged(fn func(from, to data.ModemState, reason uint32)) {
	p.on(InterfaceModem, "StateChanged", func(sig *dbus.Signal) {
		if len(sig.Body) < 3 {
			return
		}
		from, _ := sig.Body[0].(int32)
		to, _ := sig.Body[1].(int32)
		fn(data.ModemState(from), data.ModemState(to), bodyUint32(sig, 2))
	})
}

// Modem3gpp returns a 3GPP proxy
func (d *DBus) Modem3gpp(service, path string) Modem3gppProxy {
	return &modem3gpp{object: d.object(service, path, Interface3gpp)}
}

type modem3gpp struct {
	object
}

func (p *modem3gpp) Register(operatorID string, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Register"), timeout, cb, operatorID)
}

func (p *modem3gpp) Scan(timeout time.Duration, cb func([]Props, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "Scan", cb)
	p.d.call(p.service, p.path, p.method("Scan"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply []map[string]dbus.Variant
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		cb(plain(reply).([]Props), data.Error{})
	})
}

// Simple returns a ModemManager1 simple proxy
func (d *DBus) Simple(service, path string) SimpleProxy {
	return &simple{object: d.object(service, path, InterfaceSimple)}
}

// ClassicSimple returns a classic simple proxy
func (d *DBus) ClassicSimple(service, path string) SimpleProxy {
	return &simple{object: d.object(service, path, ClassicInterfaceSimple), classic: true}
}

type simple struct {
	object
	classic bool
}

func (p *simple) Connect(props Props, timeout time.Duration, cb func(string, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "Connect", cb)
	p.d.call(p.service, p.path, p.method("Connect"), timeout, func(c *dbus.Call) {
		if c.Err != nil || p.classic {
			cb("", ClassifyError(c.Err))
			return
		}
		var bearer dbus.ObjectPath
		if err := c.Store(&bearer); err != nil {
			cb("", ClassifyError(err))
			return
		}
		cb(string(bearer), data.Error{})
	}, fromProps(props))
}

func (p *simple) Disconnect(bearer string, timeout time.Duration, cb ResultFunc) {
	if p.classic {
		cb(data.NewError(data.KindNotSupported, "classic simple interface has no Disconnect"))
		return
	}
	p.d.callResult(p.service, p.path, p.method("Disconnect"), timeout, cb, dbus.ObjectPath(bearer))
}

func (p *simple) GetStatus(timeout time.Duration, cb func(Props, data.Error)) {
	if !p.classic {
		cb(nil, data.NewError(data.KindNotSupported, "GetStatus is only available on classic modems"))
		return
	}
	cb = WithDeadline(p.d.disp, timeout, "GetStatus", cb)
	p.d.call(p.service, p.path, p.method("GetStatus"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply map[string]dbus.Variant
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		cb(toProps(reply), data.Error{})
	})
}

// Location returns a location proxy
func (d *DBus) Location(service, path string) LocationProxy {
	return &location{object: d.object(service, path, InterfaceLocation)}
}

type location struct {
	object
}

func (p *location) Setup(sources uint32, signal bool, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Setup"), timeout, cb, sources, signal)
}

func (p *location) GetLocation(timeout time.Duration, cb func(map[uint32]interface{}, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "GetLocation", cb)
	p.d.call(p.service, p.path, p.method("GetLocation"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply map[uint32]dbus.Variant
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		ret := make(map[uint32]interface{}, len(reply))
		for k, v := range reply {
			ret[k] = plain(v)
		}
		cb(ret, data.Error{})
	})
}

// ClassicModem returns a classic modem proxy
func (d *DBus) ClassicModem(service, path string) ClassicModemProxy {
	return &classicModem{object: d.object(service, path, ClassicInterfaceModem)}
}

type classicModem struct {
	object
}

func (p *classicModem) Enable(enable bool, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Enable"), timeout, cb, enable)
}

func (p *classicModem) Disconnect(timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Disconnect"), timeout, cb)
}

func (p *classicModem) GetInfo(timeout time.Duration, cb func(ModemInfo, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "GetInfo", cb)
	p.d.call(p.service, p.path, p.method("GetInfo"), timeout, func(c *dbus.Call) {
		var info ModemInfo
		if c.Err != nil {
			cb(info, ClassifyError(c.Err))
			return
		}
		if err := c.Store(&info); err != nil {
			cb(info, data.NewError(data.KindOperationFailed, "unexpected GetInfo reply: %v", err))
			return
		}
		cb(info, data.Error{})
	})
}

func (p *classicModem) SetCarrier(carrier string, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, ClassicInterfaceGobi+".SetCarrier", timeout, cb, carrier)
}

func (p *classicModem) OnStateChanged(fn func(from, to, reason uint32)) {
	p.on(ClassicInterfaceModem, "StateChanged", func(sig *dbus.Signal) {
		fn(bodyUint32(sig, 0), bodyUint32(sig, 1), bodyUint32(sig, 2))
	})
}

// GsmCard returns a classic GSM card proxy
func (d *DBus) GsmCard(service, path string) GsmCardProxy {
	return &gsmCard{object: d.object(service, path, ClassicInterfaceGsmCard)}
}

type gsmCard struct {
	object
}

func (p *gsmCard) GetIMEI(timeout time.Duration, cb func(string, data.Error)) {
	p.d.callString(p.service, p.path, p.method("GetImei"), timeout, cb)
}

func (p *gsmCard) GetIMSI(timeout time.Duration, cb func(string, data.Error)) {
	p.d.callString(p.service, p.path, p.method("GetImsi"), timeout, cb)
}

func (p *gsmCard) GetSPN(timeout time.Duration, cb func(string, data.Error)) {
	p.d.callString(p.service, p.path, p.method("GetSpn"), timeout, cb)
}

func (p *gsmCard) GetMSISDN(timeout time.Duration, cb func(string, data.Error)) {
	p.d.callString(p.service, p.path, p.method("GetMsIsdn"), timeout, cb)
}

// GsmNetwork returns a classic GSM network proxy
func (d *DBus) GsmNetwork(service, path string) GsmNetworkProxy {
	return &gsmNetwork{object: d.object(service, path, ClassicInterfaceGsmNetwork)}
}

type gsmNetwork struct {
	object
}

func (p *gsmNetwork) Register(networkID string, timeout time.Duration, cb ResultFunc) {
	p.d.callResult(p.service, p.path, p.method("Register"), timeout, cb, networkID)
}

func (p *gsmNetwork) Scan(timeout time.Duration, cb func([]map[string]string, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "Scan", cb)
	p.d.call(p.service, p.path, p.method("Scan"), timeout, func(c *dbus.Call) {
		if c.Err != nil {
			cb(nil, ClassifyError(c.Err))
			return
		}
		var reply []map[string]string
		if err := c.Store(&reply); err != nil {
			cb(nil, ClassifyError(err))
			return
		}
		cb(reply, data.Error{})
	})
}

func (p *gsmNetwork) GetRegistrationInfo(timeout time.Duration, cb func(RegistrationInfo, data.Error)) {
	cb = WithDeadline(p.d.disp, timeout, "GetRegistrationInfo", cb)
	p.d.call(p.service, p.path, p.method("GetRegistrationInfo"), timeout, func(c *dbus.Call) {
		var info RegistrationInfo
		if c.Err != nil {
			cb(info, ClassifyError(c.Err))
			return
		}
		if err := c.Store(&info); err != nil {
			cb(info, data.NewError(data.KindOperationFailed, "unexpected GetRegistrationInfo reply: %v", err))
			return
		}
		cb(info, data.Error{})
	})
}

func (p *gsmNetwork) GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error)) {
	p.d.callUint32(p.service, p.path, p.method("GetSignalQuality"), timeout, cb)
}

func (p *gsmNetwork) OnRegistrationInfo(fn func(RegistrationInfo)) {
	p.on(ClassicInterfaceGsmNetwork, "RegistrationInfo", func(sig *dbus.Signal) {
		fn(RegistrationInfo{
			Status:       bodyUint32(sig, 0),
			OperatorCode: bodyString(sig, 1),
			OperatorName: bodyString(sig, 2),
		})
	})
}

func (p *gsmNetwork) OnSignalQuality(fn func(uint32)) {
	p.on(ClassicInterfaceGsmNetwork, "SignalQuality", func(sig *dbus.Signal) {
		fn(bodyUint32(sig, 0))
	})
}

// Cdma returns a classic CDMA proxy
func (d *DBus) Cdma(service, path string) CdmaProxy {
	return &cdma{object: d.object(service, path, ClassicInterfaceCdma)}
}

type cdma struct {
	object
}

func (p *cdma) GetRegistrationState(timeout time.Duration, cb func(uint32, uint32, data.Error)) {
	g := WithDeadline(p.d.disp, timeout, "GetRegistrationState", func(v [2]uint32, err data.Error) {
		cb(v[0], v[1], err)
	})
	p.d.call(p.service, p.path, p.method("GetRegistrationState"), timeout, func(c *dbus.Call) {
		var v [2]uint32
		if c.Err != nil {
			g(v, ClassifyError(c.Err))
			return
		}
		if err := c.Store(&v[0], &v[1]); err != nil {
			g(v, ClassifyError(err))
			return
		}
		g(v, data.Error{})
	})
}

func (p *cdma) GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error)) {
	p.d.callUint32(p.service, p.path, p.method("GetSignalQuality"), timeout, cb)
}

func (p *cdma) Activate(carrier string, timeout time.Duration, cb func(uint32, data.Error)) {
	p.d.callUint32(p.service, p.path, p.method("Activate"), timeout, cb, carrier)
}

func (p *cdma) OnRegistrationStateChanged(fn func(cdma1x, evdo uint32)) {
	p.on(ClassicInterfaceCdma, "RegistrationStateChanged", func(sig *dbus.Signal) {
		fn(bodyUint32(sig, 0), bodyUint32(sig, 1))
	})
}

func (p *cdma) OnSignalQuality(fn func(uint32)) {
	p.on(ClassicInterfaceCdma, "SignalQuality", func(sig *dbus.Signal) {
		fn(bodyUint32(sig, 0))
	})
}

var _ Factory = (*DBus)(nil)
