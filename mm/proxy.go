package mm

import (
	"time"

	"github.com/simpleiot/cellmgr/data"
)

// ResultFunc receives the outcome of an operation without a return value
type ResultFunc func(data.Error)

// Bus watches ownership of well known service names
type Bus interface {
	// WatchNameOwner calls fn with the current owner of name and again
	// every time ownership changes. An empty owner means the name vanished.
	WatchNameOwner(name string, fn func(owner string)) (cancel func())
}

// ObjectManagerProxy is the ModemManager1 object manager
type ObjectManagerProxy interface {
	GetManagedObjects(timeout time.Duration, cb func(ManagedObjects, data.Error))
	OnInterfacesAdded(fn func(path string, ifaces InterfaceProps))
	OnInterfacesRemoved(fn func(path string, ifaces []string))
	Close()
}

// ClassicManagerProxy is the classic ModemManager device list
type ClassicManagerProxy interface {
	EnumerateDevices(timeout time.Duration, cb func([]string, data.Error))
	OnDeviceAdded(fn func(path string))
	OnDeviceRemoved(fn func(path string))
	Close()
}

// PropertiesProxy is org.freedesktop.DBus.Properties on one object
type PropertiesProxy interface {
	GetAll(iface string, timeout time.Duration, cb func(Props, data.Error))
	OnPropertiesChanged(fn func(iface string, changed Props, invalidated []string))
	// OnMMPropertiesChanged subscribes to the classic ModemManager
	// MmPropertiesChanged signal, which carries the same payload
	OnMMPropertiesChanged(fn func(iface string, changed Props))
	Close()
}

// ModemProxy is org.freedesktop.ModemManager1.Modem
type ModemProxy interface {
	Enable(enable bool, timeout time.Duration, cb ResultFunc)
	SetPowerState(state uint32, timeout time.Duration, cb ResultFunc)
	Reset(timeout time.Duration, cb ResultFunc)
	OnStateChanged(fn func(from, to data.ModemState, reason uint32))
	Close()
}

// Modem3gppProxy is org.freedesktop.ModemManager1.Modem.Modem3gpp
type Modem3gppProxy interface {
	Register(operatorID string, timeout time.Duration, cb ResultFunc)
	Scan(timeout time.Duration, cb func([]Props, data.Error))
	Close()
}

// SimpleProxy is the Simple interface of either protocol. Classic modems
// return an empty bearer path from Connect.
type SimpleProxy interface {
	Connect(props Props, timeout time.Duration, cb func(bearer string, err data.Error))
	// Disconnect tears down the given bearer, "/" for all bearers. Only
	// available on ModemManager1.
	Disconnect(bearer string, timeout time.Duration, cb ResultFunc)
	// GetStatus returns the classic status dictionary (carrier, meid,
	// esn, mdn, ...). Only available on classic modems.
	GetStatus(timeout time.Duration, cb func(Props, data.Error))
	Close()
}

// LocationProxy is org.freedesktop.ModemManager1.Modem.Location
type LocationProxy interface {
	Setup(sources uint32, signal bool, timeout time.Duration, cb ResultFunc)
	GetLocation(timeout time.Duration, cb func(map[uint32]interface{}, data.Error))
	Close()
}

// ModemInfo is the classic Modem.GetInfo reply
type ModemInfo struct {
	Manufacturer string
	Model        string
	Revision     string
}

// ClassicModemProxy is org.freedesktop.ModemManager.Modem
type ClassicModemProxy interface {
	Enable(enable bool, timeout time.Duration, cb ResultFunc)
	Disconnect(timeout time.Duration, cb ResultFunc)
	GetInfo(timeout time.Duration, cb func(ModemInfo, data.Error))
	// SetCarrier selects a firmware carrier image (Gobi modems)
	SetCarrier(carrier string, timeout time.Duration, cb ResultFunc)
	OnStateChanged(fn func(from, to, reason uint32))
	Close()
}

// GsmCardProxy is org.freedesktop.ModemManager.Modem.Gsm.Card
type GsmCardProxy interface {
	GetIMEI(timeout time.Duration, cb func(string, data.Error))
	GetIMSI(timeout time.Duration, cb func(string, data.Error))
	GetSPN(timeout time.Duration, cb func(string, data.Error))
	GetMSISDN(timeout time.Duration, cb func(string, data.Error))
	Close()
}

// RegistrationInfo is the classic GSM (status, operator code, name) triple
type RegistrationInfo struct {
	Status       uint32
	OperatorCode string
	OperatorName string
}

// GsmNetworkProxy is org.freedesktop.ModemManager.Modem.Gsm.Network
type GsmNetworkProxy interface {
	Register(networkID string, timeout time.Duration, cb ResultFunc)
	Scan(timeout time.Duration, cb func([]map[string]string, data.Error))
	GetRegistrationInfo(timeout time.Duration, cb func(RegistrationInfo, data.Error))
	GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error))
	OnRegistrationInfo(fn func(RegistrationInfo))
	OnSignalQuality(fn func(uint32))
	Close()
}

// CdmaProxy is org.freedesktop.ModemManager.Modem.Cdma
type CdmaProxy interface {
	GetRegistrationState(timeout time.Duration, cb func(cdma1x, evdo uint32, err data.Error))
	GetSignalQuality(timeout time.Duration, cb func(uint32, data.Error))
	Activate(carrier string, timeout time.Duration, cb func(status uint32, err data.Error))
	OnRegistrationStateChanged(fn func(cdma1x, evdo uint32))
	OnSignalQuality(fn func(uint32))
	Close()
}

// Factory creates proxies for remote objects owned by service. Proxies are
// cheap; each subscribes to its own signals and must be closed.
type Factory interface {
	Bus() Bus
	ObjectManager(service string) ObjectManagerProxy
	ClassicManager(service string) ClassicManagerProxy
	Properties(service, path string) PropertiesProxy
	Modem(service, path string) ModemProxy
	Modem3gpp(service, path string) Modem3gppProxy
	Simple(service, path string) SimpleProxy
	ClassicSimple(service, path string) SimpleProxy
	Location(service, path string) LocationProxy
	ClassicModem(service, path string) ClassicModemProxy
	GsmCard(service, path string) GsmCardProxy
	GsmNetwork(service, path string) GsmNetworkProxy
	Cdma(service, path string) CdmaProxy
}
