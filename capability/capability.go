// Package capability implements technology specific modem control. A
// Capability wraps the ModemManager proxies of one modem behind a uniform
// asynchronous API used by the cellular device.
package capability

import (
	"fmt"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// Variant is the closed set of capability implementations
type Variant int

// capability variants
const (
	ClassicGSM Variant = iota
	ClassicCDMA
	ThreeGPP
)

func (v Variant) String() string {
	switch v {
	case ClassicGSM:
		return "ClassicGSM"
	case ClassicCDMA:
		return "ClassicCDMA"
	case ThreeGPP:
		return "ThreeGPP"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Classic returns true for variants driven over the classic protocol
func (v Variant) Classic() bool {
	return v == ClassicGSM || v == ClassicCDMA
}

// Delegate receives modem updates. All calls happen on the loop.
type Delegate interface {
	// ModemStateChanged reports a new hardware state
	ModemStateChanged(state data.ModemState)
	// RegistrationChanged is called when registration, roaming or access
	// technology may have changed. The delegate queries IsRegistered and
	// friends.
	RegistrationChanged()
	// SignalQualityChanged reports signal strength in percent
	SignalQualityChanged(strength int)
	// InfoChanged is called when identifiers or operator info changed
	InfoChanged()
}

// Info is what the capability learned about the modem and subscriber
type Info struct {
	Device            string
	IMEI              string
	IMSI              string
	MEID              string
	ESN               string
	ICCID             string
	MDN               string
	EquipmentID       string
	Manufacturer      string
	Model             string
	Revision          string
	Carrier           string
	SPN               string
	ServingOperator   data.Operator
	SimLocked         bool
	ActivationState   string
	SubscriptionState string
}

// IPMethod is how the data interface of a bearer gets its address
type IPMethod int

// bearer IP methods
const (
	IPMethodUnknown IPMethod = iota
	IPMethodDHCP
	IPMethodStatic
	IPMethodPPP
)

func (m IPMethod) String() string {
	switch m {
	case IPMethodDHCP:
		return "dhcp"
	case IPMethodStatic:
		return "static"
	case IPMethodPPP:
		return "ppp"
	default:
		return "unknown"
	}
}

// StaticConfig is an IPv4 configuration handed out by the bearer
type StaticConfig struct {
	Address string
	Prefix  uint32
	Gateway string
	DNS     []string
	MTU     uint32
}

// Bearer describes an active data connection
type Bearer struct {
	Path      string
	Interface string
	Method    IPMethod
	Static    *StaticConfig
}

// ConnectParams are the inputs of a connect attempt
type ConnectParams struct {
	LastGood     *data.APN
	User         *data.APN
	Provider     []data.APN
	AllowRoaming bool
}

// ConnectResult is delivered on a successful connect
type ConnectResult struct {
	// APN that connected, nil if none was used
	APN    *data.APN
	Bearer Bearer
}

// Capability is the uniform modem control API. All methods must be called
// on the loop and every completion fires at most once, on the loop.
type Capability interface {
	Variant() Variant
	Info() Info

	StartModem(cb mm.ResultFunc)
	StopModem(cb mm.ResultFunc)
	EnableModem(enable bool, cb mm.ResultFunc)
	Reset(cb mm.ResultFunc)

	Register(cb mm.ResultFunc)
	RegisterOnNetwork(networkID string, cb mm.ResultFunc)
	GetRegistrationInfo(cb mm.ResultFunc)
	IsRegistered() bool
	// SetUnregistered forces the local registration state after the modem
	// reported leaving the registered state
	SetUnregistered(searching bool)
	RoamingState() string
	NetworkTechnology() string
	// NetworkID is the MCC/MNC (or carrier) used for provider lookups
	NetworkID() string

	Connect(params ConnectParams, cb func(ConnectResult, data.Error))
	Disconnect(cb mm.ResultFunc)
	DisconnectCleanup()
	ActiveBearer() *Bearer

	Scan(cb func([]data.Network, data.Error))
	GetModemInfo(cb mm.ResultFunc)
	GetSignalQuality()
	SetCarrier(carrier string, cb mm.ResultFunc)
	Activate(carrier string, cb mm.ResultFunc)
	GetLocation(cb func(string, data.Error))

	OnPropertiesChanged(iface string, changed mm.Props, invalidated []string)

	// Close releases the proxies and detaches every pending completion
	Close()
}

// Config holds what every variant needs
type Config struct {
	Factory    mm.Factory
	Dispatcher loop.Dispatcher
	// Service is the bus name of the modem manager that owns Path
	Service  string
	Path     string
	Delegate Delegate
	Debug    bool
}

// New returns the capability variant v for the modem at c.Path
func New(v Variant, c Config) Capability {
	switch v {
	case ThreeGPP:
		return newUniversal(c)
	default:
		return newClassic(v, c)
	}
}

// SelectVariant picks the variant for a ModemManager1 modem from the
// interfaces it exposes. Only 3GPP modems are supported; a modem without
// the Modem3gpp interface selects nothing.
func SelectVariant(ifaces mm.InterfaceProps) (Variant, bool) {
	if !ifaces.Has(mm.InterfaceModem) || !ifaces.Has(mm.Interface3gpp) {
		return 0, false
	}
	return ThreeGPP, true
}

// SelectClassicVariant picks the variant for a classic modem from its Type
// property and advertised registration interfaces
func SelectClassicVariant(modemType uint32, ifaces []string) (Variant, bool) {
	switch modemType {
	case mm.ClassicTypeGsm:
		return ClassicGSM, true
	case mm.ClassicTypeCdma:
		return ClassicCDMA, true
	}
	for _, i := range ifaces {
		switch i {
		case mm.ClassicInterfaceCdma:
			return ClassicCDMA, true
		case mm.ClassicInterfaceGsmNetwork, mm.ClassicInterfaceGsmCard:
			return ClassicGSM, true
		}
	}
	return 0, false
}

func notSupported(what string) data.Error {
	return data.NewError(data.KindNotSupported, "%v not supported", what)
}
