package data

import "fmt"

// DeviceState is the state of a cellular device
type DeviceState int

// define valid device states. A connect in flight does not have its own
// state; the device stays Registered until the bearer comes up.
const (
	DeviceDisabled DeviceState = iota
	DeviceEnabling
	DeviceEnabled
	DeviceRegistered
	DeviceConnected
	DeviceLinked
	DeviceDisabling
)

func (s DeviceState) String() string {
	switch s {
	case DeviceDisabled:
		return "Disabled"
	case DeviceEnabling:
		return "Enabling"
	case DeviceEnabled:
		return "Enabled"
	case DeviceRegistered:
		return "Registered"
	case DeviceConnected:
		return "Connected"
	case DeviceLinked:
		return "Linked"
	case DeviceDisabling:
		return "Disabling"
	default:
		return fmt.Sprintf("DeviceState(%d)", int(s))
	}
}

// AtLeastEnabled returns true once the modem is powered and the device has
// not started shutting down
func (s DeviceState) AtLeastEnabled() bool {
	switch s {
	case DeviceEnabled, DeviceRegistered, DeviceConnected, DeviceLinked:
		return true
	}
	return false
}

// IsConnected returns true for Connected and Linked
func (s DeviceState) IsConnected() bool {
	return s == DeviceConnected || s == DeviceLinked
}

// ModemState is the state reported by the remote modem. Values follow the
// ModemManager1 MMModemState enumeration so they can be compared by order.
type ModemState int32

// define valid modem states
const (
	ModemFailed        ModemState = -1
	ModemUnknown       ModemState = 0
	ModemInitializing  ModemState = 1
	ModemLocked        ModemState = 2
	ModemDisabled      ModemState = 3
	ModemDisabling     ModemState = 4
	ModemEnabling      ModemState = 5
	ModemEnabled       ModemState = 6
	ModemSearching     ModemState = 7
	ModemRegistered    ModemState = 8
	ModemDisconnecting ModemState = 9
	ModemConnecting    ModemState = 10
	ModemConnected     ModemState = 11
)

func (s ModemState) String() string {
	switch s {
	case ModemFailed:
		return "Failed"
	case ModemUnknown:
		return "Unknown"
	case ModemInitializing:
		return "Initializing"
	case ModemLocked:
		return "Locked"
	case ModemDisabled:
		return "Disabled"
	case ModemDisabling:
		return "Disabling"
	case ModemEnabling:
		return "Enabling"
	case ModemEnabled:
		return "Enabled"
	case ModemSearching:
		return "Searching"
	case ModemRegistered:
		return "Registered"
	case ModemDisconnecting:
		return "Disconnecting"
	case ModemConnecting:
		return "Connecting"
	case ModemConnected:
		return "Connected"
	default:
		return fmt.Sprintf("ModemState(%d)", int32(s))
	}
}

// IsEnabled returns true if the modem radio is powered
func (s ModemState) IsEnabled() bool {
	return s >= ModemEnabled
}

// ServiceState is the connection state of a cellular service
type ServiceState int

// define valid service states
const (
	ServiceIdle ServiceState = iota
	ServiceAssociating
	ServiceConfiguring
	ServiceConnected
	ServiceFailure
)

func (s ServiceState) String() string {
	switch s {
	case ServiceIdle:
		return "idle"
	case ServiceAssociating:
		return "association"
	case ServiceConfiguring:
		return "configuration"
	case ServiceConnected:
		return "ready"
	case ServiceFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Failure is the technology independent reason a service failed
type Failure string

// define failure reasons
const (
	FailureNone             Failure = ""
	FailureUnknown          Failure = "unknown"
	FailureConnect          Failure = "connect-failed"
	FailureTimeout          Failure = "connect-timeout"
	FailureInvalidAPN       Failure = "invalid-apn"
	FailureNotOnHomeNetwork Failure = "not-on-home-network"
	FailureNotRegistered    Failure = "not-registered"
	FailurePPPAuth          Failure = "ppp-auth-failed"
	FailurePPP              Failure = "ppp-failed"
	FailureDHCP             Failure = "dhcp-failed"
	FailureEnable           Failure = "enable-failed"
	FailureSimLocked        Failure = "sim-locked"
)

// Description returns a human readable reason
func (f Failure) Description() string {
	switch f {
	case FailureNone:
		return ""
	case FailureConnect:
		return "connection failed"
	case FailureTimeout:
		return "connection timed out"
	case FailureInvalidAPN:
		return "invalid APN"
	case FailureNotOnHomeNetwork:
		return "not on home network"
	case FailureNotRegistered:
		return "not registered with a network"
	case FailurePPPAuth:
		return "PPP authentication failed"
	case FailurePPP:
		return "PPP link failed"
	case FailureDHCP:
		return "IP configuration failed"
	case FailureEnable:
		return "modem could not be enabled"
	case FailureSimLocked:
		return "SIM is locked"
	default:
		return "unknown failure"
	}
}

// FailureFromError maps an operation result onto a failure reason
func FailureFromError(err Error) Failure {
	switch err.Kind {
	case KindSuccess, KindOperationInitiated:
		return FailureNone
	case KindInvalidApn:
		return FailureInvalidAPN
	case KindNotOnHomeNetwork:
		return FailureNotOnHomeNetwork
	case KindNotRegistered:
		return FailureNotRegistered
	case KindOperationTimeout:
		return FailureTimeout
	case KindPinRequired:
		return FailureSimLocked
	default:
		return FailureConnect
	}
}

// roaming states
const (
	RoamingStateUnknown = "unknown"
	RoamingStateHome    = "home"
	RoamingStateRoaming = "roaming"
)

// activation states
const (
	ActivationStateActivated    = "activated"
	ActivationStateActivating   = "activating"
	ActivationStateNotActivated = "not-activated"
	ActivationStatePartially    = "partially-activated"
	ActivationStateUnknown      = "unknown"
)

// network technologies
const (
	Technology1Xrtt      = "1xRTT"
	TechnologyEvdo       = "EVDO"
	TechnologyGsm        = "GSM"
	TechnologyGprs       = "GPRS"
	TechnologyEdge       = "EDGE"
	TechnologyUmts       = "UMTS"
	TechnologyHspa       = "HSPA"
	TechnologyHspaPlus   = "HSPA+"
	TechnologyLte        = "LTE"
	TechnologyFamilyGsm  = "GSM"
	TechnologyFamilyCdma = "CDMA"
)

// subscription states
const (
	SubscriptionUnknown       = "unknown"
	SubscriptionUnprovisioned = "unprovisioned"
	SubscriptionProvisioned   = "provisioned"
	SubscriptionOutOfData     = "out-of-data"
)
