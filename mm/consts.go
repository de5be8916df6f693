package mm

import "time"

// ModemManager1 names
const (
	Service           = "org.freedesktop.ModemManager1"
	Path              = "/org/freedesktop/ModemManager1"
	InterfaceModem    = "org.freedesktop.ModemManager1.Modem"
	Interface3gpp     = "org.freedesktop.ModemManager1.Modem.Modem3gpp"
	InterfaceCdma     = "org.freedesktop.ModemManager1.Modem.ModemCdma"
	InterfaceSimple   = "org.freedesktop.ModemManager1.Modem.Simple"
	InterfaceLocation = "org.freedesktop.ModemManager1.Modem.Location"
	InterfaceBearer   = "org.freedesktop.ModemManager1.Bearer"
	InterfaceSim      = "org.freedesktop.ModemManager1.Sim"
	InterfaceManager  = "org.freedesktop.ModemManager1"
)

// PropVersion is the ModemManager1 daemon version property
const PropVersion = "Version"

// classic ModemManager names
const (
	ClassicService             = "org.freedesktop.ModemManager"
	ClassicPath                = "/org/freedesktop/ModemManager"
	ClassicInterface           = "org.freedesktop.ModemManager"
	ClassicInterfaceModem      = "org.freedesktop.ModemManager.Modem"
	ClassicInterfaceSimple     = "org.freedesktop.ModemManager.Modem.Simple"
	ClassicInterfaceGsmCard    = "org.freedesktop.ModemManager.Modem.Gsm.Card"
	ClassicInterfaceGsmNetwork = "org.freedesktop.ModemManager.Modem.Gsm.Network"
	ClassicInterfaceCdma       = "org.freedesktop.ModemManager.Modem.Cdma"
	ClassicInterfaceGobi       = "org.chromium.ModemManager.Modem.Gobi"
)

// D-Bus names
const (
	DBusService             = "org.freedesktop.DBus"
	DBusInterfaceProperties = "org.freedesktop.DBus.Properties"
	DBusInterfaceObjectMgr  = "org.freedesktop.DBus.ObjectManager"
	RootPath                = "/"
)

// classic modem type property values
const (
	ClassicTypeGsm  uint32 = 1
	ClassicTypeCdma uint32 = 2
)

// ModemManager1 modem properties
const (
	PropDevice              = "Device"
	PropPrimaryPort         = "PrimaryPort"
	PropPorts               = "Ports"
	PropState               = "State"
	PropPowerState          = "PowerState"
	PropAccessTechnologies  = "AccessTechnologies"
	PropSignalQuality       = "SignalQuality"
	PropManufacturer        = "Manufacturer"
	PropModel               = "Model"
	PropRevision            = "Revision"
	PropPlugin              = "Plugin"
	PropEquipmentIdentifier = "EquipmentIdentifier"
	PropOwnNumbers          = "OwnNumbers"
	PropUnlockRequired      = "UnlockRequired"
	PropBearers             = "Bearers"
	PropSim                 = "Sim"
	PropCurrentCapabilities = "CurrentCapabilities"

	Prop3gppImei              = "Imei"
	Prop3gppRegistrationState = "RegistrationState"
	Prop3gppOperatorCode      = "OperatorCode"
	Prop3gppOperatorName      = "OperatorName"
	Prop3gppFacilityLocks     = "EnabledFacilityLocks"
	Prop3gppSubscriptionState = "SubscriptionState"

	PropSimIdentifier   = "SimIdentifier"
	PropSimImsi         = "Imsi"
	PropSimOperatorName = "OperatorName"

	PropBearerConnected = "Connected"
	PropBearerInterface = "Interface"
	PropBearerIP4Config = "Ip4Config"
)

// classic modem properties
const (
	ClassicPropDevice         = "Device"
	ClassicPropMasterDevice   = "MasterDevice"
	ClassicPropType           = "Type"
	ClassicPropEnabled        = "Enabled"
	ClassicPropState          = "State"
	ClassicPropIPMethod       = "IpMethod"
	ClassicPropUnlockRequired = "UnlockRequired"
	ClassicPropUnlockRetries  = "UnlockRetries"
	ClassicPropAccessTech     = "AccessTechnology"
	ClassicPropFacilityLocks  = "EnabledFacilityLocks"
	ClassicPropMeid           = "Meid"
	ClassicPropEquipmentID    = "EquipmentIdentifier"
)

// ModemManager1 3GPP registration states
const (
	Reg3gppIdle      uint32 = 0
	Reg3gppHome      uint32 = 1
	Reg3gppSearching uint32 = 2
	Reg3gppDenied    uint32 = 3
	Reg3gppUnknown   uint32 = 4
	Reg3gppRoaming   uint32 = 5
)

// classic GSM registration status values
const (
	RegGsmIdle      uint32 = 0
	RegGsmHome      uint32 = 1
	RegGsmSearching uint32 = 2
	RegGsmDenied    uint32 = 3
	RegGsmUnknown   uint32 = 4
	RegGsmRoaming   uint32 = 5
)

// classic CDMA registration states
const (
	RegCdmaUnknown    uint32 = 0
	RegCdmaRegistered uint32 = 1
	RegCdmaHome       uint32 = 2
	RegCdmaRoaming    uint32 = 3
)

// power states
const (
	PowerStateUnknown uint32 = 0
	PowerStateOff     uint32 = 1
	PowerStateLow     uint32 = 2
	PowerStateOn      uint32 = 3
)

// modem lock values, MMModemLock
const (
	LockUnknown uint32 = 0
	LockNone    uint32 = 1
	LockSimPin  uint32 = 2
	LockSimPuk  uint32 = 4
)

// 3GPP facility lock bit for the SIM
const Facility3gppSim uint32 = 1 << 1

// classic GSM facility lock bit for the SIM
const FacilityGsmSim uint32 = 1 << 0

// location sources
const (
	LocationSource3gppLacCi uint32 = 1 << 0
	LocationSourceGpsRaw    uint32 = 1 << 1
	LocationSourceGpsNmea   uint32 = 1 << 2
)

// bearer IP methods, MMBearerIpMethod
const (
	BearerIPUnknown uint32 = 0
	BearerIPPPP     uint32 = 1
	BearerIPStatic  uint32 = 2
	BearerIPDHCP    uint32 = 3
)

// classic Modem.IpMethod values
const (
	ClassicIPMethodPPP    uint32 = 0
	ClassicIPMethodStatic uint32 = 1
	ClassicIPMethodDHCP   uint32 = 2
)

// operation timeouts
const (
	TimeoutDefault       = 5 * time.Second
	TimeoutEnable        = 45 * time.Second
	TimeoutConnect       = 90 * time.Second
	TimeoutDisconnect    = 90 * time.Second
	TimeoutRegister      = 90 * time.Second
	TimeoutReset         = 90 * time.Second
	TimeoutScan          = 120 * time.Second
	TimeoutSetPowerState = 20 * time.Second
	TimeoutSetupLocation = 45 * time.Second
	TimeoutGetLocation   = 45 * time.Second
	TimeoutActivate      = 300 * time.Second
	TimeoutEnterPin      = 20 * time.Second
	TimeoutSetCarrier    = 120 * time.Second
)
