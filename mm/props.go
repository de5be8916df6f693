package mm

import "github.com/simpleiot/cellmgr/data"

// Props holds the properties of one interface. Values are plain Go values:
// object paths are strings, variants are unwrapped and structs are
// []interface{}.
type Props map[string]interface{}

// PortTypeNet is MM_MODEM_PORT_TYPE_NET
const PortTypeNet uint32 = 2

// NetPort returns the first network port listed in the (su) Ports property
func (p Props) NetPort() (string, bool) {
	ports, ok := p[PropPorts].([]interface{})
	if !ok {
		return "", false
	}
	for _, port := range ports {
		pair, ok := port.([]interface{})
		if !ok || len(pair) < 2 {
			continue
		}
		name, _ := pair[0].(string)
		typ, _ := pair[1].(uint32)
		if typ == PortTypeNet && name != "" {
			return name, true
		}
	}
	return "", false
}

// InterfaceProps maps interface name to its properties
type InterfaceProps map[string]Props

// ManagedObjects is the result of ObjectManager.GetManagedObjects
type ManagedObjects map[string]InterfaceProps

// String returns a string property
func (p Props) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Uint32 returns an unsigned property
func (p Props) Uint32(key string) (uint32, bool) {
	switch v := p[key].(type) {
	case uint32:
		return v, true
	case int32:
		return uint32(v), true
	case uint:
		return uint32(v), true
	case int:
		return uint32(v), true
	}
	return 0, false
}

// Int32 returns a signed property
func (p Props) Int32(key string) (int32, bool) {
	switch v := p[key].(type) {
	case int32:
		return v, true
	case uint32:
		return int32(v), true
	case int:
		return int32(v), true
	}
	return 0, false
}

// Bool returns a boolean property
func (p Props) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// Strings returns a string list property
func (p Props) Strings(key string) ([]string, bool) {
	v, ok := p[key].([]string)
	return v, ok
}

// Map returns a nested dictionary property
func (p Props) Map(key string) (Props, bool) {
	switch v := p[key].(type) {
	case Props:
		return v, true
	case map[string]interface{}:
		return Props(v), true
	}
	return nil, false
}

// SignalQuality decodes the ModemManager1 (ub) signal quality struct
func (p Props) SignalQuality() (uint32, bool) {
	v, ok := p[PropSignalQuality].([]interface{})
	if !ok || len(v) < 1 {
		return 0, false
	}
	q, ok := v[0].(uint32)
	return q, ok
}

// Has returns true if the interface is present
func (ip InterfaceProps) Has(iface string) bool {
	_, ok := ip[iface]
	return ok
}

// access technology bits, MMModemAccessTechnology
const (
	AccessTechGsm        uint32 = 1 << 1
	AccessTechGsmCompact uint32 = 1 << 2
	AccessTechGprs       uint32 = 1 << 3
	AccessTechEdge       uint32 = 1 << 4
	AccessTechUmts       uint32 = 1 << 5
	AccessTechHsdpa      uint32 = 1 << 6
	AccessTechHsupa      uint32 = 1 << 7
	AccessTechHspa       uint32 = 1 << 8
	AccessTechHspaPlus   uint32 = 1 << 9
	AccessTech1xrtt      uint32 = 1 << 10
	AccessTechEvdo0      uint32 = 1 << 11
	AccessTechEvdoA      uint32 = 1 << 12
	AccessTechEvdoB      uint32 = 1 << 13
	AccessTechLte        uint32 = 1 << 14
)

// AccessTechnologyString returns the highest radio technology in the mask
func AccessTechnologyString(mask uint32) string {
	switch {
	case mask&AccessTechLte != 0:
		return data.TechnologyLte
	case mask&(AccessTechEvdo0|AccessTechEvdoA|AccessTechEvdoB) != 0:
		return data.TechnologyEvdo
	case mask&AccessTech1xrtt != 0:
		return data.Technology1Xrtt
	case mask&AccessTechHspaPlus != 0:
		return data.TechnologyHspaPlus
	case mask&(AccessTechHspa|AccessTechHsupa|AccessTechHsdpa) != 0:
		return data.TechnologyHspa
	case mask&AccessTechUmts != 0:
		return data.TechnologyUmts
	case mask&AccessTechEdge != 0:
		return data.TechnologyEdge
	case mask&AccessTechGprs != 0:
		return data.TechnologyGprs
	case mask&(AccessTechGsm|AccessTechGsmCompact) != 0:
		return data.TechnologyGsm
	}
	return ""
}

// classic GSM access technology values
const (
	GsmAccessTechGsm        uint32 = 1
	GsmAccessTechGsmCompact uint32 = 2
	GsmAccessTechGprs       uint32 = 3
	GsmAccessTechEdge       uint32 = 4
	GsmAccessTechUmts       uint32 = 5
	GsmAccessTechHsdpa      uint32 = 6
	GsmAccessTechHsupa      uint32 = 7
	GsmAccessTechHspa       uint32 = 8
	GsmAccessTechHspaPlus   uint32 = 9
)

// GsmAccessTechnologyString maps a classic GSM access technology
func GsmAccessTechnologyString(tech uint32) string {
	switch tech {
	case GsmAccessTechGsm, GsmAccessTechGsmCompact:
		return data.TechnologyGsm
	case GsmAccessTechGprs:
		return data.TechnologyGprs
	case GsmAccessTechEdge:
		return data.TechnologyEdge
	case GsmAccessTechUmts:
		return data.TechnologyUmts
	case GsmAccessTechHsdpa, GsmAccessTechHsupa, GsmAccessTechHspa:
		return data.TechnologyHspa
	case GsmAccessTechHspaPlus:
		return data.TechnologyHspaPlus
	}
	return ""
}

// NetworkStatusString maps a 3GPP TS 27.007 network availability value
func NetworkStatusString(status uint32) string {
	switch status {
	case 1:
		return "available"
	case 2:
		return "current"
	case 3:
		return "forbidden"
	}
	return "unknown"
}
