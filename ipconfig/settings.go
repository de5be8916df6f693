// Package ipconfig applies IP configuration to cellular data interfaces
// through NetworkManager. Every interface gets one connection profile,
// prefixed with ConnPrefix, which is removed again on release.
package ipconfig

import (
	"encoding/binary"
	"net"
	"strings"

	nm "github.com/Wifx/gonetworkmanager/v2"
	"github.com/simpleiot/cellmgr/capability"
)

// ConnPrefix marks connection profiles owned by this daemon
const ConnPrefix = "SimpleIoT:cellular:"

// ConnID returns the connection id used for iface
func ConnID(iface string) string {
	return ConnPrefix + iface
}

// Managed returns true if a connection id belongs to this daemon
func Managed(id string) bool {
	return strings.HasPrefix(id, ConnPrefix)
}

// ipv4Uint32 converts a dotted IPv4 address to NetworkManager's little
// endian uint32 form
func ipv4Uint32(addr string) (uint32, bool) {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(ip), true
}

// ConnSettings returns the connection profile for iface. A nil static
// config selects DHCP.
func ConnSettings(iface string, static *capability.StaticConfig) nm.ConnectionSettings {
	ipv4 := map[string]interface{}{
		"method": "auto",
	}

	if static != nil {
		ipv4 = map[string]interface{}{
			"method": "manual",
		}
		prefix := static.Prefix
		if prefix == 0 || prefix > 32 {
			prefix = 32
		}
		if static.Address != "" {
			ipv4["address-data"] = []map[string]interface{}{{
				"address": static.Address,
				"prefix":  prefix,
			}}
		}
		if static.Gateway != "" {
			ipv4["gateway"] = static.Gateway
		}
		dns := make([]uint32, 0, len(static.DNS))
		for _, d := range static.DNS {
			if v, ok := ipv4Uint32(d); ok {
				dns = append(dns, v)
			}
		}
		ipv4["dns"] = dns
		ipv4["ignore-auto-dns"] = true
	}

	return nm.ConnectionSettings{
		"connection": {
			"id":             ConnID(iface),
			"type":           "generic",
			"interface-name": iface,
			"autoconnect":    false,
		},
		"ipv4": ipv4,
		"ipv6": {
			"method": "ignore",
		},
	}
}
