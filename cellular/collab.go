package cellular

import (
	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/ppp"
)

// ProviderDB maps a network identifier (MCC/MNC, or carrier name for
// CDMA) to its provider entry
type ProviderDB interface {
	Lookup(networkID string) (data.Provider, bool)
}

// ProfileStore persists service profiles
type ProfileStore interface {
	Load(id data.Identity) (data.Profile, bool, error)
	Save(p data.Profile) error
}

// LinkMonitor reports kernel interface flags
type LinkMonitor interface {
	// Watch calls fn from any goroutine whenever the up flag of the
	// interface with index changes
	Watch(index int, fn func(up bool)) (cancel func())
	IsUp(index int) bool
	SetUp(name string) error
}

// IPConfigurator applies IP configuration to an interface. done may be
// called from any goroutine.
type IPConfigurator interface {
	DHCP(iface string, done func(error))
	Static(iface string, cfg capability.StaticConfig, done func(error))
	Release(iface string)
}

// PPPStarter runs pppd sessions, usually a *ppp.Bridge
type PPPStarter interface {
	Start(device string, h ppp.Handler) (*ppp.Session, error)
}
