//go:build linux
// +build linux

package ipconfig

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	nm "github.com/Wifx/gonetworkmanager/v2"
	"github.com/simpleiot/cellmgr/capability"
)

// ActivationTimeout bounds how long a connection may take to activate
var ActivationTimeout = 45 * time.Second

const activationPoll = 500 * time.Millisecond

// NetworkManager configures interfaces by adding and activating
// NetworkManager connection profiles. Calls block on D-Bus so each one
// runs on its own goroutine; operations on one interface are serialized.
type NetworkManager struct {
	log      *log.Logger
	settings nm.Settings
	nm       nm.NetworkManager

	lock   sync.Mutex
	ifaces map[string]*sync.Mutex
}

// NewNetworkManager connects to NetworkManager and removes connections
// left over from a previous run
func NewNetworkManager() (*NetworkManager, error) {
	settings, err := nm.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("error getting settings: %w", err)
	}
	obj, err := nm.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("error getting NetworkManager: %w", err)
	}

	ret := &NetworkManager{
		log:      log.New(os.Stderr, "ipconfig: ", log.LstdFlags|log.Lmsgprefix),
		settings: settings,
		nm:       obj,
		ifaces:   make(map[string]*sync.Mutex),
	}
	ret.removeStale()
	return ret, nil
}

func (n *NetworkManager) ifaceLock(iface string) *sync.Mutex {
	n.lock.Lock()
	defer n.lock.Unlock()
	l, ok := n.ifaces[iface]
	if !ok {
		l = new(sync.Mutex)
		n.ifaces[iface] = l
	}
	return l
}

func (n *NetworkManager) removeStale() {
	conns, err := n.settings.ListConnections()
	if err != nil {
		n.log.Println("error listing connections: ", err)
		return
	}
	for _, c := range conns {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		id, _ := s["connection"]["id"].(string)
		if !Managed(id) {
			continue
		}
		n.log.Println("removing stale connection ", id)
		if err := c.Delete(); err != nil {
			n.log.Printf("error removing %v: %v", id, err)
		}
	}
}

// DHCP runs DHCP on iface
func (n *NetworkManager) DHCP(iface string, done func(error)) {
	go func() { done(n.apply(iface, nil)) }()
}

// Static applies a fixed configuration to iface
func (n *NetworkManager) Static(iface string, cfg capability.StaticConfig, done func(error)) {
	go func() { done(n.apply(iface, &cfg)) }()
}

// Release removes the configuration of iface
func (n *NetworkManager) Release(iface string) {
	go func() {
		l := n.ifaceLock(iface)
		l.Lock()
		defer l.Unlock()
		if err := n.remove(iface); err != nil {
			n.log.Printf("error releasing %v: %v", iface, err)
		}
	}()
}

// remove deletes the connection profile for iface, which also deactivates
// it
func (n *NetworkManager) remove(iface string) error {
	conns, err := n.settings.ListConnections()
	if err != nil {
		return err
	}
	id := ConnID(iface)
	for _, c := range conns {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		if s["connection"]["id"] == id {
			return c.Delete()
		}
	}
	return nil
}

func (n *NetworkManager) apply(iface string, static *capability.StaticConfig) error {
	l := n.ifaceLock(iface)
	l.Lock()
	defer l.Unlock()

	if err := n.remove(iface); err != nil {
		return fmt.Errorf("error removing old connection: %w", err)
	}

	dev, err := n.nm.GetDeviceByIpIface(iface)
	if err != nil {
		return fmt.Errorf("error finding device %v: %w", iface, err)
	}
	managed, err := dev.GetPropertyManaged()
	if err == nil && !managed {
		if err := dev.SetPropertyManaged(true); err != nil {
			return fmt.Errorf("error managing %v: %w", iface, err)
		}
	}

	conn, err := n.settings.AddConnection(ConnSettings(iface, static))
	if err != nil {
		return fmt.Errorf("error adding connection: %w", err)
	}

	active, err := n.nm.ActivateConnection(conn, dev, nil)
	if err != nil {
		return fmt.Errorf("error activating connection: %w", err)
	}

	deadline := time.Now().Add(ActivationTimeout)
	for time.Now().Before(deadline) {
		state, err := active.GetPropertyState()
		if err != nil {
			return fmt.Errorf("error reading activation state: %w", err)
		}
		switch state {
		case nm.NmActiveConnectionStateActivated:
			n.log.Printf("%v configured", iface)
			return nil
		case nm.NmActiveConnectionStateDeactivated:
			return errors.New("connection deactivated while activating")
		}
		time.Sleep(activationPoll)
	}
	return fmt.Errorf("timeout activating %v", iface)
}
