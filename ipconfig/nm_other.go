//go:build !linux

package ipconfig

import (
	"errors"

	"github.com/simpleiot/cellmgr/capability"
)

// NetworkManager is not supported on this platform
type NetworkManager struct{}

// NewNetworkManager returns an error on this platform
func NewNetworkManager() (*NetworkManager, error) {
	return nil, errors.New("NetworkManager not supported on this platform")
}

// DHCP fails
func (n *NetworkManager) DHCP(_ string, done func(error)) {
	done(errors.New("not supported"))
}

// Static fails
func (n *NetworkManager) Static(_ string, _ capability.StaticConfig, done func(error)) {
	done(errors.New("not supported"))
}

// Release does nothing
func (n *NetworkManager) Release(string) {}
