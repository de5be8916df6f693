// Package ppp runs pppd for modems whose bearer needs PPP and turns the
// notifications of its plugin into session events.
package ppp

import (
	"github.com/simpleiot/cellmgr/data"
)

// notification reasons sent by the pppd plugin
const (
	ReasonAuthenticating = "authenticating"
	ReasonAuthenticated  = "authenticated"
	ReasonConnect        = "connect"
	ReasonDisconnect     = "disconnect"
)

// keys of the connect notification
const (
	KeyInterface       = "INTERNAL_IFNAME"
	KeyInternalAddress = "INTERNAL_IP4_ADDRESS"
	KeyExternalAddress = "EXTERNAL_IP4_ADDRESS"
	KeyGateway         = "GATEWAY_ADDRESS"
	KeyDNS1            = "DNS1"
	KeyDNS2            = "DNS2"
	KeyMRU             = "MRU"
)

// pppd exit codes that mean authentication failed
const (
	ExitPeerAuthFailed   = 11
	ExitAuthToPeerFailed = 19
)

// Handler receives the events of one session on the loop
type Handler interface {
	// PPPLogin returns the credentials pppd should use
	PPPLogin() (user, password string)
	// PPPConnected is called when the link is up with the pppd interface
	// name and link parameters
	PPPConnected(iface string, params map[string]string)
	// PPPDisconnected is called when pppd reports the link went down. The
	// process exit follows.
	PPPDisconnected()
	// PPPDied is called once when pppd exits. failure is FailureNone if
	// the session was stopped.
	PPPDied(failure data.Failure)
}

// Classify maps a pppd exit to a service failure. A session that was
// stopped is never a failure. Authentication that started and never
// finished is reported as an authentication failure whatever the exit code.
func Classify(exitCode int, authenticating, stopped bool) data.Failure {
	switch {
	case stopped:
		return data.FailureNone
	case authenticating:
		return data.FailurePPPAuth
	case exitCode == ExitPeerAuthFailed || exitCode == ExitAuthToPeerFailed:
		return data.FailurePPPAuth
	}
	return data.FailurePPP
}
