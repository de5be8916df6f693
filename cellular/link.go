package cellular

import (
	"strconv"
	"strings"

	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
	"github.com/simpleiot/cellmgr/ppp"
)

// Connect brings up a data connection. The device must be Registered and,
// unless roaming is allowed, on its home network.
func (d *Device) Connect(cb mm.ResultFunc) {
	switch {
	case d.state.IsConnected():
		cb(data.NewError(data.KindAlreadyConnected, "already connected"))
		return
	case d.connecting:
		cb(data.NewError(data.KindInProgress, "connect in progress"))
		return
	case d.state != data.DeviceRegistered || d.service == nil:
		cb(data.NewError(data.KindNotRegistered, "device is %v", d.state))
		return
	}

	if d.roamingDisallowed() {
		d.service.setFailure(data.FailureNotOnHomeNetwork)
		d.changed()
		cb(data.NewError(data.KindNotOnHomeNetwork, "roaming is not allowed"))
		return
	}

	d.connecting = true
	d.service.setState(data.ServiceAssociating)
	d.changed()

	params := capability.ConnectParams{
		LastGood:     d.service.lastGood,
		User:         d.service.userAPN,
		Provider:     d.providerAPNs(),
		AllowRoaming: d.roamingAllowed(),
	}

	d.modem.Connect(params, loop.Bind2(d.scope, func(res capability.ConnectResult, err data.Error) {
		d.connecting = false
		if err.IsFailure() {
			d.onConnectFailed(err)
			cb(err)
			return
		}
		if d.state != data.DeviceRegistered || d.service == nil {
			// the modem brought a bearer up that nothing tracks
			d.log.Println("discarding connect result in state ", d.state)
			d.modem.Disconnect(loop.Bind(d.scope, func(err data.Error) {
				if err.IsFailure() {
					d.log.Println("error dropping discarded connection: ", err)
					d.modem.DisconnectCleanup()
				}
			}))
			cb(data.NewError(data.KindWrongState, "device is %v", d.state))
			return
		}
		if res.APN != nil {
			d.service.lastGood = res.APN
			d.saveService()
		}
		bearer := res.Bearer
		d.onConnected(&bearer)
		cb(data.Error{})
	}))
}

func (d *Device) onConnectFailed(err data.Error) {
	d.log.Println("connect failed: ", err)
	if d.service == nil {
		return
	}
	if err.Kind == data.KindInvalidApn && d.service.lastGood != nil {
		d.service.lastGood = nil
		d.saveService()
	}
	d.service.setFailure(data.FailureFromError(err))
	d.changed()
}

// Disconnect tears down the data connection
func (d *Device) Disconnect(cb mm.ResultFunc) {
	if !d.state.IsConnected() {
		cb(data.NewError(data.KindNotConnected, "not connected"))
		return
	}
	d.disconnect(data.FailureNone, cb)
}

func (d *Device) disconnectWithFailure(f data.Failure) {
	d.disconnect(f, func(data.Error) {})
}

func (d *Device) disconnect(f data.Failure, cb mm.ResultFunc) {
	d.teardownLink()
	if d.service != nil {
		if f != data.FailureNone {
			d.service.setFailure(f)
		} else {
			d.service.setState(data.ServiceIdle)
		}
	}
	d.changed()

	d.modem.Disconnect(loop.Bind(d.scope, func(err data.Error) {
		if err.IsFailure() {
			if d.modemState == data.ModemDisconnecting {
				// the modem state change finishes the disconnect
				d.log.Println("disconnect failed while modem is disconnecting: ", err)
				cb(data.Error{})
				return
			}
			d.log.Println("disconnect failed, cleaning up: ", err)
		}
		d.onDisconnected()
		cb(err)
	}))
}

func (d *Device) onDisconnected() {
	d.teardownLink()
	d.modem.DisconnectCleanup()
	if d.state.IsConnected() {
		d.setState(data.DeviceRegistered)
	}
	if d.service != nil && d.service.state != data.ServiceFailure {
		d.service.setState(data.ServiceIdle)
	}
	d.handleNewRegistrationState()
}

func (d *Device) onConnected(b *capability.Bearer) {
	if d.state.IsConnected() {
		return
	}
	if !d.state.AtLeastEnabled() {
		d.log.Println("ignoring connected in state ", d.state)
		return
	}
	if d.state == data.DeviceEnabled {
		d.setState(data.DeviceRegistered)
	}
	d.setState(data.DeviceConnected)

	if d.service == nil {
		d.log.Println("connected without a service, disconnecting")
		d.disconnectWithFailure(data.FailureNone)
		return
	}
	if d.roamingDisallowed() {
		d.log.Println("connected while roaming is not allowed, disconnecting")
		d.disconnectWithFailure(data.FailureNotOnHomeNetwork)
		return
	}
	d.establishLink(b)
	d.changed()
}

func (d *Device) establishLink(b *capability.Bearer) {
	if b == nil {
		b = &capability.Bearer{Interface: d.cfg.Interface, Method: capability.IPMethodDHCP}
	}
	d.bearer = b
	d.service.setState(data.ServiceConfiguring)

	if b.Method == capability.IPMethodPPP {
		d.startPPP(b.Interface)
		return
	}

	if d.cfg.Links == nil || d.cfg.Links.IsUp(d.cfg.Index) {
		d.linkEvent(true)
		return
	}
	if err := d.cfg.Links.SetUp(d.linkName()); err != nil {
		d.log.Println("error bringing up link: ", err)
		d.disconnectWithFailure(data.FailureConnect)
	}
}

func (d *Device) linkName() string {
	if d.bearer != nil && d.bearer.Interface != "" {
		return d.bearer.Interface
	}
	return d.cfg.Interface
}

// linkEvent handles a change of the IFF_UP flag of the data interface
func (d *Device) linkEvent(up bool) {
	if d.ppp != nil {
		return
	}
	switch {
	case up && d.state == data.DeviceConnected:
		d.setState(data.DeviceLinked)
		if d.bearer != nil && d.bearer.Method == capability.IPMethodStatic && d.bearer.Static != nil {
			d.applyStatic(d.linkName(), *d.bearer.Static)
		} else {
			d.applyDHCP(d.linkName())
		}
	case !up && d.state == data.DeviceLinked:
		d.log.Println("link went down")
		d.setState(data.DeviceConnected)
		d.dropIP()
		if d.service != nil {
			d.service.setState(data.ServiceIdle)
		}
	default:
		return
	}
	d.changed()
}

func (d *Device) ipDone(iface string) func(error) {
	d.ipGen++
	gen := d.ipGen
	d.ipIface = iface
	if d.service != nil {
		d.service.setState(data.ServiceConfiguring)
	}
	return func(err error) {
		d.cfg.Dispatcher.Post(d.scope.Wrap(func() { d.onIPConfig(gen, err) }))
	}
}

func (d *Device) applyDHCP(iface string) {
	done := d.ipDone(iface)
	if d.cfg.IP == nil {
		done(nil)
		return
	}
	d.cfg.IP.DHCP(iface, done)
}

func (d *Device) applyStatic(iface string, cfg capability.StaticConfig) {
	done := d.ipDone(iface)
	if d.cfg.IP == nil {
		done(nil)
		return
	}
	d.cfg.IP.Static(iface, cfg, done)
}

func (d *Device) onIPConfig(gen int, err error) {
	if gen != d.ipGen || d.state != data.DeviceLinked {
		return
	}
	if err != nil {
		d.log.Printf("IP configuration of %v failed: %v", d.ipIface, err)
		d.disconnectWithFailure(data.FailureDHCP)
		return
	}
	if d.service != nil {
		d.service.setState(data.ServiceConnected)
	}
	d.changed()
}

func (d *Device) dropIP() {
	if d.ipIface == "" {
		return
	}
	if d.cfg.IP != nil {
		d.cfg.IP.Release(d.ipIface)
	}
	d.ipIface = ""
	d.ipGen++
}

// teardownLink stops pppd and drops IP configuration
func (d *Device) teardownLink() {
	if d.ppp != nil {
		l := d.ppp
		d.ppp = nil
		l.session.Stop()
	}
	d.dropIP()
	d.bearer = nil
}

func (d *Device) startPPP(port string) {
	if d.cfg.PPP == nil {
		d.log.Println("bearer needs PPP but pppd is not configured")
		d.disconnectWithFailure(data.FailurePPP)
		return
	}
	dev := port
	if dev == "" {
		dev = d.cfg.Interface
	}
	if !strings.HasPrefix(dev, "/") {
		dev = "/dev/" + dev
	}

	l := &pppLink{d: d}
	s, err := d.cfg.PPP.Start(dev, l)
	if err != nil {
		d.log.Println("error starting pppd: ", err)
		d.disconnectWithFailure(data.FailurePPP)
		return
	}
	l.session = s
	d.ppp = l
}

// pppLink is the handler of one pppd session. Events of a session the
// device has let go of are ignored.
type pppLink struct {
	d       *Device
	session *ppp.Session
}

func (l *pppLink) current() bool {
	return !l.d.scope.Closed() && l.d.ppp == l
}

func (l *pppLink) PPPLogin() (string, string) {
	s := l.d.service
	if !l.current() || s == nil {
		return "", ""
	}
	if s.pppUsername != "" {
		return s.pppUsername, s.pppPassword
	}
	if s.lastGood != nil {
		return s.lastGood.Username, s.lastGood.Password
	}
	return "", ""
}

func (l *pppLink) PPPConnected(iface string, params map[string]string) {
	d := l.d
	if !l.current() || d.state != data.DeviceConnected {
		return
	}
	d.setState(data.DeviceLinked)
	d.applyStatic(iface, staticFromPPP(params))
	d.changed()
}

func (l *pppLink) PPPDisconnected() {
	d := l.d
	if !l.current() || d.state != data.DeviceLinked {
		return
	}
	d.setState(data.DeviceConnected)
	d.dropIP()
	d.changed()
}

func (l *pppLink) PPPDied(f data.Failure) {
	d := l.d
	if !l.current() {
		return
	}
	d.ppp = nil
	if f == data.FailureNone {
		return
	}
	d.log.Println("pppd died: ", f.Description())
	d.disconnectWithFailure(f)
}

// staticFromPPP converts the pppd connect parameters to an IP config. The
// peer is the gateway.
func staticFromPPP(params map[string]string) capability.StaticConfig {
	cfg := capability.StaticConfig{
		Address: params[ppp.KeyInternalAddress],
		Prefix:  32,
		Gateway: params[ppp.KeyGateway],
	}
	if cfg.Gateway == "" {
		cfg.Gateway = params[ppp.KeyExternalAddress]
	}
	for _, k := range []string{ppp.KeyDNS1, ppp.KeyDNS2} {
		if v := params[k]; v != "" {
			cfg.DNS = append(cfg.DNS, v)
		}
	}
	if mru, err := strconv.ParseUint(params[ppp.KeyMRU], 10, 32); err == nil {
		cfg.MTU = uint32(mru)
	}
	return cfg
}
