// Package cellular implements the cellular network device: the state
// machine that takes a modem from disabled through registration to a
// connected and configured data link, and the service it exposes while
// registered.
package cellular

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/simpleiot/cellmgr/capability"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// LocationInterval is how often the serving cell is polled
var LocationInterval = 5 * time.Minute

var newCapability = capability.New

// Config describes one device and the collaborators it uses. Optional
// collaborators may be nil.
type Config struct {
	Dispatcher loop.Dispatcher
	Factory    mm.Factory
	// Service is the bus owner of the modem
	Service string
	Path    string
	Variant capability.Variant
	// Interface, Index and MAC identify the local network interface
	Interface    string
	Index        int
	MAC          string
	Providers    ProviderDB
	Profiles     ProfileStore
	Links        LinkMonitor
	IP           IPConfigurator
	PPP          PPPStarter
	OnChange     func(data.DeviceSnapshot)
	AllowRoaming bool
	Debug        bool
}

// Device is a cellular network device bound to one modem. All methods
// must be called on the loop.
type Device struct {
	cfg   Config
	log   *log.Logger
	scope *loop.Scope
	modem capability.Capability

	state      data.DeviceState
	modemState data.ModemState
	service    *Service
	strength   int

	allowRoaming            bool
	providerRequiresRoaming bool
	homeProvider            data.Operator
	homeAPNs                []data.APN

	connecting  bool
	bearer      *capability.Bearer
	ipIface     string
	ipGen       int
	ppp         *pppLink
	unwatchLink func()

	scanning      bool
	found         []data.Network
	location      *data.CellLocation
	locating      bool
	locationTimer loop.Timer
}

// NewDevice creates the device and its capability. The device starts
// Disabled.
func NewDevice(cfg Config) *Device {
	d := &Device{
		cfg:          cfg,
		log:          log.New(os.Stderr, "cellular: ", log.LstdFlags|log.Lmsgprefix),
		scope:        loop.NewScope(),
		state:        data.DeviceDisabled,
		modemState:   data.ModemUnknown,
		allowRoaming: cfg.AllowRoaming,
	}

	d.modem = newCapability(cfg.Variant, capability.Config{
		Factory:    cfg.Factory,
		Dispatcher: cfg.Dispatcher,
		Service:    cfg.Service,
		Path:       cfg.Path,
		Delegate:   delegate{d},
		Debug:      cfg.Debug,
	})

	if cfg.Links != nil && cfg.Index > 0 {
		d.unwatchLink = cfg.Links.Watch(cfg.Index, func(up bool) {
			cfg.Dispatcher.Post(d.scope.Wrap(func() { d.linkEvent(up) }))
		})
	}

	return d
}

// Path returns the modem object path
func (d *Device) Path() string {
	return d.cfg.Path
}

// State returns the device state
func (d *Device) State() data.DeviceState {
	return d.state
}

// Service returns the current service, nil when not registered
func (d *Device) Service() *Service {
	return d.service
}

// EquipmentID identifies the hardware: IMEI, MEID or the interface MAC
func (d *Device) EquipmentID() string {
	info := d.modem.Info()
	switch {
	case info.IMEI != "":
		return info.IMEI
	case info.MEID != "":
		return info.MEID
	}
	return d.cfg.MAC
}

func (d *Device) setState(s data.DeviceState) {
	if s == d.state {
		return
	}
	d.log.Printf("%v state: %v -> %v", d.cfg.Interface, d.state, s)
	d.state = s
}

func (d *Device) changed() {
	if d.cfg.OnChange == nil || d.scope.Closed() {
		return
	}
	d.cfg.OnChange(d.Snapshot())
}

// SetEnabled starts or stops the device
func (d *Device) SetEnabled(enable bool, cb mm.ResultFunc) {
	if enable {
		d.Start(cb)
	} else {
		d.Stop(cb)
	}
}

// Start enables the modem and begins tracking its registration
func (d *Device) Start(cb mm.ResultFunc) {
	switch d.state {
	case data.DeviceDisabled:
	case data.DeviceEnabling:
		cb(data.NewError(data.KindInProgress, "enable in progress"))
		return
	case data.DeviceDisabling:
		cb(data.NewError(data.KindWrongState, "disable in progress"))
		return
	default:
		cb(data.Error{})
		return
	}

	d.setState(data.DeviceEnabling)
	d.changed()
	d.modem.StartModem(loop.Bind(d.scope, func(err data.Error) {
		if d.state != data.DeviceEnabling {
			if err.IsSuccess() {
				err = data.NewError(data.KindOperationFailed, "device stopped while enabling")
			}
			cb(err)
			return
		}
		if err.IsFailure() {
			d.log.Printf("%v enable failed: %v", d.cfg.Interface, err)
			d.setState(data.DeviceDisabled)
			d.changed()
			cb(err)
			return
		}

		d.setState(data.DeviceEnabled)
		d.updateHomeProvider()
		d.handleNewRegistrationState()
		d.startLocation()
		cb(err)
	}))
}

// Stop disconnects if needed and disables the modem. Stopping a disabled
// device succeeds without doing anything.
func (d *Device) Stop(cb mm.ResultFunc) {
	switch d.state {
	case data.DeviceDisabled:
		cb(data.Error{})
		return
	case data.DeviceDisabling:
		cb(data.NewError(data.KindInProgress, "disable in progress"))
		return
	}

	if d.state.IsConnected() || d.connecting {
		d.teardownLink()
		if d.service != nil {
			d.service.setState(data.ServiceIdle)
		}
	}
	d.stopLocation()
	d.setState(data.DeviceDisabling)
	d.changed()

	d.modem.StopModem(loop.Bind(d.scope, func(err data.Error) {
		if err.IsFailure() {
			d.log.Printf("%v disable failed: %v", d.cfg.Interface, err)
			d.setState(data.DeviceEnabled)
			d.handleNewRegistrationState()
			cb(err)
			return
		}
		d.modem.DisconnectCleanup()
		d.destroyService()
		d.setState(data.DeviceDisabled)
		d.changed()
		cb(err)
	}))
}

// Reset power cycles the modem
func (d *Device) Reset(cb mm.ResultFunc) {
	d.modem.Reset(loop.Bind(d.scope, cb))
}

// Scan searches for available networks
func (d *Device) Scan(cb func([]data.Network, data.Error)) {
	if !d.state.AtLeastEnabled() {
		cb(nil, data.NewError(data.KindWrongState, "device is %v", d.state))
		return
	}
	if d.scanning {
		cb(nil, data.NewError(data.KindInProgress, "already scanning"))
		return
	}

	d.scanning = true
	d.changed()
	d.modem.Scan(loop.Bind2(d.scope, func(nets []data.Network, err data.Error) {
		d.scanning = false
		if err.IsSuccess() {
			d.found = nets
		}
		d.changed()
		cb(nets, err)
	}))
}

// RegisterOnNetwork selects a network by id, empty for automatic
func (d *Device) RegisterOnNetwork(networkID string, cb mm.ResultFunc) {
	if !d.state.AtLeastEnabled() {
		cb(data.NewError(data.KindWrongState, "device is %v", d.state))
		return
	}
	d.modem.RegisterOnNetwork(networkID, loop.Bind(d.scope, func(err data.Error) {
		d.handleNewRegistrationState()
		cb(err)
	}))
}

// Activate starts over the air activation (CDMA)
func (d *Device) Activate(carrier string, cb mm.ResultFunc) {
	d.modem.Activate(carrier, loop.Bind(d.scope, func(err data.Error) {
		d.updateService()
		d.changed()
		cb(err)
	}))
}

// SetAllowRoaming changes the roaming policy. Disallowing roaming while
// connected on a roaming network disconnects.
func (d *Device) SetAllowRoaming(allow bool) {
	if allow == d.allowRoaming {
		return
	}
	d.allowRoaming = allow
	d.saveService()
	if d.state.IsConnected() && d.roamingDisallowed() {
		d.log.Println("roaming no longer allowed, disconnecting")
		d.disconnectWithFailure(data.FailureNotOnHomeNetwork)
	}
	d.changed()
}

// SetUserAPN sets the APN tried after the last good one. nil clears it.
func (d *Device) SetUserAPN(apn *data.APN) data.Error {
	if d.service == nil {
		return data.NewError(data.KindNotRegistered, "no service")
	}
	if apn != nil && apn.IsZero() {
		apn = nil
	}
	d.service.userAPN = apn
	d.saveService()
	d.changed()
	return data.Error{}
}

// SetPPPCredentials sets the credentials used when the bearer needs PPP
func (d *Device) SetPPPCredentials(user, password string) data.Error {
	if d.service == nil {
		return data.NewError(data.KindNotRegistered, "no service")
	}
	d.service.pppUsername = user
	d.service.pppPassword = password
	d.saveService()
	return data.Error{}
}

// OnPropertiesChanged forwards a properties update of the modem object
func (d *Device) OnPropertiesChanged(iface string, changed mm.Props, invalidated []string) {
	d.modem.OnPropertiesChanged(iface, changed, invalidated)
}

// Close releases the modem. Completions still pending are dropped and the
// device never changes state again.
func (d *Device) Close() {
	if d.scope.Closed() {
		return
	}
	d.scope.Close()
	if d.unwatchLink != nil {
		d.unwatchLink()
	}
	d.stopLocation()
	d.teardownLink()
	d.destroyService()
	d.modem.Close()
}

func (d *Device) roamingAllowed() bool {
	return d.allowRoaming || d.providerRequiresRoaming
}

func (d *Device) roamingDisallowed() bool {
	return d.modem.RoamingState() == data.RoamingStateRoaming && !d.roamingAllowed()
}

func (d *Device) onModemStateChanged(s data.ModemState) {
	old := d.modemState
	d.modemState = s
	if d.cfg.Debug {
		d.log.Printf("%v modem state: %v -> %v", d.cfg.Interface, old, s)
	}

	switch {
	case s == data.ModemConnected:
		if d.connecting {
			// the connect completion takes over
			break
		}
		if !d.state.AtLeastEnabled() {
			d.log.Printf("discarding modem connected in state %v", d.state)
			break
		}
		d.onConnected(d.modem.ActiveBearer())
	case s == data.ModemDisabled && d.state.AtLeastEnabled():
		d.log.Println("modem disabled externally")
		d.teardownLink()
		d.modem.DisconnectCleanup()
		d.stopLocation()
		d.destroyService()
		d.setState(data.DeviceDisabled)
	case s < data.ModemConnected && s != data.ModemDisconnecting && d.state.IsConnected():
		d.onDisconnected()
	}
	d.changed()
}

func (d *Device) handleNewRegistrationState() {
	if !d.state.AtLeastEnabled() {
		return
	}

	if !d.modem.IsRegistered() {
		if d.state.IsConnected() {
			d.log.Println("registration lost while connected")
			d.teardownLink()
			d.modem.DisconnectCleanup()
		}
		d.setState(data.DeviceEnabled)
		d.destroyService()
		d.changed()
		return
	}

	if d.state == data.DeviceEnabled {
		d.setState(data.DeviceRegistered)
	}
	if d.service == nil {
		d.createService()
	}
	d.updateService()

	if d.state.IsConnected() && d.roamingDisallowed() {
		d.log.Println("roaming not allowed, disconnecting")
		d.disconnectWithFailure(data.FailureNotOnHomeNetwork)
	}
	d.changed()
}

func (d *Device) identity() data.Identity {
	info := d.modem.Info()
	return data.Identity{IMSI: info.IMSI, MEID: info.MEID, ICCID: info.ICCID}
}

func (d *Device) createService() {
	id := d.identity()
	var p data.Profile
	found := false
	if d.cfg.Profiles != nil && id.Key() != "" {
		var err error
		p, found, err = d.cfg.Profiles.Load(id)
		if err != nil {
			d.log.Println("error loading service profile: ", err)
		}
	}

	d.service = newService(id, p, found)
	if found {
		d.allowRoaming = p.AllowRoaming
		d.log.Printf("re-attached service %v for %v", d.service.id, id.Key())
	} else {
		d.log.Printf("created service %v", d.service.id)
	}
}

func (d *Device) updateService() {
	s := d.service
	if s == nil {
		return
	}
	info := d.modem.Info()
	s.roamingState = d.modem.RoamingState()
	s.networkTechnology = d.modem.NetworkTechnology()
	s.servingOperator = info.ServingOperator
	s.activationState = info.ActivationState
	s.subscriptionState = info.SubscriptionState
	s.strength = d.strength

	switch {
	case info.ServingOperator.Name != "":
		s.name = info.ServingOperator.Name
	case d.homeProvider.Name != "":
		s.name = d.homeProvider.Name
	case info.SPN != "":
		s.name = info.SPN
	case s.name == "":
		s.name = "cellular"
	}
}

func (d *Device) destroyService() {
	if d.service == nil {
		return
	}
	d.saveService()
	d.log.Printf("destroyed service %v", d.service.id)
	d.service = nil
}

func (d *Device) saveService() {
	if d.service == nil || d.service.key == "" || d.cfg.Profiles == nil {
		return
	}
	if err := d.cfg.Profiles.Save(d.service.profile(d.allowRoaming)); err != nil {
		d.log.Println("error saving service profile: ", err)
	}
}

// homeNetworkIDs returns the provider database keys for the subscriber,
// most specific first
func homeNetworkIDs(info capability.Info) []string {
	var ids []string
	if len(info.IMSI) >= 6 {
		ids = append(ids, info.IMSI[:6])
	}
	if len(info.IMSI) >= 5 {
		ids = append(ids, info.IMSI[:5])
	}
	if info.Carrier != "" {
		ids = append(ids, info.Carrier)
	}
	return ids
}

func (d *Device) updateHomeProvider() {
	if d.cfg.Providers == nil {
		return
	}
	for _, id := range homeNetworkIDs(d.modem.Info()) {
		if p, ok := d.cfg.Providers.Lookup(id); ok {
			d.homeProvider = p.Operator()
			d.providerRequiresRoaming = p.RequiresRoaming
			d.homeAPNs = p.APNs
			return
		}
	}
}

func (d *Device) providerAPNs() []data.APN {
	if len(d.homeAPNs) > 0 || d.cfg.Providers == nil {
		return d.homeAPNs
	}
	if p, ok := d.cfg.Providers.Lookup(d.modem.NetworkID()); ok {
		return p.APNs
	}
	return nil
}

func (d *Device) startLocation() {
	if d.locating || d.locationTimer != nil {
		return
	}
	d.pollLocation()
}

func (d *Device) stopLocation() {
	if d.locationTimer != nil {
		d.locationTimer.Stop()
		d.locationTimer = nil
	}
}

func (d *Device) pollLocation() {
	d.locationTimer = nil
	d.locating = true
	d.modem.GetLocation(loop.Bind2(d.scope, func(s string, err data.Error) {
		d.locating = false
		if err.Kind == data.KindNotSupported {
			return
		}
		if err.IsFailure() {
			if d.cfg.Debug {
				d.log.Println("location: ", err)
			}
		} else if loc, ok := parseLocation(s); ok {
			d.location = loc
			d.changed()
		}
		if d.state.AtLeastEnabled() {
			d.locationTimer = d.cfg.Dispatcher.PostDelayed(LocationInterval, d.scope.Wrap(d.pollLocation))
		}
	}))
}

// parseLocation parses the "MCC,MNC,LAC,CI" 3GPP location string
func parseLocation(s string) (*data.CellLocation, bool) {
	f := strings.Split(s, ",")
	if len(f) != 4 {
		return nil, false
	}
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return &data.CellLocation{MCC: f[0], MNC: f[1], LAC: f[2], CI: f[3]}, true
}

// Snapshot returns the current externally visible state
func (d *Device) Snapshot() data.DeviceSnapshot {
	info := d.modem.Info()
	s := data.DeviceSnapshot{
		Path:                    d.cfg.Path,
		EquipmentID:             d.EquipmentID(),
		Capability:              d.modem.Variant().String(),
		State:                   d.state.String(),
		ModemState:              d.modemState.String(),
		Interface:               d.cfg.Interface,
		InterfaceIndex:          d.cfg.Index,
		MACAddress:              d.cfg.MAC,
		IMEI:                    info.IMEI,
		IMSI:                    info.IMSI,
		MEID:                    info.MEID,
		ICCID:                   info.ICCID,
		MDN:                     info.MDN,
		Manufacturer:            info.Manufacturer,
		Model:                   info.Model,
		FirmwareRevision:        info.Revision,
		AllowRoaming:            d.allowRoaming,
		ProviderRequiresRoaming: d.providerRequiresRoaming,
		HomeProvider:            d.homeProvider,
		SimLocked:               info.SimLocked,
		Scanning:                d.scanning,
		FoundNetworks:           d.found,
		Location:                d.location,
	}
	if d.service != nil {
		s.Service = d.service.snapshot()
	}
	return s
}

// delegate receives capability updates for the device
type delegate struct {
	d *Device
}

func (g delegate) ModemStateChanged(s data.ModemState) {
	g.d.onModemStateChanged(s)
}

func (g delegate) RegistrationChanged() {
	g.d.handleNewRegistrationState()
}

func (g delegate) SignalQualityChanged(strength int) {
	g.d.strength = strength
	if g.d.service != nil {
		g.d.service.strength = strength
	}
	g.d.changed()
}

func (g delegate) InfoChanged() {
	g.d.updateHomeProvider()
	g.d.updateService()
	g.d.changed()
}
