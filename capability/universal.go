package capability

import (
	"log"
	"os"
	"time"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// registrationDropDelay is how long a lost registration is held back while
// connected. Modems briefly report losing registration during handovers.
const registrationDropDelay = 15 * time.Second

// universal drives 3GPP modems exposed by ModemManager1
type universal struct {
	cfg   Config
	log   *log.Logger
	scope *loop.Scope

	modem    mm.ModemProxy
	m3gpp    mm.Modem3gppProxy
	simple   mm.SimpleProxy
	location mm.LocationProxy
	props    mm.PropertiesProxy

	info       Info
	modemState data.ModemState
	accessTech uint32

	regState        uint32
	selectedNetwork string
	dropTimer       loop.Timer

	// pendingEnable completes when the modem reports an enabled state
	pendingEnable mm.ResultFunc
	// deferredEnable retries an enable rejected with WrongState once the
	// modem reaches Disabled
	deferredEnable func()

	simPath    string
	bearer     *Bearer
	connecting bool
	resetting  bool
	scanning   bool
}

func newUniversal(c Config) *universal {
	ret := &universal{
		cfg:      c,
		log:      log.New(os.Stderr, "3gpp: ", log.LstdFlags|log.Lmsgprefix),
		scope:    loop.NewScope(),
		modem:    c.Factory.Modem(c.Service, c.Path),
		m3gpp:    c.Factory.Modem3gpp(c.Service, c.Path),
		simple:   c.Factory.Simple(c.Service, c.Path),
		location: c.Factory.Location(c.Service, c.Path),
		props:    c.Factory.Properties(c.Service, c.Path),
		regState: mm.Reg3gppUnknown,
		info: Info{
			ActivationState:   data.ActivationStateActivated,
			SubscriptionState: data.SubscriptionUnknown,
		},
	}

	ret.modem.OnStateChanged(func(_, to data.ModemState, _ uint32) {
		if ret.scope.Closed() {
			return
		}
		ret.onModemState(to)
	})

	return ret
}

func (u *universal) Variant() Variant {
	return ThreeGPP
}

func (u *universal) Info() Info {
	return u.info
}

// StartModem enables the modem and refreshes registration state. An enable
// rejected because the modem is still initializing is retried when the
// modem reaches Disabled.
func (u *universal) StartModem(cb mm.ResultFunc) {
	u.enable(true, func(err data.Error) {
		if err.IsFailure() {
			cb(err)
			return
		}
		u.location.Setup(mm.LocationSource3gppLacCi, false, mm.TimeoutSetupLocation,
			loop.Bind(u.scope, func(err data.Error) {
				if err.IsFailure() && u.cfg.Debug {
					u.log.Printf("%v location setup: %v", u.cfg.Path, err)
				}
			}))
		u.GetRegistrationInfo(func(err data.Error) {
			if err.IsFailure() {
				u.log.Printf("%v registration refresh: %v", u.cfg.Path, err)
			}
			cb(data.Error{})
		})
	})
}

// StopModem disables the modem and puts it into low power. Failure to
// power down is not reported.
func (u *universal) StopModem(cb mm.ResultFunc) {
	u.cancelDrop()
	u.deferredEnable = nil
	if u.pendingEnable != nil {
		u.pendingEnable(data.NewError(data.KindOperationFailed, "modem stopped while enabling"))
	}
	u.modem.Enable(false, mm.TimeoutEnable, loop.Bind(u.scope, func(err data.Error) {
		if err.IsFailure() {
			cb(err)
			return
		}
		u.modem.SetPowerState(mm.PowerStateLow, mm.TimeoutSetPowerState, loop.Bind(u.scope, func(err data.Error) {
			if err.IsFailure() {
				u.log.Printf("%v power down failed, ignoring: %v", u.cfg.Path, err)
			}
			cb(data.Error{})
		}))
	}))
}

func (u *universal) EnableModem(enable bool, cb mm.ResultFunc) {
	if enable {
		u.enable(false, cb)
		return
	}
	u.modem.Enable(false, mm.TimeoutEnable, loop.Bind(u.scope, func(err data.Error) {
		cb(err)
	}))
}

func (u *universal) enable(deferrable bool, cb mm.ResultFunc) {
	u.modem.Enable(true, mm.TimeoutEnable, loop.Bind(u.scope, func(err data.Error) {
		if err.Kind == data.KindWrongState && deferrable {
			u.log.Printf("%v enable deferred until modem is disabled", u.cfg.Path)
			u.deferredEnable = func() { u.enable(false, cb) }
			return
		}
		if err.IsFailure() {
			cb(err)
			return
		}
		if u.modemState.IsEnabled() {
			cb(data.Error{})
			return
		}
		// the call only starts enabling, wait for the state signal
		u.pendingEnable = mm.WithDeadlineResult(u.cfg.Dispatcher, mm.TimeoutEnable, "enable",
			loop.Bind(u.scope, func(err data.Error) {
				u.pendingEnable = nil
				cb(err)
			}))
	}))
}

func (u *universal) onModemState(to data.ModemState) {
	if to == u.modemState {
		return
	}
	if u.cfg.Debug {
		u.log.Printf("%v modem state: %v -> %v", u.cfg.Path, u.modemState, to)
	}
	u.modemState = to

	if to == data.ModemDisabled && u.deferredEnable != nil {
		fn := u.deferredEnable
		u.deferredEnable = nil
		fn()
	}
	if to.IsEnabled() && u.pendingEnable != nil {
		u.pendingEnable(data.Error{})
	}
	u.cfg.Delegate.ModemStateChanged(to)
}

func (u *universal) Reset(cb mm.ResultFunc) {
	if u.resetting {
		cb(data.NewError(data.KindInProgress, "already resetting"))
		return
	}
	u.resetting = true
	u.modem.Reset(mm.TimeoutReset, loop.Bind(u.scope, func(err data.Error) {
		u.resetting = false
		cb(err)
	}))
}

func (u *universal) Register(cb mm.ResultFunc) {
	u.register(u.selectedNetwork, cb)
}

func (u *universal) RegisterOnNetwork(networkID string, cb mm.ResultFunc) {
	u.register(networkID, func(err data.Error) {
		if err.IsSuccess() {
			u.selectedNetwork = networkID
		}
		cb(err)
	})
}

// register falls back to the home network when the desired network
// refuses us
func (u *universal) register(networkID string, cb mm.ResultFunc) {
	u.m3gpp.Register(networkID, mm.TimeoutRegister, loop.Bind(u.scope, func(err data.Error) {
		if err.IsFailure() && networkID != "" {
			u.log.Printf("%v register on %v failed, trying home network: %v", u.cfg.Path, networkID, err)
			u.m3gpp.Register("", mm.TimeoutRegister, loop.Bind(u.scope, func(err data.Error) {
				cb(err)
			}))
			return
		}
		cb(err)
	}))
}

func (u *universal) GetRegistrationInfo(cb mm.ResultFunc) {
	u.props.GetAll(mm.Interface3gpp, mm.TimeoutDefault, loop.Bind2(u.scope, func(p mm.Props, err data.Error) {
		if err.IsSuccess() {
			u.OnPropertiesChanged(mm.Interface3gpp, p, nil)
		}
		cb(err)
	}))
}

func isRegistered3gpp(state uint32) bool {
	return state == mm.Reg3gppHome || state == mm.Reg3gppRoaming
}

func (u *universal) IsRegistered() bool {
	return isRegistered3gpp(u.regState)
}

func (u *universal) SetUnregistered(searching bool) {
	// a pending drop would only repeat this
	u.cancelDrop()
	if searching {
		u.regState = mm.Reg3gppSearching
	} else {
		u.regState = mm.Reg3gppIdle
	}
}

func (u *universal) RoamingState() string {
	switch u.regState {
	case mm.Reg3gppHome:
		return data.RoamingStateHome
	case mm.Reg3gppRoaming:
		return data.RoamingStateRoaming
	}
	return data.RoamingStateUnknown
}

func (u *universal) NetworkTechnology() string {
	return mm.AccessTechnologyString(u.accessTech)
}

func (u *universal) NetworkID() string {
	if u.info.ServingOperator.Code != "" {
		return u.info.ServingOperator.Code
	}
	if len(u.info.IMSI) >= 5 {
		return u.info.IMSI[:5]
	}
	return ""
}

func (u *universal) cancelDrop() {
	if u.dropTimer != nil {
		u.dropTimer.Stop()
		u.dropTimer = nil
	}
}

// onRegistration applies a registration update. Losing registration while
// connected is delayed; any later update replaces the delayed one.
func (u *universal) onRegistration(state uint32, code, name string) {
	u.cancelDrop()
	if isRegistered3gpp(u.regState) && !isRegistered3gpp(state) && u.modemState == data.ModemConnected {
		u.log.Printf("%v registration lost while connected, waiting %v", u.cfg.Path, registrationDropDelay)
		u.dropTimer = u.cfg.Dispatcher.PostDelayed(registrationDropDelay, u.scope.Wrap(func() {
			u.dropTimer = nil
			u.applyRegistration(state, code, name)
		}))
		return
	}
	u.applyRegistration(state, code, name)
}

func (u *universal) applyRegistration(state uint32, code, name string) {
	u.regState = state
	u.info.ServingOperator.Code = code
	u.info.ServingOperator.Name = name
	u.cfg.Delegate.RegistrationChanged()
}

func (u *universal) Connect(p ConnectParams, cb func(ConnectResult, data.Error)) {
	if u.connecting {
		cb(ConnectResult{}, data.NewError(data.KindInProgress, "connect already in progress"))
		return
	}

	props := mm.Props{"allow-roaming": p.AllowRoaming}
	var apn *data.APN
	if a, ok := newAPNTryList(p).Front(); ok {
		apn = &a
		props["apn"] = a.Name
		if a.Username != "" {
			props["user"] = a.Username
		}
		if a.Password != "" {
			props["password"] = a.Password
		}
	}

	u.connecting = true
	u.simple.Connect(props, mm.TimeoutConnect, loop.Bind2(u.scope, func(bearer string, err data.Error) {
		if err.IsFailure() {
			u.connecting = false
			cb(ConnectResult{}, err)
			return
		}
		u.readBearer(bearer, func(b Bearer) {
			u.connecting = false
			u.bearer = &b
			cb(ConnectResult{APN: apn, Bearer: b}, data.Error{})
		})
	}))
}

// readBearer fetches the data interface and IP settings of a bearer. If
// they cannot be read the modem's own port is configured with DHCP.
func (u *universal) readBearer(path string, done func(Bearer)) {
	b := Bearer{Path: path, Interface: u.info.Device, Method: IPMethodDHCP}
	if path == "" || path == mm.RootPath {
		done(b)
		return
	}

	props := u.cfg.Factory.Properties(u.cfg.Service, path)
	props.GetAll(mm.InterfaceBearer, mm.TimeoutDefault, loop.Bind2(u.scope, func(p mm.Props, err data.Error) {
		props.Close()
		if err.IsFailure() {
			u.log.Printf("%v bearer %v properties: %v", u.cfg.Path, path, err)
			done(b)
			return
		}
		if iface, ok := p.String(mm.PropBearerInterface); ok && iface != "" {
			b.Interface = iface
		}
		ip4, ok := p.Map(mm.PropBearerIP4Config)
		if !ok {
			done(b)
			return
		}
		method, _ := ip4.Uint32("method")
		switch method {
		case mm.BearerIPPPP:
			b.Method = IPMethodPPP
		case mm.BearerIPStatic:
			b.Method = IPMethodStatic
			sc := &StaticConfig{}
			sc.Address, _ = ip4.String("address")
			sc.Prefix, _ = ip4.Uint32("prefix")
			sc.Gateway, _ = ip4.String("gateway")
			sc.MTU, _ = ip4.Uint32("mtu")
			for _, k := range []string{"dns1", "dns2", "dns3"} {
				if dns, ok := ip4.String(k); ok && dns != "" {
					sc.DNS = append(sc.DNS, dns)
				}
			}
			b.Static = sc
		}
		done(b)
	}))
}

func (u *universal) Disconnect(cb mm.ResultFunc) {
	u.simple.Disconnect(mm.RootPath, mm.TimeoutDisconnect, loop.Bind(u.scope, func(err data.Error) {
		if err.IsSuccess() {
			u.bearer = nil
		}
		cb(err)
	}))
}

func (u *universal) DisconnectCleanup() {
	u.bearer = nil
}

func (u *universal) ActiveBearer() *Bearer {
	return u.bearer
}

func (u *universal) Scan(cb func([]data.Network, data.Error)) {
	if u.scanning {
		cb(nil, data.NewError(data.KindInProgress, "already scanning"))
		return
	}
	u.scanning = true
	u.m3gpp.Scan(mm.TimeoutScan, loop.Bind2(u.scope, func(res []mm.Props, err data.Error) {
		u.scanning = false
		if err.IsFailure() {
			cb(nil, err)
			return
		}
		var found []data.Network
		for _, r := range res {
			n := data.Network{}
			n.ID, _ = r.String("operator-code")
			n.LongName, _ = r.String("operator-long")
			n.ShortName, _ = r.String("operator-short")
			if s, ok := r.Uint32("status"); ok {
				n.Status = mm.NetworkStatusString(s)
			}
			if t, ok := r.Uint32("access-technology"); ok {
				n.Technology = mm.AccessTechnologyString(t)
			}
			found = append(found, n)
		}
		cb(found, err)
	}))
}

func (u *universal) GetModemInfo(cb mm.ResultFunc) {
	u.props.GetAll(mm.InterfaceModem, mm.TimeoutDefault, loop.Bind2(u.scope, func(p mm.Props, err data.Error) {
		if err.IsSuccess() {
			u.OnPropertiesChanged(mm.InterfaceModem, p, nil)
		}
		cb(err)
	}))
}

func (u *universal) GetSignalQuality() {
	u.props.GetAll(mm.InterfaceModem, mm.TimeoutDefault, loop.Bind2(u.scope, func(p mm.Props, err data.Error) {
		if err.IsFailure() {
			u.log.Printf("%v signal quality: %v", u.cfg.Path, err)
			return
		}
		if q, ok := p.SignalQuality(); ok {
			u.applySignalQuality(q)
		}
	}))
}

// applySignalQuality stretches the low end of the range so weak but usable
// signals show more than one bar
func (u *universal) applySignalQuality(q uint32) {
	scaled := 2*q + 1
	if scaled > 100 {
		scaled = 100
	}
	u.cfg.Delegate.SignalQualityChanged(int(scaled))
}

func (u *universal) SetCarrier(_ string, cb mm.ResultFunc) {
	cb(notSupported("carrier selection"))
}

func (u *universal) Activate(_ string, cb mm.ResultFunc) {
	cb(notSupported("activation"))
}

// GetLocation returns the "MCC,MNC,LAC,CI" string of the serving cell
func (u *universal) GetLocation(cb func(string, data.Error)) {
	u.location.GetLocation(mm.TimeoutGetLocation, loop.Bind2(u.scope, func(loc map[uint32]interface{}, err data.Error) {
		if err.IsFailure() {
			cb("", err)
			return
		}
		s, _ := loc[mm.LocationSource3gppLacCi].(string)
		cb(s, err)
	}))
}

func (u *universal) OnPropertiesChanged(iface string, changed mm.Props, _ []string) {
	switch iface {
	case mm.InterfaceModem:
		u.onModemProps(changed)
	case mm.Interface3gpp:
		u.on3gppProps(changed)
	}
}

func (u *universal) onModemProps(p mm.Props) {
	infoChanged := false
	setString := func(key string, dst *string) {
		if v, ok := p.String(key); ok && v != *dst {
			*dst = v
			infoChanged = true
		}
	}
	setString(mm.PropManufacturer, &u.info.Manufacturer)
	setString(mm.PropModel, &u.info.Model)
	setString(mm.PropRevision, &u.info.Revision)
	setString(mm.PropEquipmentIdentifier, &u.info.EquipmentID)

	if port, ok := p.NetPort(); ok {
		u.info.Device = port
	}
	if nums, ok := p.Strings(mm.PropOwnNumbers); ok && len(nums) > 0 && nums[0] != u.info.MDN {
		u.info.MDN = nums[0]
		infoChanged = true
	}
	if lock, ok := p.Uint32(mm.PropUnlockRequired); ok {
		locked := lock != mm.LockNone && lock != mm.LockUnknown
		if locked != u.info.SimLocked {
			u.info.SimLocked = locked
			infoChanged = true
		}
	}
	if sim, ok := p.String(mm.PropSim); ok && sim != u.simPath {
		u.simPath = sim
		u.readSim()
	}
	if infoChanged {
		u.cfg.Delegate.InfoChanged()
	}

	if tech, ok := p.Uint32(mm.PropAccessTechnologies); ok && tech != u.accessTech {
		u.accessTech = tech
		u.cfg.Delegate.RegistrationChanged()
	}
	if q, ok := p.SignalQuality(); ok {
		u.applySignalQuality(q)
	}
	if s, ok := p.Int32(mm.PropState); ok {
		u.onModemState(data.ModemState(s))
	}
}

func (u *universal) on3gppProps(p mm.Props) {
	if imei, ok := p.String(mm.Prop3gppImei); ok && imei != u.info.IMEI {
		u.info.IMEI = imei
		u.cfg.Delegate.InfoChanged()
	}
	if sub, ok := p.Uint32(mm.Prop3gppSubscriptionState); ok {
		u.info.SubscriptionState = subscriptionState(sub)
	}

	state, stateOK := p.Uint32(mm.Prop3gppRegistrationState)
	code, codeOK := p.String(mm.Prop3gppOperatorCode)
	name, nameOK := p.String(mm.Prop3gppOperatorName)
	if !stateOK && !codeOK && !nameOK {
		return
	}
	if !stateOK {
		state = u.regState
	}
	if !codeOK {
		code = u.info.ServingOperator.Code
	}
	if !nameOK {
		name = u.info.ServingOperator.Name
	}
	u.onRegistration(state, code, name)
}

func subscriptionState(s uint32) string {
	switch s {
	case 1:
		return data.SubscriptionUnprovisioned
	case 2:
		return data.SubscriptionProvisioned
	case 3:
		return data.SubscriptionOutOfData
	}
	return data.SubscriptionUnknown
}

func (u *universal) readSim() {
	path := u.simPath
	if path == "" || path == mm.RootPath {
		u.info.IMSI = ""
		u.info.ICCID = ""
		u.info.SPN = ""
		u.cfg.Delegate.InfoChanged()
		return
	}
	props := u.cfg.Factory.Properties(u.cfg.Service, path)
	props.GetAll(mm.InterfaceSim, mm.TimeoutDefault, loop.Bind2(u.scope, func(p mm.Props, err data.Error) {
		props.Close()
		if path != u.simPath {
			return
		}
		if err.IsFailure() {
			u.log.Printf("%v SIM %v properties: %v", u.cfg.Path, path, err)
			return
		}
		u.info.IMSI, _ = p.String(mm.PropSimImsi)
		u.info.ICCID, _ = p.String(mm.PropSimIdentifier)
		u.info.SPN, _ = p.String(mm.PropSimOperatorName)
		u.cfg.Delegate.InfoChanged()
	}))
}

func (u *universal) Close() {
	u.scope.Close()
	u.cancelDrop()
	u.modem.Close()
	u.m3gpp.Close()
	u.simple.Close()
	u.location.Close()
	u.props.Close()
}
