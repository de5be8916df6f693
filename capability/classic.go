package capability

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// IMSI reads fail while the SIM is still initializing
const (
	imsiRetryLimit = 40
	imsiRetryDelay = 500 * time.Millisecond
)

// classic modem states, MMModemState of the classic API
const (
	classicStateDisabled      uint32 = 10
	classicStateDisabling     uint32 = 20
	classicStateEnabling      uint32 = 30
	classicStateEnabled       uint32 = 40
	classicStateSearching     uint32 = 50
	classicStateRegistered    uint32 = 60
	classicStateDisconnecting uint32 = 70
	classicStateConnecting    uint32 = 80
	classicStateConnected     uint32 = 90
)

func classicModemState(s uint32) data.ModemState {
	switch s {
	case classicStateDisabled:
		return data.ModemDisabled
	case classicStateDisabling:
		return data.ModemDisabling
	case classicStateEnabling:
		return data.ModemEnabling
	case classicStateEnabled:
		return data.ModemEnabled
	case classicStateSearching:
		return data.ModemSearching
	case classicStateRegistered:
		return data.ModemRegistered
	case classicStateDisconnecting:
		return data.ModemDisconnecting
	case classicStateConnecting:
		return data.ModemConnecting
	case classicStateConnected:
		return data.ModemConnected
	}
	return data.ModemUnknown
}

// classic drives modems exposed by the classic ModemManager API. GSM and
// CDMA share the modem and simple interfaces and differ by tech.
type classic struct {
	tech  Variant
	cfg   Config
	log   *log.Logger
	scope *loop.Scope

	modem   mm.ClassicModemProxy
	simple  mm.SimpleProxy
	props   mm.PropertiesProxy
	card    mm.GsmCardProxy
	network mm.GsmNetworkProxy
	cdma    mm.CdmaProxy

	info     Info
	enabled  bool
	ipMethod IPMethod

	regStatus       uint32
	accessTech      uint32
	cdma1x          uint32
	evdo            uint32
	selectedNetwork string

	tryList     *apnTryList
	connecting  bool
	bearer      *Bearer
	scanning    bool
	imsiRetries int
	imsiTimer   loop.Timer
}

func newClassic(tech Variant, c Config) *classic {
	ret := &classic{
		tech:      tech,
		cfg:       c,
		log:       log.New(os.Stderr, "classic: ", log.LstdFlags|log.Lmsgprefix),
		scope:     loop.NewScope(),
		modem:     c.Factory.ClassicModem(c.Service, c.Path),
		simple:    c.Factory.ClassicSimple(c.Service, c.Path),
		props:     c.Factory.Properties(c.Service, c.Path),
		ipMethod:  IPMethodDHCP,
		regStatus: mm.RegGsmUnknown,
	}

	ret.modem.OnStateChanged(func(_, to, _ uint32) {
		if ret.scope.Closed() {
			return
		}
		c.Delegate.ModemStateChanged(classicModemState(to))
	})

	if tech == ClassicGSM {
		ret.card = c.Factory.GsmCard(c.Service, c.Path)
		ret.network = c.Factory.GsmNetwork(c.Service, c.Path)
		ret.network.OnRegistrationInfo(loop.Bind(ret.scope, ret.applyRegistrationInfo))
		ret.network.OnSignalQuality(loop.Bind(ret.scope, ret.applySignalQuality))
	} else {
		ret.cdma = c.Factory.Cdma(c.Service, c.Path)
		ret.cdma.OnRegistrationStateChanged(loop.Bind2(ret.scope, ret.applyCdmaRegistration))
		ret.cdma.OnSignalQuality(loop.Bind(ret.scope, ret.applySignalQuality))
	}

	return ret
}

func (c *classic) Variant() Variant {
	return c.tech
}

func (c *classic) Info() Info {
	return c.info
}

func (c *classic) StartModem(cb mm.ResultFunc) {
	var steps []step
	if !c.enabled {
		steps = append(steps, step{name: "enable", run: func(done mm.ResultFunc) {
			c.EnableModem(true, done)
		}})
	}

	if c.tech == ClassicGSM {
		if c.selectedNetwork != "" {
			steps = append(steps, step{name: "register", run: c.Register})
		}
		c.imsiRetries = 0
		steps = append(steps,
			step{name: "imei", run: c.getIMEI},
			step{name: "imsi", run: c.getIMSI},
			step{name: "spn", run: c.getSPN, ignoreError: true},
			step{name: "msisdn", run: c.getMSISDN, ignoreError: true},
			step{name: "properties", run: c.getProperties, ignoreError: true},
		)
	} else {
		steps = append(steps, step{name: "status", run: c.getModemStatus, ignoreError: true})
	}

	steps = append(steps,
		step{name: "info", run: c.GetModemInfo, ignoreError: true},
		step{name: "registration", run: c.GetRegistrationInfo, ignoreError: true},
	)

	runSteps(c.scope, steps, func(err data.Error) {
		if err.IsSuccess() {
			c.GetSignalQuality()
		}
		cb(err)
	})
}

// StopModem drops any connection and powers the radio off. A failed
// disconnect does not stop the disable.
func (c *classic) StopModem(cb mm.ResultFunc) {
	if c.imsiTimer != nil {
		c.imsiTimer.Stop()
		c.imsiTimer = nil
	}
	runSteps(c.scope, []step{
		{name: "disconnect", run: c.Disconnect, ignoreError: true},
		{name: "disable", run: func(done mm.ResultFunc) {
			c.EnableModem(false, done)
		}},
	}, cb)
}

func (c *classic) EnableModem(enable bool, cb mm.ResultFunc) {
	c.modem.Enable(enable, mm.TimeoutEnable, loop.Bind(c.scope, func(err data.Error) {
		if err.IsSuccess() {
			c.enabled = enable
		}
		cb(err)
	}))
}

// Reset power cycles the radio
func (c *classic) Reset(cb mm.ResultFunc) {
	runSteps(c.scope, []step{
		{name: "disable", run: func(done mm.ResultFunc) { c.EnableModem(false, done) }},
		{name: "enable", run: func(done mm.ResultFunc) { c.EnableModem(true, done) }},
	}, cb)
}

func (c *classic) Register(cb mm.ResultFunc) {
	if c.tech != ClassicGSM {
		cb(notSupported("register"))
		return
	}
	c.network.Register(c.selectedNetwork, mm.TimeoutRegister, loop.Bind(c.scope, func(err data.Error) {
		if err.IsFailure() {
			cb(err)
			return
		}
		c.GetRegistrationInfo(cb)
	}))
}

func (c *classic) RegisterOnNetwork(networkID string, cb mm.ResultFunc) {
	if c.tech != ClassicGSM {
		cb(notSupported("register on network"))
		return
	}
	c.network.Register(networkID, mm.TimeoutRegister, loop.Bind(c.scope, func(err data.Error) {
		if err.IsFailure() {
			cb(err)
			return
		}
		c.selectedNetwork = networkID
		c.GetRegistrationInfo(cb)
	}))
}

func (c *classic) GetRegistrationInfo(cb mm.ResultFunc) {
	if c.tech == ClassicGSM {
		c.network.GetRegistrationInfo(mm.TimeoutDefault,
			loop.Bind2(c.scope, func(info mm.RegistrationInfo, err data.Error) {
				if err.IsSuccess() {
					c.applyRegistrationInfo(info)
				}
				cb(err)
			}))
		return
	}
	c.cdma.GetRegistrationState(mm.TimeoutDefault, func(cdma1x, evdo uint32, err data.Error) {
		if c.scope.Closed() {
			return
		}
		if err.IsSuccess() {
			c.applyCdmaRegistration(cdma1x, evdo)
		}
		cb(err)
	})
}

func (c *classic) applyRegistrationInfo(info mm.RegistrationInfo) {
	if c.cfg.Debug {
		c.log.Printf("%v registration %v %v %v", c.cfg.Path, info.Status, info.OperatorCode, info.OperatorName)
	}
	c.regStatus = info.Status
	c.info.ServingOperator.Code = info.OperatorCode
	c.info.ServingOperator.Name = info.OperatorName
	c.cfg.Delegate.RegistrationChanged()
}

func (c *classic) applyCdmaRegistration(cdma1x, evdo uint32) {
	c.cdma1x = cdma1x
	c.evdo = evdo
	c.cfg.Delegate.RegistrationChanged()
}

func (c *classic) applySignalQuality(q uint32) {
	c.cfg.Delegate.SignalQualityChanged(int(q))
}

func (c *classic) IsRegistered() bool {
	if c.tech == ClassicGSM {
		return c.regStatus == mm.RegGsmHome || c.regStatus == mm.RegGsmRoaming
	}
	return c.cdma1x != mm.RegCdmaUnknown || c.evdo != mm.RegCdmaUnknown
}

func (c *classic) SetUnregistered(searching bool) {
	if c.tech == ClassicGSM {
		if searching {
			c.regStatus = mm.RegGsmSearching
		} else {
			c.regStatus = mm.RegGsmIdle
		}
		return
	}
	c.cdma1x = mm.RegCdmaUnknown
	c.evdo = mm.RegCdmaUnknown
}

func (c *classic) RoamingState() string {
	if c.tech == ClassicGSM {
		switch c.regStatus {
		case mm.RegGsmHome:
			return data.RoamingStateHome
		case mm.RegGsmRoaming:
			return data.RoamingStateRoaming
		}
		return data.RoamingStateUnknown
	}

	state := c.cdma1x
	if c.evdo != mm.RegCdmaUnknown {
		state = c.evdo
	}
	switch state {
	case mm.RegCdmaHome, mm.RegCdmaRegistered:
		return data.RoamingStateHome
	case mm.RegCdmaRoaming:
		return data.RoamingStateRoaming
	}
	return data.RoamingStateUnknown
}

func (c *classic) NetworkTechnology() string {
	if c.tech == ClassicGSM {
		return mm.GsmAccessTechnologyString(c.accessTech)
	}
	if c.evdo != mm.RegCdmaUnknown {
		return data.TechnologyEvdo
	}
	if c.cdma1x != mm.RegCdmaUnknown {
		return data.Technology1Xrtt
	}
	return ""
}

func (c *classic) NetworkID() string {
	if c.tech == ClassicCDMA {
		return c.info.Carrier
	}
	if c.info.ServingOperator.Code != "" {
		return c.info.ServingOperator.Code
	}
	if len(c.info.IMSI) >= 5 {
		return c.info.IMSI[:5]
	}
	return ""
}

func (c *classic) Connect(p ConnectParams, cb func(ConnectResult, data.Error)) {
	if c.connecting {
		cb(ConnectResult{}, data.NewError(data.KindInProgress, "connect already in progress"))
		return
	}

	if c.tech == ClassicCDMA {
		c.connecting = true
		c.simple.Connect(mm.Props{"number": "#777"}, mm.TimeoutConnect,
			loop.Bind2(c.scope, func(_ string, err data.Error) {
				c.connecting = false
				if err.IsFailure() {
					cb(ConnectResult{}, err)
					return
				}
				c.bearer = c.classicBearer()
				cb(ConnectResult{Bearer: *c.bearer}, err)
			}))
		return
	}

	c.tryList = newAPNTryList(p)
	if c.tryList.Len() == 0 {
		cb(ConnectResult{}, data.NewError(data.KindInvalidApn, "no APN to try"))
		return
	}
	c.connecting = true
	c.connectNext(p.AllowRoaming, cb)
}

func (c *classic) connectNext(allowRoaming bool, cb func(ConnectResult, data.Error)) {
	apn, _ := c.tryList.Front()
	props := mm.Props{"number": "*99#", "apn": apn.Name}
	if apn.Username != "" {
		props["username"] = apn.Username
	}
	if apn.Password != "" {
		props["password"] = apn.Password
	}
	if !allowRoaming {
		props["home_only"] = true
	}

	c.log.Printf("%v connecting with APN %q, %v left", c.cfg.Path, apn.Name, c.tryList.Len()-1)

	c.simple.Connect(props, mm.TimeoutConnect, loop.Bind2(c.scope, func(_ string, err data.Error) {
		if err.IsSuccess() {
			c.connecting = false
			c.tryList.Clear()
			c.bearer = c.classicBearer()
			cb(ConnectResult{APN: &apn, Bearer: *c.bearer}, err)
			return
		}

		if err.Kind == data.KindInvalidApn {
			c.tryList.Pop()
			if c.tryList.Len() > 0 {
				c.connectNext(allowRoaming, cb)
				return
			}
		}
		c.connecting = false
		cb(ConnectResult{}, err)
	}))
}

func (c *classic) classicBearer() *Bearer {
	return &Bearer{Interface: c.info.Device, Method: c.ipMethod}
}

func (c *classic) Disconnect(cb mm.ResultFunc) {
	c.modem.Disconnect(mm.TimeoutDisconnect, loop.Bind(c.scope, func(err data.Error) {
		if err.IsSuccess() {
			c.bearer = nil
		}
		cb(err)
	}))
}

func (c *classic) DisconnectCleanup() {
	c.bearer = nil
}

func (c *classic) ActiveBearer() *Bearer {
	return c.bearer
}

func (c *classic) Scan(cb func([]data.Network, data.Error)) {
	if c.tech != ClassicGSM {
		cb(nil, notSupported("scan"))
		return
	}
	if c.scanning {
		cb(nil, data.NewError(data.KindInProgress, "already scanning"))
		return
	}
	c.scanning = true
	c.network.Scan(mm.TimeoutScan, loop.Bind2(c.scope, func(res []map[string]string, err data.Error) {
		c.scanning = false
		if err.IsFailure() {
			cb(nil, err)
			return
		}
		var found []data.Network
		for _, r := range res {
			n := data.Network{
				ID:        r["operator-num"],
				LongName:  r["operator-long"],
				ShortName: r["operator-short"],
			}
			if s, err := strconv.ParseUint(r["status"], 10, 32); err == nil {
				n.Status = mm.NetworkStatusString(uint32(s))
			}
			if t, err := strconv.ParseUint(r["access-tech"], 10, 32); err == nil {
				n.Technology = mm.GsmAccessTechnologyString(uint32(t))
			}
			found = append(found, n)
		}
		cb(found, err)
	}))
}

func (c *classic) GetModemInfo(cb mm.ResultFunc) {
	c.modem.GetInfo(mm.TimeoutDefault, loop.Bind2(c.scope, func(info mm.ModemInfo, err data.Error) {
		if err.IsSuccess() {
			c.info.Manufacturer = info.Manufacturer
			c.info.Model = info.Model
			c.info.Revision = info.Revision
			c.cfg.Delegate.InfoChanged()
		}
		cb(err)
	}))
}

func (c *classic) GetSignalQuality() {
	done := loop.Bind2(c.scope, func(q uint32, err data.Error) {
		if err.IsFailure() {
			c.log.Printf("%v signal quality: %v", c.cfg.Path, err)
			return
		}
		c.applySignalQuality(q)
	})
	if c.tech == ClassicGSM {
		c.network.GetSignalQuality(mm.TimeoutDefault, done)
		return
	}
	c.cdma.GetSignalQuality(mm.TimeoutDefault, done)
}

func (c *classic) SetCarrier(carrier string, cb mm.ResultFunc) {
	c.modem.SetCarrier(carrier, mm.TimeoutSetCarrier, loop.Bind(c.scope, func(err data.Error) {
		cb(err)
	}))
}

// Activate starts over the air activation of a CDMA subscription
func (c *classic) Activate(carrier string, cb mm.ResultFunc) {
	if c.tech != ClassicCDMA {
		cb(notSupported("activation"))
		return
	}
	c.info.ActivationState = data.ActivationStateActivating
	c.cfg.Delegate.InfoChanged()
	c.cdma.Activate(carrier, mm.TimeoutActivate, loop.Bind2(c.scope, func(status uint32, err data.Error) {
		if err.IsSuccess() && status != 0 {
			err = data.NewError(data.KindOperationFailed, "activation failed with status %v", status)
		}
		if err.IsSuccess() {
			c.info.ActivationState = data.ActivationStateActivated
		} else {
			c.info.ActivationState = data.ActivationStateNotActivated
		}
		c.cfg.Delegate.InfoChanged()
		cb(err)
	}))
}

func (c *classic) GetLocation(cb func(string, data.Error)) {
	cb("", notSupported("location"))
}

func (c *classic) OnPropertiesChanged(iface string, changed mm.Props, _ []string) {
	switch iface {
	case mm.ClassicInterfaceModem:
		if v, ok := changed.Bool(mm.ClassicPropEnabled); ok {
			c.enabled = v
		}
		if v, ok := changed.String(mm.ClassicPropDevice); ok {
			c.info.Device = v
		}
		if v, ok := changed.Uint32(mm.ClassicPropIPMethod); ok {
			switch v {
			case mm.ClassicIPMethodPPP:
				c.ipMethod = IPMethodPPP
			case mm.ClassicIPMethodStatic:
				c.ipMethod = IPMethodStatic
			default:
				c.ipMethod = IPMethodDHCP
			}
		}
		if v, ok := changed.String(mm.ClassicPropUnlockRequired); ok {
			c.info.SimLocked = v != ""
			c.cfg.Delegate.InfoChanged()
		}
		if v, ok := changed.String(mm.ClassicPropEquipmentID); ok {
			c.info.EquipmentID = v
		}
		if v, ok := changed.Uint32(mm.ClassicPropState); ok {
			c.cfg.Delegate.ModemStateChanged(classicModemState(v))
		}
	case mm.ClassicInterfaceGsmNetwork:
		if v, ok := changed.Uint32(mm.ClassicPropAccessTech); ok {
			c.accessTech = v
			c.cfg.Delegate.RegistrationChanged()
		}
	case mm.ClassicInterfaceCdma:
		if v, ok := changed.String(mm.ClassicPropMeid); ok {
			c.info.MEID = v
			c.cfg.Delegate.InfoChanged()
		}
	}
}

func (c *classic) Close() {
	c.scope.Close()
	if c.imsiTimer != nil {
		c.imsiTimer.Stop()
	}
	c.modem.Close()
	c.simple.Close()
	c.props.Close()
	if c.card != nil {
		c.card.Close()
	}
	if c.network != nil {
		c.network.Close()
	}
	if c.cdma != nil {
		c.cdma.Close()
	}
}

func (c *classic) getIMEI(done mm.ResultFunc) {
	c.card.GetIMEI(mm.TimeoutDefault, loop.Bind2(c.scope, func(imei string, err data.Error) {
		if err.IsSuccess() {
			c.info.IMEI = imei
		}
		done(err)
	}))
}

func (c *classic) getIMSI(done mm.ResultFunc) {
	c.card.GetIMSI(mm.TimeoutDefault, loop.Bind2(c.scope, func(imsi string, err data.Error) {
		switch {
		case err.IsSuccess():
			c.info.IMSI = imsi
			c.cfg.Delegate.InfoChanged()
			done(err)
		case c.info.SimLocked:
			done(err)
		case c.imsiRetries < imsiRetryLimit:
			c.imsiRetries++
			if c.cfg.Debug {
				c.log.Printf("%v GetIMSI failed, retry %v: %v", c.cfg.Path, c.imsiRetries, err)
			}
			c.imsiTimer = c.cfg.Dispatcher.PostDelayed(imsiRetryDelay, c.scope.Wrap(func() {
				c.imsiTimer = nil
				c.getIMSI(done)
			}))
		default:
			c.log.Printf("%v GetIMSI failed: %v", c.cfg.Path, err)
			done(err)
		}
	}))
}

func (c *classic) getSPN(done mm.ResultFunc) {
	c.card.GetSPN(mm.TimeoutDefault, loop.Bind2(c.scope, func(spn string, err data.Error) {
		if err.IsSuccess() {
			c.info.SPN = spn
		}
		done(err)
	}))
}

func (c *classic) getMSISDN(done mm.ResultFunc) {
	c.card.GetMSISDN(mm.TimeoutDefault, loop.Bind2(c.scope, func(mdn string, err data.Error) {
		if err.IsSuccess() {
			c.info.MDN = mdn
		}
		done(err)
	}))
}

func (c *classic) getProperties(done mm.ResultFunc) {
	c.props.GetAll(mm.ClassicInterfaceGsmNetwork, mm.TimeoutDefault, loop.Bind2(c.scope, func(p mm.Props, err data.Error) {
		if err.IsSuccess() {
			c.OnPropertiesChanged(mm.ClassicInterfaceGsmNetwork, p, nil)
		}
		done(err)
	}))
}

func (c *classic) getModemStatus(done mm.ResultFunc) {
	c.simple.GetStatus(mm.TimeoutDefault, loop.Bind2(c.scope, func(p mm.Props, err data.Error) {
		if err.IsSuccess() {
			if v, ok := p.String("carrier"); ok {
				c.info.Carrier = v
			}
			if v, ok := p.String("meid"); ok {
				c.info.MEID = v
			}
			if v, ok := p.String("esn"); ok {
				c.info.ESN = v
			}
			if v, ok := p.String("mdn"); ok {
				c.info.MDN = v
			}
			c.cfg.Delegate.InfoChanged()
		}
		done(err)
	}))
}
