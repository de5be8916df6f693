// Package mmtest provides a scriptable in-memory implementation of the
// ModemManager proxy set for tests.
package mmtest

import (
	"fmt"
	"time"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// Call is one method call issued through a fake proxy
type Call struct {
	Service string
	Path    string
	Method  string
	Args    []interface{}
	Timeout time.Duration

	f        *Factory
	done     bool
	complete func(v interface{}, err data.Error)
}

// Reply completes the call successfully with value v. The completion is
// posted to the dispatcher.
func (c *Call) Reply(v interface{}) {
	c.finish(v, data.Error{})
}

// Fail completes the call with err
func (c *Call) Fail(err data.Error) {
	c.finish(nil, err)
}

// Done returns true once the call has been replied to
func (c *Call) Done() bool {
	return c.done
}

func (c *Call) finish(v interface{}, err data.Error) {
	if c.done {
		panic(fmt.Sprintf("call %v on %v completed twice", c.Method, c.Path))
	}
	c.done = true
	c.f.disp.Post(func() { c.complete(v, err) })
}

// AutoFunc produces the reply to a call
type AutoFunc func(c *Call) (interface{}, data.Error)

// Factory is a fake mm.Factory. It records every call and signal
// subscription; tests reply to calls and emit signals.
type Factory struct {
	disp     loop.Dispatcher
	calls    []*Call
	auto     map[string]AutoFunc
	handlers map[string][]*handler
	owners   map[string]string
}

type handler struct {
	fn interface{}
}

// New returns a fake factory posting to disp
func New(disp loop.Dispatcher) *Factory {
	return &Factory{
		disp:     disp,
		auto:     make(map[string]AutoFunc),
		handlers: make(map[string][]*handler),
		owners:   make(map[string]string),
	}
}

// SetAuto makes calls of method reply automatically with fn
func (f *Factory) SetAuto(method string, fn AutoFunc) {
	if fn == nil {
		delete(f.auto, method)
		return
	}
	f.auto[method] = fn
}

// AutoSucceed makes the listed methods reply with success and a zero value
func (f *Factory) AutoSucceed(methods ...string) {
	for _, m := range methods {
		f.SetAuto(m, func(*Call) (interface{}, data.Error) { return nil, data.Error{} })
	}
}

// Calls returns every issued call of method, in issue order. An empty
// method returns all calls.
func (f *Factory) Calls(method string) []*Call {
	var ret []*Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			ret = append(ret, c)
		}
	}
	return ret
}

// Methods returns the methods of all issued calls, in order
func (f *Factory) Methods() []string {
	ret := make([]string, len(f.calls))
	for i, c := range f.calls {
		ret[i] = c.Method
	}
	return ret
}

// Pending returns the calls of method that have not been replied to
func (f *Factory) Pending(method string) []*Call {
	var ret []*Call
	for _, c := range f.Calls(method) {
		if !c.done {
			ret = append(ret, c)
		}
	}
	return ret
}

// Next returns the oldest pending call of method or nil
func (f *Factory) Next(method string) *Call {
	p := f.Pending(method)
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// Reset forgets recorded calls
func (f *Factory) Reset() {
	f.calls = nil
}

func (f *Factory) issue(service, path, method string, timeout time.Duration, complete func(interface{}, data.Error),
	args ...interface{}) {
	c := &Call{
		Service:  service,
		Path:     path,
		Method:   method,
		Args:     args,
		Timeout:  timeout,
		f:        f,
		complete: complete,
	}
	f.calls = append(f.calls, c)
	if auto, ok := f.auto[method]; ok {
		v, err := auto(c)
		c.finish(v, err)
	}
}

func key(path, signal string) string {
	return path + "|" + signal
}

func (f *Factory) on(path, signal string, fn interface{}) *handler {
	h := &handler{fn: fn}
	k := key(path, signal)
	f.handlers[k] = append(f.handlers[k], h)
	return h
}

func (f *Factory) off(hs []*handler) {
	for k, list := range f.handlers {
		keep := list[:0]
		for _, h := range list {
			drop := false
			for _, o := range hs {
				if h == o {
					drop = true
				}
			}
			if !drop {
				keep = append(keep, h)
			}
		}
		f.handlers[k] = keep
	}
}

// Subscribers returns the number of live subscriptions to signal on path
func (f *Factory) Subscribers(path, signal string) int {
	return len(f.handlers[key(path, signal)])
}

func (f *Factory) emit(path, signal string, call func(fn interface{})) {
	for _, h := range f.handlers[key(path, signal)] {
		h := h
		f.disp.Post(func() {
			// handler may have been dropped before the post runs
			for _, live := range f.handlers[key(path, signal)] {
				if live == h {
					call(h.fn)
					return
				}
			}
		})
	}
}

// SetOwner changes the owner of a bus name and notifies watchers
func (f *Factory) SetOwner(name, owner string) {
	f.owners[name] = owner
	f.emit("", "NameOwnerChanged:"+name, func(fn interface{}) {
		fn.(func(string))(owner)
	})
}

// EmitInterfacesAdded emits ObjectManager.InterfacesAdded
func (f *Factory) EmitInterfacesAdded(path string, ifaces mm.InterfaceProps) {
	f.emit(mm.Path, "InterfacesAdded", func(fn interface{}) {
		fn.(func(string, mm.InterfaceProps))(path, ifaces)
	})
}

// EmitInterfacesRemoved emits ObjectManager.InterfacesRemoved
func (f *Factory) EmitInterfacesRemoved(path string, ifaces ...string) {
	f.emit(mm.Path, "InterfacesRemoved", func(fn interface{}) {
		fn.(func(string, []string))(path, ifaces)
	})
}

// EmitDeviceAdded emits the classic DeviceAdded signal
func (f *Factory) EmitDeviceAdded(path string) {
	f.emit(mm.ClassicPath, "DeviceAdded", func(fn interface{}) {
		fn.(func(string))(path)
	})
}

// EmitDeviceRemoved emits the classic DeviceRemoved signal
func (f *Factory) EmitDeviceRemoved(path string) {
	f.emit(mm.ClassicPath, "DeviceRemoved", func(fn interface{}) {
		fn.(func(string))(path)
	})
}

// EmitPropertiesChanged emits PropertiesChanged on path
func (f *Factory) EmitPropertiesChanged(path, iface string, changed mm.Props) {
	f.emit(path, "PropertiesChanged", func(fn interface{}) {
		fn.(func(string, mm.Props, []string))(iface, changed, nil)
	})
}

// EmitMMPropertiesChanged emits the classic MmPropertiesChanged on path
func (f *Factory) EmitMMPropertiesChanged(path, iface string, changed mm.Props) {
	f.emit(path, "MmPropertiesChanged", func(fn interface{}) {
		fn.(func(string, mm.Props))(iface, changed)
	})
}

// EmitStateChanged emits Modem.StateChanged on a ModemManager1 modem
func (f *Factory) EmitStateChanged(path string, from, to data.ModemState) {
	f.emit(path, "StateChanged", func(fn interface{}) {
		fn.(func(data.ModemState, data.ModemState, uint32))(from, to, 0)
	})
}

// EmitClassicStateChanged emits Modem.StateChanged on a classic modem
func (f *Factory) EmitClassicStateChanged(path string, from, to uint32) {
	f.emit(path, "ClassicStateChanged", func(fn interface{}) {
		fn.(func(uint32, uint32, uint32))(from, to, 0)
	})
}

// EmitRegistrationInfo emits Gsm.Network.RegistrationInfo
func (f *Factory) EmitRegistrationInfo(path string, info mm.RegistrationInfo) {
	f.emit(path, "RegistrationInfo", func(fn interface{}) {
		fn.(func(mm.RegistrationInfo))(info)
	})
}

// EmitSignalQuality emits the classic SignalQuality signal
func (f *Factory) EmitSignalQuality(path string, quality uint32) {
	f.emit(path, "SignalQuality", func(fn interface{}) {
		fn.(func(uint32))(quality)
	})
}

// EmitCdmaRegistration emits Cdma.RegistrationStateChanged
func (f *Factory) EmitCdmaRegistration(path string, cdma1x, evdo uint32) {
	f.emit(path, "RegistrationStateChanged", func(fn interface{}) {
		fn.(func(uint32, uint32))(cdma1x, evdo)
	})
}

var _ mm.Factory = (*Factory)(nil)
