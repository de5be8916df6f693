package mm

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
)

// DBus implements Factory on top of a godbus connection. Run must be
// running for signals to be delivered.
type DBus struct {
	log    *log.Logger
	conn   *dbus.Conn
	disp   loop.Dispatcher
	debug  bool
	lock   sync.Mutex
	nextID int
	subs   map[int]*subscription
	sigCh  chan *dbus.Signal
	stopCh chan struct{}
}

type subscription struct {
	opts []dbus.MatchOption
	path dbus.ObjectPath
	name string
	arg0 string
	fn   func(*dbus.Signal)
}

func (s *subscription) matches(sig *dbus.Signal) bool {
	if s.name != sig.Name {
		return false
	}
	if s.path != "" && s.path != sig.Path {
		return false
	}
	if s.arg0 != "" {
		if len(sig.Body) < 1 {
			return false
		}
		a, ok := sig.Body[0].(string)
		if !ok || a != s.arg0 {
			return false
		}
	}
	return true
}

// NewDBus returns a proxy factory using conn. Completions and signals are
// posted to disp.
func NewDBus(conn *dbus.Conn, disp loop.Dispatcher, debug bool) *DBus {
	return &DBus{
		log:    log.New(os.Stderr, "mm: ", log.LstdFlags|log.Lmsgprefix),
		conn:   conn,
		disp:   disp,
		debug:  debug,
		subs:   make(map[int]*subscription),
		sigCh:  make(chan *dbus.Signal, 32),
		stopCh: make(chan struct{}),
	}
}

// Run routes bus signals to subscribers until Stop is called
func (d *DBus) Run() error {
	d.conn.Signal(d.sigCh)
	defer d.conn.RemoveSignal(d.sigCh)

	for {
		select {
		case <-d.stopCh:
			return nil
		case sig, ok := <-d.sigCh:
			if !ok {
				return errors.New("D-Bus signal channel closed")
			}
			d.route(sig)
		}
	}
}

// Stop stops signal routing
func (d *DBus) Stop(_ error) {
	close(d.stopCh)
}

func (d *DBus) route(sig *dbus.Signal) {
	d.lock.Lock()
	var ids []int
	for id, s := range d.subs {
		if s.matches(sig) {
			ids = append(ids, id)
		}
	}
	d.lock.Unlock()

	for _, id := range ids {
		id := id
		d.disp.Post(func() {
			d.lock.Lock()
			s, ok := d.subs[id]
			d.lock.Unlock()
			if ok {
				s.fn(sig)
			}
		})
	}
}

func (d *DBus) subscribe(sender string, path dbus.ObjectPath, iface, member, arg0 string,
	fn func(*dbus.Signal)) int {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if sender != "" {
		opts = append(opts, dbus.WithMatchSender(sender))
	}
	if path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(path))
	}
	if arg0 != "" {
		opts = append(opts, dbus.WithMatchArg(0, arg0))
	}

	d.lock.Lock()
	d.nextID++
	id := d.nextID
	d.subs[id] = &subscription{
		opts: opts,
		path: path,
		name: iface + "." + member,
		arg0: arg0,
		fn:   fn,
	}
	d.lock.Unlock()

	go func() {
		if err := d.conn.AddMatchSignal(opts...); err != nil {
			d.log.Printf("error adding match for %v.%v: %v", iface, member, err)
		}
	}()

	return id
}

func (d *DBus) unsubscribe(ids ...int) {
	for _, id := range ids {
		d.lock.Lock()
		s, ok := d.subs[id]
		delete(d.subs, id)
		d.lock.Unlock()
		if !ok {
			continue
		}
		go func() {
			if err := d.conn.RemoveMatchSignal(s.opts...); err != nil && d.debug {
				d.log.Printf("error removing match %v: %v", s.name, err)
			}
		}()
	}
}

// call issues method on the object without blocking. done runs on the loop.
func (d *DBus) call(service string, path dbus.ObjectPath, method string, timeout time.Duration,
	done func(*dbus.Call), args ...interface{}) {
	if d.debug {
		d.log.Printf("call %v %v", path, method)
	}
	obj := d.conn.Object(service, path)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		c := obj.CallWithContext(ctx, method, 0, args...)
		d.disp.Post(func() { done(c) })
	}()
}

// callResult is call for methods without a return value
func (d *DBus) callResult(service string, path dbus.ObjectPath, method string, timeout time.Duration,
	cb ResultFunc, args ...interface{}) {
	cb = WithDeadlineResult(d.disp, timeout, method, cb)
	d.call(service, path, method, timeout, func(c *dbus.Call) {
		cb(ClassifyError(c.Err))
	}, args...)
}

// callString is call for methods returning a single string
func (d *DBus) callString(service string, path dbus.ObjectPath, method string, timeout time.Duration,
	cb func(string, data.Error), args ...interface{}) {
	cb = WithDeadline(d.disp, timeout, method, cb)
	d.call(service, path, method, timeout, func(c *dbus.Call) {
		var s string
		if c.Err == nil {
			if err := c.Store(&s); err != nil {
				cb("", ClassifyError(err))
				return
			}
		}
		cb(s, ClassifyError(c.Err))
	}, args...)
}

// callUint32 is call for methods returning a single uint32
func (d *DBus) callUint32(service string, path dbus.ObjectPath, method string, timeout time.Duration,
	cb func(uint32, data.Error), args ...interface{}) {
	cb = WithDeadline(d.disp, timeout, method, cb)
	d.call(service, path, method, timeout, func(c *dbus.Call) {
		var v uint32
		if c.Err == nil {
			if err := c.Store(&v); err != nil {
				cb(0, ClassifyError(err))
				return
			}
		}
		cb(v, ClassifyError(c.Err))
	}, args...)
}

// Bus returns a name owner watcher
func (d *DBus) Bus() Bus {
	return &dbusBus{d: d}
}

type dbusBus struct {
	d *DBus
}

func (b *dbusBus) WatchNameOwner(name string, fn func(owner string)) func() {
	closed := false
	id := b.d.subscribe(DBusService, "/org/freedesktop/DBus", DBusService, "NameOwnerChanged", name,
		func(sig *dbus.Signal) {
			if closed || len(sig.Body) < 3 {
				return
			}
			owner, _ := sig.Body[2].(string)
			fn(owner)
		})

	b.d.callString(DBusService, "/org/freedesktop/DBus", DBusService+".GetNameOwner", TimeoutDefault,
		func(owner string, err data.Error) {
			if closed {
				return
			}
			if err.IsFailure() {
				// name has no owner yet
				owner = ""
			}
			fn(owner)
		}, name)

	return func() {
		closed = true
		b.d.unsubscribe(id)
	}
}

// plain converts godbus values into plain Go values
func plain(v interface{}) interface{} {
	switch x := v.(type) {
	case dbus.Variant:
		return plain(x.Value())
	case dbus.ObjectPath:
		return string(x)
	case []dbus.ObjectPath:
		ret := make([]string, len(x))
		for i, p := range x {
			ret[i] = string(p)
		}
		return ret
	case map[string]dbus.Variant:
		return toProps(x)
	case []map[string]dbus.Variant:
		ret := make([]Props, len(x))
		for i, m := range x {
			ret[i] = toProps(m)
		}
		return ret
	case []interface{}:
		ret := make([]interface{}, len(x))
		for i, e := range x {
			ret[i] = plain(e)
		}
		return ret
	case [][]interface{}:
		ret := make([]interface{}, len(x))
		for i, e := range x {
			ret[i] = plain(e)
		}
		return ret
	}
	return v
}

func toProps(m map[string]dbus.Variant) Props {
	ret := make(Props, len(m))
	for k, v := range m {
		ret[k] = plain(v)
	}
	return ret
}

func toInterfaceProps(m map[string]map[string]dbus.Variant) InterfaceProps {
	ret := make(InterfaceProps, len(m))
	for iface, props := range m {
		ret[iface] = toProps(props)
	}
	return ret
}

func fromProps(p Props) map[string]dbus.Variant {
	ret := make(map[string]dbus.Variant, len(p))
	for k, v := range p {
		ret[k] = dbus.MakeVariant(v)
	}
	return ret
}
