package ppp

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/simpleiot/cellmgr/loop"
)

// NotifierInterface is the D-Bus interface the pppd plugin calls
const NotifierInterface = "org.simpleiot.Cellular.PPP"

const notifierRoot = "/org/simpleiot/Cellular/PPP/"

// environment passed to pppd so the plugin can find its session
const (
	EnvService = "SIOT_PPP_SERVICE"
	EnvPath    = "SIOT_PPP_PATH"
)

var loginTimeout = 5 * time.Second

// Options configures how pppd is run
type Options struct {
	// Program is the pppd binary
	Program string
	// Plugin is the notifier plugin loaded into pppd. Without it no
	// notifications arrive and only the exit status is seen.
	Plugin    string
	ExtraArgs []string
	Debug     bool
}

// Bridge starts PPP sessions and routes their notifications to handlers
// on the event loop
type Bridge struct {
	log    *log.Logger
	disp   loop.Dispatcher
	runner Runner
	conn   *dbus.Conn
	opts   Options
	nextID int
}

// NewBridge returns a bridge. conn may be nil, in which case no notifier
// is exported.
func NewBridge(disp loop.Dispatcher, runner Runner, conn *dbus.Conn, opts Options) *Bridge {
	if opts.Program == "" {
		opts.Program = "/usr/sbin/pppd"
	}
	return &Bridge{
		log:    log.New(os.Stderr, "ppp: ", log.LstdFlags|log.Lmsgprefix),
		disp:   disp,
		runner: runner,
		conn:   conn,
		opts:   opts,
	}
}

// Args returns the pppd command line for device
func (b *Bridge) Args(device string) []string {
	args := []string{
		"nodetach",
		"nodefaultroute",
		"usepeerdns",
		"maxfail", "1",
	}
	if b.opts.Plugin != "" {
		args = append(args, "plugin", b.opts.Plugin)
	}
	if b.opts.Debug {
		args = append(args, "debug")
	}
	args = append(args, b.opts.ExtraArgs...)
	return append(args, device)
}

// Start runs pppd on the serial device and returns the session. Must be
// called on the loop.
func (b *Bridge) Start(device string, h Handler) (*Session, error) {
	if device == "" {
		return nil, errors.New("no device for PPP")
	}

	b.nextID++
	s := &Session{
		bridge:  b,
		handler: h,
		device:  device,
		path:    dbus.ObjectPath(fmt.Sprintf("%v%v", notifierRoot, b.nextID)),
	}

	var env []string
	if b.conn != nil {
		n := &notifier{disp: b.disp, session: s}
		if err := b.conn.Export(n, s.path, NotifierInterface); err != nil {
			return nil, fmt.Errorf("error exporting PPP notifier: %w", err)
		}
		names := b.conn.Names()
		if len(names) > 0 {
			env = append(env, EnvService+"="+names[0])
		}
		env = append(env, EnvPath+"="+string(s.path))
	}

	proc, err := b.runner.Start(b.opts.Program, b.Args(device), env, func(code int) {
		b.disp.Post(func() { s.exit(code) })
	})
	if err != nil {
		b.unexport(s.path)
		return nil, err
	}
	s.proc = proc

	b.log.Printf("started pppd on %v, pid %v", device, proc.Pid())
	return s, nil
}

func (b *Bridge) unexport(path dbus.ObjectPath) {
	if b.conn == nil {
		return
	}
	if err := b.conn.Export(nil, path, NotifierInterface); err != nil {
		b.log.Println("error removing PPP notifier: ", err)
	}
}

// Session is one pppd process. All methods run on the loop.
type Session struct {
	bridge         *Bridge
	handler        Handler
	device         string
	path           dbus.ObjectPath
	proc           Process
	iface          string
	authenticating bool
	stopped        bool
	exited         bool
}

// Pid returns the pppd process id
func (s *Session) Pid() int {
	return s.proc.Pid()
}

// Interface returns the ppp interface name once pppd has reported it
func (s *Session) Interface() string {
	return s.iface
}

// Authenticating is true between the authenticating and authenticated
// notifications
func (s *Session) Authenticating() bool {
	return s.authenticating
}

// Notify handles one plugin notification
func (s *Session) Notify(reason string, params map[string]string) {
	if s.exited || s.stopped {
		return
	}
	if s.bridge.opts.Debug {
		s.bridge.log.Printf("notify %v: %v", reason, params)
	}

	switch reason {
	case ReasonAuthenticating:
		s.authenticating = true
	case ReasonAuthenticated:
		s.authenticating = false
	case ReasonConnect:
		iface := params[KeyInterface]
		if iface == "" {
			s.bridge.log.Println("connect notification without interface")
			return
		}
		s.iface = iface
		s.handler.PPPConnected(iface, params)
	case ReasonDisconnect:
		s.handler.PPPDisconnected()
	default:
		s.bridge.log.Println("unknown notification: ", reason)
	}
}

// Stop terminates pppd. The handler still sees PPPDied, with no failure.
func (s *Session) Stop() {
	if s.stopped || s.exited {
		return
	}
	s.stopped = true
	s.proc.Stop()
}

func (s *Session) login() (string, string) {
	if s.exited || s.stopped {
		return "", ""
	}
	return s.handler.PPPLogin()
}

func (s *Session) exit(code int) {
	if s.exited {
		return
	}
	s.exited = true
	s.bridge.unexport(s.path)

	failure := Classify(code, s.authenticating, s.stopped)
	s.bridge.log.Printf("pppd on %v exited with %v, failure: %v", s.device, code, failure)
	s.handler.PPPDied(failure)
}

// notifier is exported on the bus. godbus calls it from its own goroutine.
type notifier struct {
	disp    loop.Dispatcher
	session *Session
}

func (n *notifier) Notify(reason string, params map[string]string) *dbus.Error {
	n.disp.Post(func() { n.session.Notify(reason, params) })
	return nil
}

type credentials struct {
	user, password string
}

func (n *notifier) GetLogin() (string, string, *dbus.Error) {
	ch := make(chan credentials, 1)
	n.disp.Post(func() {
		u, p := n.session.login()
		ch <- credentials{u, p}
	})

	select {
	case c := <-ch:
		return c.user, c.password, nil
	case <-time.After(loginTimeout):
		return "", "", dbus.MakeFailedError(errors.New("timeout waiting for credentials"))
	}
}
