// Package nats exposes cellular devices over NATS. Device snapshots are
// published as JSON on cellular.<device>.state whenever they change, and
// devices are controlled with requests on cellular.<device>.req.<op>.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// RequestTimeout bounds how long a request waits for its device
var RequestTimeout = 3 * time.Minute

// request ops
const (
	OpState      = "state"
	OpEnable     = "enable"
	OpDisable    = "disable"
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpScan       = "scan"
	OpRegister   = "register"
	OpActivate   = "activate"
	OpRoaming    = "roaming"
	OpAPN        = "apn"
	OpPPP        = "ppp"
	OpReset      = "reset"
)

// Device is the part of a cellular device the API drives
type Device interface {
	Snapshot() data.DeviceSnapshot
	SetEnabled(enable bool, cb mm.ResultFunc)
	Connect(cb mm.ResultFunc)
	Disconnect(cb mm.ResultFunc)
	Reset(cb mm.ResultFunc)
	Scan(cb func([]data.Network, data.Error))
	RegisterOnNetwork(networkID string, cb mm.ResultFunc)
	Activate(carrier string, cb mm.ResultFunc)
	SetAllowRoaming(allow bool)
	SetUserAPN(apn *data.APN) data.Error
	SetPPPCredentials(user, password string) data.Error
}

// Target is the set of devices served. It is only used on the loop.
type Target interface {
	Devices() []data.DeviceSnapshot
	// Device returns nil if id names no device
	Device(id string) Device
}

// Request is the JSON body of a request. Fields are used by the ops that
// need them.
type Request struct {
	AllowRoaming *bool     `json:"allowRoaming,omitempty"`
	APN          *data.APN `json:"apn,omitempty"`
	NetworkID    string    `json:"networkId,omitempty"`
	Carrier      string    `json:"carrier,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"password,omitempty"`
}

// Response is the JSON reply to a request. Error is empty on success.
type Response struct {
	Error    string                `json:"error,omitempty"`
	Kind     string                `json:"kind,omitempty"`
	Device   *data.DeviceSnapshot  `json:"device,omitempty"`
	Devices  []data.DeviceSnapshot `json:"devices,omitempty"`
	Networks []data.Network        `json:"networks,omitempty"`
}

// API serves a Target over a NATS connection
type API struct {
	log    *log.Logger
	nc     *nats.Conn
	disp   loop.Dispatcher
	target Target
	subs   []*nats.Subscription
}

// NewAPI returns an API. target is read on disp.
func NewAPI(nc *nats.Conn, disp loop.Dispatcher, target Target) *API {
	return &API{
		log:    log.New(os.Stderr, "nats: ", log.LstdFlags|log.Lmsgprefix),
		nc:     nc,
		disp:   disp,
		target: target,
	}
}

// Start subscribes to the request subjects
func (a *API) Start() error {
	sub, err := a.nc.Subscribe(SubjectAllRequests(), a.handleRequest)
	if err != nil {
		return fmt.Errorf("error subscribing to requests: %w", err)
	}
	a.subs = append(a.subs, sub)

	sub, err = a.nc.Subscribe(SubjectDevices, a.handleDevices)
	if err != nil {
		return fmt.Errorf("error subscribing to %v: %w", SubjectDevices, err)
	}
	a.subs = append(a.subs, sub)
	return nil
}

// Stop drops the subscriptions
func (a *API) Stop() {
	for _, s := range a.subs {
		if err := s.Unsubscribe(); err != nil {
			a.log.Println("error unsubscribing: ", err)
		}
	}
	a.subs = nil
}

// Publish sends a device snapshot. It does not block.
func (a *API) Publish(s data.DeviceSnapshot) {
	if s.Interface == "" {
		return
	}
	buf, err := json.Marshal(s)
	if err != nil {
		a.log.Println("error encoding snapshot: ", err)
		return
	}
	if err := a.nc.Publish(SubjectState(s.Interface), buf); err != nil {
		a.log.Println("error publishing state: ", err)
	}
}

// PublishAll sends a snapshot of every device. It must be called on the
// loop.
func (a *API) PublishAll() {
	for _, s := range a.target.Devices() {
		a.Publish(s)
	}
}

func (a *API) respond(msg *nats.Msg, r Response) {
	if msg.Reply == "" {
		return
	}
	buf, err := json.Marshal(r)
	if err != nil {
		a.log.Println("error encoding response: ", err)
		return
	}
	if err := msg.Respond(buf); err != nil {
		a.log.Println("error responding: ", err)
	}
}

func errorResponse(err data.Error) Response {
	return Response{Error: err.String(), Kind: err.Kind.String()}
}

// run executes fn on the loop and waits for it to call done
func (a *API) run(fn func(done func(Response))) Response {
	ch := make(chan Response, 1)
	a.disp.Post(func() {
		fn(func(r Response) {
			select {
			case ch <- r:
			default:
			}
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return errorResponse(data.NewError(data.KindOperationTimeout, "request timed out"))
	}
}

func (a *API) handleDevices(msg *nats.Msg) {
	a.respond(msg, a.run(func(done func(Response)) {
		done(Response{Devices: a.target.Devices()})
	}))
}

func (a *API) handleRequest(msg *nats.Msg) {
	id, op, err := decodeRequestSubject(msg.Subject)
	if err != nil {
		a.respond(msg, Response{Error: err.Error()})
		return
	}

	var req Request
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			a.respond(msg, Response{Error: "error decoding request: " + err.Error()})
			return
		}
	}

	a.respond(msg, a.run(func(done func(Response)) {
		d := a.target.Device(id)
		if d == nil {
			done(Response{Error: "no device " + id})
			return
		}
		a.do(d, op, req, done)
	}))
}

// do runs op on d. It is called on the loop.
func (a *API) do(d Device, op string, req Request, done func(Response)) {
	result := func(err data.Error) {
		if err.IsFailure() {
			done(errorResponse(err))
			return
		}
		s := d.Snapshot()
		done(Response{Device: &s})
	}

	switch op {
	case OpState:
		result(data.Error{})
	case OpEnable:
		d.SetEnabled(true, result)
	case OpDisable:
		d.SetEnabled(false, result)
	case OpConnect:
		d.Connect(result)
	case OpDisconnect:
		d.Disconnect(result)
	case OpReset:
		d.Reset(result)
	case OpScan:
		d.Scan(func(networks []data.Network, err data.Error) {
			if err.IsFailure() {
				done(errorResponse(err))
				return
			}
			done(Response{Networks: networks})
		})
	case OpRegister:
		d.RegisterOnNetwork(req.NetworkID, result)
	case OpActivate:
		d.Activate(req.Carrier, result)
	case OpRoaming:
		if req.AllowRoaming == nil {
			done(Response{Error: "allowRoaming is required"})
			return
		}
		d.SetAllowRoaming(*req.AllowRoaming)
		result(data.Error{})
	case OpAPN:
		result(d.SetUserAPN(req.APN))
	case OpPPP:
		result(d.SetPPPCredentials(req.Username, req.Password))
	default:
		done(Response{Error: "unknown op " + op})
	}
}

// ErrNoReply is returned by Call for an empty reply
var ErrNoReply = errors.New("empty reply")

// Call sends a request to a device and decodes the reply
func Call(nc *nats.Conn, device, op string, req Request, timeout time.Duration) (Response, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	msg, err := nc.Request(SubjectRequest(device, op), buf, timeout)
	if err != nil {
		return Response{}, err
	}
	if len(msg.Data) == 0 {
		return Response{}, ErrNoReply
	}
	var ret Response
	if err := json.Unmarshal(msg.Data, &ret); err != nil {
		return Response{}, fmt.Errorf("error decoding response: %w", err)
	}
	if ret.Error != "" {
		return ret, errors.New(ret.Error)
	}
	return ret, nil
}

// ListDevices requests snapshots of every device
func ListDevices(nc *nats.Conn, timeout time.Duration) ([]data.DeviceSnapshot, error) {
	msg, err := nc.Request(SubjectDevices, nil, timeout)
	if err != nil {
		return nil, err
	}
	var ret Response
	if err := json.Unmarshal(msg.Data, &ret); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return ret.Devices, nil
}
