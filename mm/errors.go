package mm

import (
	"context"
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/simpleiot/cellmgr/data"
)

// D-Bus error names that map to specific result kinds
const (
	errPrefix1             = "org.freedesktop.ModemManager1.Error."
	errPrefixClassic       = "org.freedesktop.ModemManager.Modem."
	errNoReply             = "org.freedesktop.DBus.Error.NoReply"
	errTimeout             = "org.freedesktop.DBus.Error.Timeout"
	errTimedOut            = "org.freedesktop.DBus.Error.TimedOut"
	errUnknownMethod       = "org.freedesktop.DBus.Error.UnknownMethod"
	errAccessDenied        = "org.freedesktop.DBus.Error.AccessDenied"
	errServiceUnknown      = "org.freedesktop.DBus.Error.ServiceUnknown"
	errUnknownObject       = "org.freedesktop.DBus.Error.UnknownObject"
	errInvalidArgs         = "org.freedesktop.DBus.Error.InvalidArgs"
	errCoreWrongState      = "Core.WrongState"
	errCoreUnsupported     = "Core.Unsupported"
	errCoreInProgress      = "Core.InProgress"
	errCoreInvalidArgs     = "Core.InvalidArgs"
	errCoreUnauthorized    = "Core.Unauthorized"
	errCoreTimeout         = "Core.Timeout"
	errCoreConnected       = "Core.Connected"
	errMissingApn          = "GprsMissingOrUnknownApn"
	errInvalidApn          = "InvalidApn"
	errSimPin              = "SimPin"
	errSimPuk              = "SimPuk"
	errNotRegistered       = "NoNetwork"
	errNetworkNotAllowed   = "NetworkNotAllowed"
)

// ClassifyError maps a D-Bus call failure onto a result kind
func ClassifyError(err error) data.Error {
	if err == nil {
		return data.Error{}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return data.NewError(data.KindOperationTimeout, "%v", err)
	}

	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return classifyName(dbusErr.Name, dbusErr.Error())
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return classifyName(dbusErrPtr.Name, dbusErrPtr.Error())
	}

	return data.NewError(data.KindOperationFailed, "%v", err)
}

func classifyName(name, msg string) data.Error {
	kind := data.KindOperationFailed

	switch name {
	case errNoReply, errTimeout, errTimedOut:
		kind = data.KindOperationTimeout
	case errUnknownMethod:
		kind = data.KindNotSupported
	case errAccessDenied:
		kind = data.KindPermissionDenied
	case errServiceUnknown, errUnknownObject:
		kind = data.KindNotFound
	case errInvalidArgs:
		kind = data.KindInvalidArguments
	default:
		short := strings.TrimPrefix(name, errPrefix1)
		short = strings.TrimPrefix(short, errPrefixClassic)
		switch {
		case strings.HasSuffix(short, errMissingApn),
			strings.HasSuffix(short, errInvalidApn):
			kind = data.KindInvalidApn
		case short == errCoreWrongState:
			kind = data.KindWrongState
		case short == errCoreUnsupported:
			kind = data.KindNotSupported
		case short == errCoreInProgress:
			kind = data.KindInProgress
		case short == errCoreInvalidArgs:
			kind = data.KindInvalidArguments
		case short == errCoreUnauthorized:
			kind = data.KindPermissionDenied
		case short == errCoreTimeout:
			kind = data.KindOperationTimeout
		case short == errCoreConnected:
			kind = data.KindAlreadyConnected
		case strings.HasSuffix(short, errSimPin), strings.HasSuffix(short, errSimPuk):
			kind = data.KindPinRequired
		case strings.HasSuffix(short, errNotRegistered):
			kind = data.KindNotRegistered
		case strings.HasSuffix(short, errNetworkNotAllowed):
			kind = data.KindNotOnHomeNetwork
		}
	}

	return data.Error{Kind: kind, Message: msg}
}
