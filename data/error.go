package data

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the outcome of an operation
type ErrorKind int

// define valid error kinds
const (
	KindSuccess ErrorKind = iota
	KindOperationFailed
	KindOperationTimeout
	KindOperationInitiated
	KindInProgress
	KindInvalidArguments
	KindNotSupported
	KindNotRegistered
	KindNotOnHomeNetwork
	KindAlreadyConnected
	KindNotConnected
	KindWrongState
	KindInvalidApn
	KindPermissionDenied
	KindNotFound
	KindPinRequired
)

func (k ErrorKind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindOperationFailed:
		return "OperationFailed"
	case KindOperationTimeout:
		return "OperationTimeout"
	case KindOperationInitiated:
		return "OperationInitiated"
	case KindInProgress:
		return "InProgress"
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindNotSupported:
		return "NotSupported"
	case KindNotRegistered:
		return "NotRegistered"
	case KindNotOnHomeNetwork:
		return "NotOnHomeNetwork"
	case KindAlreadyConnected:
		return "AlreadyConnected"
	case KindNotConnected:
		return "NotConnected"
	case KindWrongState:
		return "WrongState"
	case KindInvalidApn:
		return "InvalidApn"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindNotFound:
		return "NotFound"
	case KindPinRequired:
		return "PinRequired"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the tagged result of a fallible operation. The zero value means
// success.
type Error struct {
	Kind    ErrorKind
	Message string
}

// NewError builds an Error of the given kind with a formatted message
func NewError(kind ErrorKind, format string, args ...any) Error {
	return Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsSuccess returns true if the operation succeeded
func (e Error) IsSuccess() bool {
	return e.Kind == KindSuccess
}

// IsFailure returns true if the operation failed
func (e Error) IsFailure() bool {
	return e.Kind != KindSuccess && e.Kind != KindOperationInitiated
}

// IsOngoing returns true if the operation will complete later
func (e Error) IsOngoing() bool {
	return e.Kind == KindOperationInitiated || e.Kind == KindInProgress
}

func (e Error) String() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Err converts the result into a Go error, nil on success
func (e Error) Err() error {
	if e.IsSuccess() {
		return nil
	}
	return errors.New(e.String())
}

// FromErr wraps a Go error as an OperationFailed result. A nil error is success.
func FromErr(err error) Error {
	if err == nil {
		return Error{}
	}
	return Error{Kind: KindOperationFailed, Message: err.Error()}
}
