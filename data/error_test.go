package data

import (
	"errors"
	"testing"
)

func TestErrorZeroValueIsSuccess(t *testing.T) {
	var e Error
	if !e.IsSuccess() {
		t.Fatal("zero Error should be success")
	}
	if e.IsFailure() {
		t.Error("zero Error should not be a failure")
	}
	if e.Err() != nil {
		t.Error("Err() on success should be nil, got: ", e.Err())
	}
}

func TestErrorInitiatedIsNotFailure(t *testing.T) {
	e := NewError(KindOperationInitiated, "later")
	if e.IsFailure() {
		t.Error("initiated should not count as failure")
	}
	if !e.IsOngoing() {
		t.Error("initiated should be ongoing")
	}
}

func TestErrorString(t *testing.T) {
	e := NewError(KindInvalidApn, "apn %v rejected", "foo")
	exp := "InvalidApn: apn foo rejected"
	if e.String() != exp {
		t.Errorf("got %q, exp %q", e.String(), exp)
	}
	if e.Err() == nil || e.Err().Error() != exp {
		t.Error("Err() did not carry message: ", e.Err())
	}
}

func TestFromErr(t *testing.T) {
	if !FromErr(nil).IsSuccess() {
		t.Error("nil error should map to success")
	}
	e := FromErr(errors.New("boom"))
	if e.Kind != KindOperationFailed || e.Message != "boom" {
		t.Error("unexpected result: ", e)
	}
}

func TestFailureFromError(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		exp  Failure
	}{
		{KindSuccess, FailureNone},
		{KindInvalidApn, FailureInvalidAPN},
		{KindNotOnHomeNetwork, FailureNotOnHomeNetwork},
		{KindOperationTimeout, FailureTimeout},
		{KindWrongState, FailureConnect},
	}

	for _, test := range tests {
		f := FailureFromError(Error{Kind: test.kind})
		if f != test.exp {
			t.Errorf("%v: got %v, exp %v", test.kind, f, test.exp)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		id  Identity
		exp string
	}{
		{Identity{IMSI: "310", MEID: "A1", ICCID: "89"}, "imsi:310"},
		{Identity{MEID: "A1", ICCID: "89"}, "meid:A1"},
		{Identity{ICCID: "89"}, "iccid:89"},
		{Identity{}, ""},
	}

	for _, test := range tests {
		if k := test.id.Key(); k != test.exp {
			t.Errorf("%+v: got %q, exp %q", test.id, k, test.exp)
		}
	}
}

func TestDeviceStateAtLeastEnabled(t *testing.T) {
	for _, s := range []DeviceState{DeviceDisabled, DeviceEnabling, DeviceDisabling} {
		if s.AtLeastEnabled() {
			t.Errorf("%v should not be at least enabled", s)
		}
	}
	for _, s := range []DeviceState{DeviceEnabled, DeviceRegistered, DeviceConnected, DeviceLinked} {
		if !s.AtLeastEnabled() {
			t.Errorf("%v should be at least enabled", s)
		}
	}
}
