package ble

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// BlueZ D-Bus error names.
const (
	errNameFailed             = "org.bluez.Error.Failed"
	errNameInvalidValueLength = "org.bluez.Error.InvalidValueLength"
	errNameInvalidOffset      = "org.bluez.Error.InvalidOffset"
	errNameNotSupported       = "org.bluez.Error.NotSupported"
)

// Package errors.
var (
	// ErrNoAdapter is returned when no BlueZ adapter supports LE advertising.
	ErrNoAdapter = errors.New("ble: no LE capable adapter found")

	// ErrNoConnection is returned by Start when the peripheral has no bus.
	ErrNoConnection = errors.New("ble: no D-Bus connection")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("ble: peripheral already started")

	// ErrNoObservables is returned when a peripheral is built without observables.
	ErrNoObservables = errors.New("ble: at least one observable is required")

	// ErrNoCapability is returned for a handler that can neither be read,
	// written nor subscribed to.
	ErrNoCapability = errors.New("ble: observable handler has no capability")

	// ErrDuplicateUUID is returned when two observables share a UUID.
	ErrDuplicateUUID = errors.New("ble: duplicate observable UUID")

	// ErrInvalidOffset is returned for a read offset past the value end.
	ErrInvalidOffset = errors.New("ble: invalid read offset")

	// ErrNotSupported is returned for an operation the observable lacks.
	ErrNotSupported = errors.New("ble: operation not supported")
)

// toDBusError maps err onto a BlueZ error. A nil err maps to nil.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	name := errNameFailed
	switch {
	case errors.Is(err, lid.ErrMalformed), errors.Is(err, lid.ErrInvalidArgument):
		name = errNameInvalidValueLength
	case errors.Is(err, ErrInvalidOffset):
		name = errNameInvalidOffset
	case errors.Is(err, ErrNotSupported):
		name = errNameNotSupported
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}
