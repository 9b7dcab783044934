package ble

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// GATT characteristic flags.
const (
	FlagRead   = "read"
	FlagWrite  = "write"
	FlagNotify = "notify"
)

// Request carries the BlueZ options of a read or write.
type Request struct {
	Device dbus.ObjectPath
	Offset int
	MTU    int
}

// Reader is implemented by observables that answer reads.
type Reader interface {
	Read(ctx context.Context, req Request) ([]byte, error)
}

// Writer is implemented by observables that accept writes.
type Writer interface {
	Write(ctx context.Context, req Request, value []byte) error
}

// Subscriber is implemented by observables that push notifications.
// StartNotify and StopNotify must be idempotent.
type Subscriber interface {
	StartNotify() error
	StopNotify()
}

// Observable is one exposed attribute: a UUID and a handler implementing
// any combination of Reader, Writer and Subscriber.
type Observable struct {
	UUID    string
	Handler any
}

// Flags derives the GATT flags from the handler's capabilities.
func (o Observable) Flags() []string {
	var flags []string
	if _, ok := o.Handler.(Reader); ok {
		flags = append(flags, FlagRead)
	}
	if _, ok := o.Handler.(Writer); ok {
		flags = append(flags, FlagWrite)
	}
	if _, ok := o.Handler.(Subscriber); ok {
		flags = append(flags, FlagNotify)
	}
	return flags
}

// validate checks the UUID and that the handler has a capability.
func (o Observable) validate() error {
	if strings.TrimSpace(o.UUID) == "" {
		return fmt.Errorf("ble: observable UUID is required")
	}
	if len(o.Flags()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCapability, o.UUID)
	}
	return nil
}

// parseRequest extracts the options BlueZ passes to ReadValue and WriteValue.
// Unknown or mistyped options are ignored.
func parseRequest(options map[string]dbus.Variant) Request {
	var req Request
	if v, ok := options["device"]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			req.Device = p
		}
	}
	if v, ok := options["offset"]; ok {
		if n, ok := v.Value().(uint16); ok {
			req.Offset = int(n)
		}
	}
	if v, ok := options["mtu"]; ok {
		if n, ok := v.Value().(uint16); ok {
			req.MTU = int(n)
		}
	}
	return req
}
