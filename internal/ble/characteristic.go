package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// Characteristic is the D-Bus object behind one Observable.
//
// Its exported methods with a *dbus.Error result form the
// org.bluez.GattCharacteristic1 interface.
type Characteristic struct {
	path    dbus.ObjectPath
	service dbus.ObjectPath
	obs     Observable
	flags   []string
	base    func() context.Context
	logger  Logger

	mu        sync.Mutex
	value     []byte
	notifying bool
	props     *prop.Properties
}

func newCharacteristic(path, service dbus.ObjectPath, obs Observable, base func() context.Context, logger Logger) *Characteristic {
	return &Characteristic{
		path:    path,
		service: service,
		obs:     obs,
		flags:   obs.Flags(),
		base:    base,
		logger:  logger,
		value:   []byte{},
	}
}

// UUID returns the characteristic UUID.
func (c *Characteristic) UUID() string { return c.obs.UUID }

// Path returns the D-Bus object path.
func (c *Characteristic) Path() dbus.ObjectPath { return c.path }

// ReadValue answers a GATT read.
func (c *Characteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	r, ok := c.obs.Handler.(Reader)
	if !ok {
		return nil, toDBusError(fmt.Errorf("%w: read on %s", ErrNotSupported, c.obs.UUID))
	}

	req := parseRequest(options)
	value, err := r.Read(c.base(), req)
	if err != nil {
		c.logger.Warn("ble read failed", "uuid", c.obs.UUID, "device", string(req.Device), "error", err)
		return nil, toDBusError(err)
	}
	if req.Offset > len(value) {
		return nil, toDBusError(fmt.Errorf("%w: %d > %d", ErrInvalidOffset, req.Offset, len(value)))
	}
	return value[req.Offset:], nil
}

// WriteValue handles a GATT write.
func (c *Characteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	w, ok := c.obs.Handler.(Writer)
	if !ok {
		return toDBusError(fmt.Errorf("%w: write on %s", ErrNotSupported, c.obs.UUID))
	}

	req := parseRequest(options)
	if err := w.Write(c.base(), req, value); err != nil {
		c.logger.Warn("ble write failed", "uuid", c.obs.UUID, "device", string(req.Device), "error", err)
		return toDBusError(err)
	}
	return nil
}

// StartNotify subscribes the remote client to notifications.
func (c *Characteristic) StartNotify() *dbus.Error {
	s, ok := c.obs.Handler.(Subscriber)
	if !ok {
		return toDBusError(fmt.Errorf("%w: notify on %s", ErrNotSupported, c.obs.UUID))
	}
	if err := s.StartNotify(); err != nil {
		c.logger.Warn("ble start notify refused", "uuid", c.obs.UUID, "error", err)
		return toDBusError(err)
	}
	c.setNotifying(true)
	return nil
}

// StopNotify unsubscribes the remote client.
func (c *Characteristic) StopNotify() *dbus.Error {
	s, ok := c.obs.Handler.(Subscriber)
	if !ok {
		return toDBusError(fmt.Errorf("%w: notify on %s", ErrNotSupported, c.obs.UUID))
	}
	s.StopNotify()
	c.setNotifying(false)
	return nil
}

// Emit publishes payload as the new characteristic value. Once exported,
// BlueZ relays the resulting PropertiesChanged signal to the subscribed
// client as a GATT notification. It implements notify.Sink.
func (c *Characteristic) Emit(payload []byte) error {
	value := make([]byte, len(payload))
	copy(value, payload)

	c.mu.Lock()
	c.value = value
	props := c.props
	c.mu.Unlock()

	if props != nil {
		props.SetMust(gattCharacteristicIface, "Value", value)
	}
	return nil
}

// Value returns the last emitted value.
func (c *Characteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out
}

// Notifying reports whether a client is subscribed.
func (c *Characteristic) Notifying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

func (c *Characteristic) setNotifying(on bool) {
	c.mu.Lock()
	c.notifying = on
	props := c.props
	c.mu.Unlock()

	if props != nil && c.hasFlag(FlagNotify) {
		props.SetMust(gattCharacteristicIface, "Notifying", on)
	}
}

func (c *Characteristic) hasFlag(flag string) bool {
	for _, f := range c.flags {
		if f == flag {
			return true
		}
	}
	return false
}

// properties returns the GattCharacteristic1 property map.
func (c *Characteristic) properties() map[string]dbus.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()

	props := map[string]dbus.Variant{
		"UUID":    dbus.MakeVariant(c.obs.UUID),
		"Service": dbus.MakeVariant(c.service),
		"Flags":   dbus.MakeVariant(c.flags),
		"Value":   dbus.MakeVariant(c.value),
	}
	if c.hasFlag(FlagNotify) {
		props["Notifying"] = dbus.MakeVariant(c.notifying)
	}
	return props
}

// propMap builds the exported org.freedesktop.DBus.Properties table.
func (c *Characteristic) propMap() prop.Map {
	props := map[string]*prop.Prop{}
	for name, v := range c.properties() {
		emit := prop.EmitConst
		if name == "Value" || name == "Notifying" {
			emit = prop.EmitTrue
		}
		props[name] = &prop.Prop{Value: v.Value(), Emit: emit}
	}
	return prop.Map{gattCharacteristicIface: props}
}

// attach binds the exported properties once the object is on the bus.
func (c *Characteristic) attach(props *prop.Properties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = props
}
