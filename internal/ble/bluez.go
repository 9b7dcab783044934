package ble

import (
	"fmt"
	"path"

	"github.com/godbus/dbus/v5"
)

// BlueZ bus name, well-known paths and interfaces.
const (
	bluezBusName = "org.bluez"
	bluezRoot    = dbus.ObjectPath("/org/bluez")

	objectManagerIface      = "org.freedesktop.DBus.ObjectManager"
	propertiesIface         = "org.freedesktop.DBus.Properties"
	adapterIface            = "org.bluez.Adapter1"
	gattManagerIface        = "org.bluez.GattManager1"
	gattServiceIface        = "org.bluez.GattService1"
	gattCharacteristicIface = "org.bluez.GattCharacteristic1"
	advertisingManagerIface = "org.bluez.LEAdvertisingManager1"
	advertisementIface      = "org.bluez.LEAdvertisement1"
	agentManagerIface       = "org.bluez.AgentManager1"
	agentIface              = "org.bluez.Agent1"
)

// AgentCapability is the IO capability the pairing agent registers with.
const AgentCapability = "KeyboardDisplay"

// UUIDs are the GATT service and characteristic UUIDs.
type UUIDs struct {
	Service string
	Auth    string
	Command string
	Inform  string
}

// Logger is the logging interface used by the ble package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// managedObjects is the GetManagedObjects reply shape.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// selectAdapter picks the adapter to use from a BlueZ object tree.
// An empty name selects the first adapter offering both LE advertising
// and GATT registration, in path order.
func selectAdapter(objects managedObjects, name string) (dbus.ObjectPath, error) {
	var best dbus.ObjectPath
	for p, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; !ok {
			continue
		}
		if _, ok := ifaces[advertisingManagerIface]; !ok {
			continue
		}
		if _, ok := ifaces[gattManagerIface]; !ok {
			continue
		}
		if name != "" {
			if path.Base(string(p)) == name {
				return p, nil
			}
			continue
		}
		if best == "" || p < best {
			best = p
		}
	}

	if best == "" {
		if name != "" {
			return "", fmt.Errorf("%w: %s", ErrNoAdapter, name)
		}
		return "", ErrNoAdapter
	}
	return best, nil
}

// findAdapter queries BlueZ for its objects and selects an adapter.
func findAdapter(conn *dbus.Conn, name string) (dbus.ObjectPath, error) {
	var objects managedObjects
	err := conn.Object(bluezBusName, "/").Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		return "", fmt.Errorf("listing bluez objects: %w", err)
	}
	return selectAdapter(objects, name)
}

// setAdapterProp sets one org.bluez.Adapter1 property.
func setAdapterProp(conn *dbus.Conn, adapter dbus.ObjectPath, name string, value any) error {
	obj := conn.Object(bluezBusName, adapter)
	if err := obj.Call(propertiesIface+".Set", 0, adapterIface, name, dbus.MakeVariant(value)).Err; err != nil {
		return fmt.Errorf("setting adapter %s: %w", name, err)
	}
	return nil
}

// getAdapterBool reads one boolean org.bluez.Adapter1 property.
func getAdapterBool(conn *dbus.Conn, adapter dbus.ObjectPath, name string) (bool, error) {
	var v dbus.Variant
	obj := conn.Object(bluezBusName, adapter)
	if err := obj.Call(propertiesIface+".Get", 0, adapterIface, name).Store(&v); err != nil {
		return false, fmt.Errorf("reading adapter %s: %w", name, err)
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("adapter property %s is not bool", name)
	}
	return b, nil
}

// adapterSettings are applied, in order, before registration.
var adapterSettings = []struct {
	name  string
	value any
}{
	{"Powered", true},
	{"DiscoverableTimeout", uint32(0)},
	{"Discoverable", true},
	{"Pairable", true},
}

// prepareAdapter powers the adapter on and makes it discoverable and
// pairable with no timeout.
func prepareAdapter(conn *dbus.Conn, adapter dbus.ObjectPath) error {
	for _, s := range adapterSettings {
		if err := setAdapterProp(conn, adapter, s.name, s.value); err != nil {
			return err
		}
	}
	return nil
}
