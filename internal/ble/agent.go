package ble

import (
	"github.com/godbus/dbus/v5"
)

// agent is the org.bluez.Agent1 pairing agent. It accepts every request:
// the device has no display or keypad, and access control happens at the
// application layer through the auth characteristic.
type agent struct {
	path   dbus.ObjectPath
	logger Logger
}

// Release is called when BlueZ unregisters the agent.
func (a *agent) Release() *dbus.Error {
	a.logger.Info("pairing agent released")
	return nil
}

// RequestPinCode answers legacy pairing with an empty PIN.
func (a *agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	a.logger.Info("pairing: pin code requested", "device", string(device))
	return "", nil
}

// DisplayPinCode logs the PIN a remote device should enter.
func (a *agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	a.logger.Info("pairing: display pin code", "device", string(device), "pincode", pincode)
	return nil
}

// RequestPasskey answers passkey entry with zero.
func (a *agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	a.logger.Info("pairing: passkey requested", "device", string(device))
	return 0, nil
}

// DisplayPasskey logs the passkey a remote device should enter.
func (a *agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	a.logger.Info("pairing: display passkey", "device", string(device), "passkey", passkey, "entered", entered)
	return nil
}

// RequestConfirmation confirms numeric comparison.
func (a *agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.logger.Info("pairing: confirmation", "device", string(device), "passkey", passkey)
	return nil
}

// RequestAuthorization authorises just-works pairing.
func (a *agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.logger.Info("pairing: authorization", "device", string(device))
	return nil
}

// AuthorizeService authorises a service connection.
func (a *agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	a.logger.Debug("pairing: authorize service", "device", string(device), "uuid", uuid)
	return nil
}

// Cancel is called when a pairing request is abandoned.
func (a *agent) Cancel() *dbus.Error {
	a.logger.Info("pairing request cancelled")
	return nil
}
