// Package ble exposes the NeoBin lid over Bluetooth Low Energy through BlueZ.
//
// The peripheral is a flat, declarative list of observables. Each observable
// is a UUID plus a handler; the capabilities of the handler (Reader, Writer,
// Subscriber) decide the GATT flags. A generic adapter turns that list into
// the BlueZ object tree:
//
//	<app>                       org.freedesktop.DBus.ObjectManager
//	<app>/service0              org.bluez.GattService1
//	<app>/service0/charN        org.bluez.GattCharacteristic1 + Properties
//	<app>/advertisement0        org.bluez.LEAdvertisement1 + Properties
//	<app>/agent                 org.bluez.Agent1
//
// NeoBin registers three observables:
//
//	auth     write          presents the device credential
//	command  write          text commands ("OPEN", "ANGLE:90", ...)
//	inform   read, notify   state reads and change notifications
//
// Notifications are delivered by updating the inform characteristic's Value
// property, which emits org.freedesktop.DBus.Properties.PropertiesChanged.
//
// Domain errors are mapped to BlueZ D-Bus errors: malformed commands and
// out-of-range values become org.bluez.Error.InvalidValueLength, everything
// else becomes org.bluez.Error.Failed.
//
// Thread Safety:
//   - BlueZ method calls are dispatched concurrently by godbus; every
//     handler in this package is safe for concurrent use.
package ble
