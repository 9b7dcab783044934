package ble

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// AdvertisementConfig describes the LE advertisement.
type AdvertisementConfig struct {
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerID   uint16
	ManufacturerData []byte
}

// advertisement is the org.bluez.LEAdvertisement1 object.
type advertisement struct {
	path   dbus.ObjectPath
	cfg    AdvertisementConfig
	logger Logger
}

// Release is called by BlueZ when it drops the advertisement.
func (a *advertisement) Release() *dbus.Error {
	a.logger.Info("advertisement released by bluez", "path", string(a.path))
	return nil
}

// properties returns the LEAdvertisement1 property values.
func (a *advertisement) properties() map[string]any {
	props := map[string]any{
		"Type":     "peripheral",
		"Includes": []string{"tx-power"},
	}
	if a.cfg.LocalName != "" {
		props["LocalName"] = a.cfg.LocalName
	}
	if len(a.cfg.ServiceUUIDs) > 0 {
		props["ServiceUUIDs"] = a.cfg.ServiceUUIDs
	}
	if len(a.cfg.ManufacturerData) > 0 {
		props["ManufacturerData"] = map[uint16]dbus.Variant{
			a.cfg.ManufacturerID: dbus.MakeVariant(a.cfg.ManufacturerData),
		}
	}
	return props
}

// propMap builds the exported org.freedesktop.DBus.Properties table.
func (a *advertisement) propMap() prop.Map {
	props := map[string]*prop.Prop{}
	for name, v := range a.properties() {
		props[name] = &prop.Prop{Value: v, Emit: prop.EmitConst}
	}
	return prop.Map{advertisementIface: props}
}
