// Package lid implements the NeoBin device control core.
//
// It owns the lid state machine (angle, opened, on/off), the single
// authentication session, the text command protocol, and the proximity
// monitor loop that opens and closes the lid on its own.
//
// The package defines the ports it needs as small interfaces (Actuator,
// Sensor, SettingsStore, Network, Notifier, Recorder). Hardware drivers,
// the BlueZ transport, and persistence live in other packages and
// implement those ports.
//
// # Concurrency
//
// Two contexts mutate lid state: the command path (one Execute per inbound
// write) and the Monitor goroutine. Both funnel through Controller, which
// serialises state mutation and the actuator call under one mutex.
// Notifications for an update are emitted after that mutex is released,
// in mutation order.
//
// # Wire format
//
// Inbound commands are UTF-8 text ("ANGLE:90", "OPEN", "CONNECT:ssid:pw",
// "SETTINGS:{...}"). Outbound notifications are single-key JSON objects
// such as {"Angle":90} or {"Opened":true}.
package lid
