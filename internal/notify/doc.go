// Package notify delivers lid change events to remote observers.
//
// A Channel models one notifiable observable (the BLE inform
// characteristic): events are forwarded to its Sink only while a client is
// subscribed, and dropped otherwise. Nothing is queued, so a client that
// subscribes late never sees earlier events.
//
// A Publisher implements lid.Notifier. It feeds the Channel and any number
// of local Observers (MQTT mirror, WebSocket hub, telemetry), which see
// every event regardless of the BLE subscription.
package notify
