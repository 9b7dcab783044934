// Package mirror copies lid events to the home-automation side channels.
//
// MQTTObserver republishes every notification as a retained message under
// <prefix>/state/<Key> and announces triggering proximity readings on
// <prefix>/sensor/trigger. InfluxObserver records notifications and every
// distance reading as time series. Both hang off notify.Publisher as
// observers, so they see all events whether or not a BLE client is
// subscribed, and neither can stall the controller: MQTT publishing runs
// on its own goroutine behind a bounded queue.
package mirror
