// Package mqtt mirrors NeoBin state onto an MQTT broker.
//
// It wraps paho.mqtt.golang with the connection policy the device needs:
// a retained Last Will on <prefix>/status so home dashboards see the bin go
// offline, automatic reconnection with bounded backoff, and publish
// helpers that validate topics, QoS and payload size.
//
// Topic hierarchy (prefix defaults to "neobin"):
//
//	neobin/status               online/offline (retained, LWT)
//	neobin/state/Angle          {"Angle":180} (retained)
//	neobin/state/Opened         {"Opened":true} (retained)
//	neobin/state/Status         {"Status":true} (retained)
//	neobin/state/WiFiConnectionData
//	neobin/sensor/trigger       {"distance_cm":14.2,"timestamp":"..."}
//
// Thread Safety:
//   - All Client methods are safe for concurrent use.
//
// Tests against a real broker are tagged "integration".
package mqtt
