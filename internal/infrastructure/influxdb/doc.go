// Package influxdb writes NeoBin telemetry to InfluxDB v2.
//
// Two measurements are recorded:
//
//	lid_state       tags: device, key      fields: angle | opened | status
//	sensor_distance tags: device           fields: distance_cm, triggered
//
// Writes go through the non-blocking batched write API; batch errors are
// reported through SetOnError. Connection and health check errors are
// returned directly.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
package influxdb
