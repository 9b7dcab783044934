package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLidState       = "lid_state"
	MeasurementSensorDistance = "sensor_distance"
)

// WriteLidEvent records one notification value as field of the
// lid_state measurement, tagged with the notification key.
func (c *Client) WriteLidEvent(key string, field string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(lidPoint(c.device, key, field, value, at))
}

// WriteDistance records one ultrasonic reading.
func (c *Client) WriteDistance(cm float64, triggered bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(distancePoint(c.device, cm, triggered, at))
}

func lidPoint(device, key, field string, value any, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLidState,
		map[string]string{"device": device, "key": key},
		map[string]any{field: value},
		at,
	)
}

func distancePoint(device string, cm float64, triggered bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSensorDistance,
		map[string]string{"device": device},
		map[string]any{"distance_cm": cm, "triggered": triggered},
		at,
	)
}
