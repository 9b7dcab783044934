package mirror

import (
	"time"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// Writer is the subset of *influxdb.Client used by InfluxObserver.
type Writer interface {
	WriteLidEvent(key, field string, value any, at time.Time)
	WriteDistance(cm float64, triggered bool, at time.Time)
}

// InfluxObserver records lid events and sensor readings as time series.
// It implements notify.Observer and lid.ReadingRecorder. The underlying
// write API batches in the background, so calls return immediately.
type InfluxObserver struct {
	w   Writer
	now func() time.Time
}

// NewInfluxObserver creates an observer writing through w.
func NewInfluxObserver(w Writer) *InfluxObserver {
	return &InfluxObserver{w: w, now: time.Now}
}

// Observe writes one field per notification key. WiFi status is reduced
// to its connected flag.
func (o *InfluxObserver) Observe(evt lid.Event) {
	field, value, ok := influxField(evt)
	if !ok {
		return
	}
	o.w.WriteLidEvent(evt.Key, field, value, o.now())
}

// RecordReading writes every distance reading.
func (o *InfluxObserver) RecordReading(cm float64, triggered bool) {
	o.w.WriteDistance(cm, triggered, o.now())
}

func influxField(evt lid.Event) (string, any, bool) {
	switch evt.Key {
	case lid.KeyAngle:
		return "angle", evt.Value, true
	case lid.KeyOpened:
		return "opened", evt.Value, true
	case lid.KeyStatus:
		return "status", evt.Value, true
	case lid.KeyWiFiConnectionData:
		ws, ok := evt.Value.(lid.WifiStatus)
		if !ok {
			return "", nil, false
		}
		return "wifi_connected", ws.Connected, true
	default:
		return "", nil, false
	}
}

// Readings fans one distance reading out to several recorders.
type Readings []lid.ReadingRecorder

// RecordReading implements lid.ReadingRecorder.
func (r Readings) RecordReading(cm float64, triggered bool) {
	for _, rec := range r {
		if rec != nil {
			rec.RecordReading(cm, triggered)
		}
	}
}
