package lid

import "encoding/json"

// Notification keys. These are part of the wire contract.
const (
	KeyAngle              = "Angle"
	KeyOpened             = "Opened"
	KeyStatus             = "Status"
	KeyWiFiConnectionData = "WiFiConnectionData"
)

// Read selectors accepted by Controller.Read.
const (
	SelectorStatus = "STATUS"
	SelectorOpened = "OPENED"
	SelectorAngle  = "ANGLE"
)

// Event is a single key/value change pushed to observers.
type Event struct {
	Key   string
	Value any
}

// Payload encodes the event as a single-key JSON object, e.g. {"Angle":90}.
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(map[string]any{e.Key: e.Value})
}

// MarshalJSON implements json.Marshaler using the wire encoding.
func (e Event) MarshalJSON() ([]byte, error) {
	return e.Payload()
}

// WifiStatus is the value of a WiFiConnectionData notification.
// Nil SSID or IPAddress encode as JSON null.
type WifiStatus struct {
	Connected bool    `json:"connected"`
	SSID      *string `json:"ssid"`
	IPAddress *string `json:"ip_address"`
}
