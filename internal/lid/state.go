package lid

// State is a point-in-time copy of the device state.
type State struct {
	Angle         int      `json:"angle"`
	Opened        bool     `json:"opened"`
	Status        bool     `json:"status"`
	Authenticated bool     `json:"authenticated"`
	Settings      Settings `json:"settings"`
}

// Origin identifies which context caused a transition.
type Origin string

const (
	// OriginCommand marks transitions requested by the remote client.
	OriginCommand Origin = "command"

	// OriginSensor marks transitions made by the proximity monitor.
	OriginSensor Origin = "sensor"
)

// Transition is a recorded change of angle or status.
type Transition struct {
	Command string
	Angle   int
	Opened  bool
	Status  bool
	Origin  Origin
}
