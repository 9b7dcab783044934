package lid

import "fmt"

// SettingsSection is the only settings section the device persists.
const SettingsSection = "settings"

// Setting keys. These appear in the SETTINGS: command and in notifications.
const (
	SettingMinAngle       = "minAngle"
	SettingMaxAngle       = "maxAngle"
	SettingDetectDistance = "detectDistance"
)

// Servo travel limits in degrees.
const (
	servoMinDegrees = 0
	servoMaxDegrees = 180
)

// Settings are the persisted lid thresholds.
type Settings struct {
	MinAngle       int `json:"minAngle"`
	MaxAngle       int `json:"maxAngle"`
	DetectDistance int `json:"detectDistance"`
}

// DefaultSettings returns the factory thresholds.
func DefaultSettings() Settings {
	return Settings{
		MinAngle:       0,
		MaxAngle:       180,
		DetectDistance: 20,
	}
}

// SettingsStore persists Settings outside the process.
type SettingsStore interface {
	Load() (Settings, error)
	Save(Settings) error
}

// Validate checks the thresholds are usable by the servo and sensor.
func (s Settings) Validate() error {
	if s.MinAngle < servoMinDegrees || s.MaxAngle > servoMaxDegrees {
		return fmt.Errorf("%w: angles must lie within [%d, %d]", ErrInvalidArgument, servoMinDegrees, servoMaxDegrees)
	}
	if s.MinAngle > s.MaxAngle {
		return fmt.Errorf("%w: minAngle %d exceeds maxAngle %d", ErrInvalidArgument, s.MinAngle, s.MaxAngle)
	}
	if s.DetectDistance <= 0 {
		return fmt.Errorf("%w: detectDistance must be positive", ErrInvalidArgument)
	}
	return nil
}

// With returns a copy of s with key set to value.
// Unknown keys and values that break Validate fail with ErrInvalidArgument.
func (s Settings) With(key string, value int) (Settings, error) {
	next := s
	switch key {
	case SettingMinAngle:
		next.MinAngle = value
	case SettingMaxAngle:
		next.MaxAngle = value
	case SettingDetectDistance:
		next.DetectDistance = value
	default:
		return s, fmt.Errorf("%w: unknown setting %q", ErrInvalidArgument, key)
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// InRange reports whether angle lies within [MinAngle, MaxAngle].
func (s Settings) InRange(angle int) bool {
	return angle >= s.MinAngle && angle <= s.MaxAngle
}

// IsOpened reports whether angle counts as open: MinAngle < angle <= MaxAngle.
func (s Settings) IsOpened(angle int) bool {
	return s.MinAngle < angle && angle <= s.MaxAngle
}
