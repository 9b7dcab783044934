package pigpio

import (
	"context"
	"fmt"
)

// Servo pulse range in microseconds.
const (
	minPulseWidth = 500
	maxPulseWidth = 2500
	maxAngle      = 180
)

// PulseWidth converts a lid angle to a servo pulse width in µs.
// The servo is mounted reversed: 0° maps to 2500 µs and 180° to 500 µs.
func PulseWidth(angle int) int {
	return minPulseWidth + (maxAngle-angle)*(maxPulseWidth-minPulseWidth)/maxAngle
}

// Servo drives the lid servo on one GPIO. It implements lid.Actuator.
type Servo struct {
	gpio GPIO
	pin  int
}

// NewServo configures pin as an output and returns a Servo.
func NewServo(gpio GPIO, pin int) (*Servo, error) {
	if err := gpio.SetMode(pin, ModeOutput); err != nil {
		return nil, fmt.Errorf("configuring servo gpio %d: %w", pin, err)
	}
	return &Servo{gpio: gpio, pin: pin}, nil
}

// SetAngle moves the servo to angle degrees (0-180).
func (s *Servo) SetAngle(_ context.Context, angle int) error {
	if angle < 0 || angle > maxAngle {
		return fmt.Errorf("%w: %d", ErrInvalidAngle, angle)
	}
	if err := s.gpio.SetServoPulsewidth(s.pin, PulseWidth(angle)); err != nil {
		return fmt.Errorf("setting servo pulse: %w", err)
	}
	return nil
}

// Release stops servo pulses so the motor no longer holds position.
func (s *Servo) Release() error {
	if err := s.gpio.SetServoPulsewidth(s.pin, 0); err != nil {
		return fmt.Errorf("releasing servo: %w", err)
	}
	return nil
}
