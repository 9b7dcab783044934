package pigpio

import (
	"errors"
	"fmt"
)

// Domain-specific errors for pigpio operations.
var (
	// ErrNotConnected is returned after Close or before Dial succeeded.
	ErrNotConnected = errors.New("pigpio: not connected to pigpiod")

	// ErrConnectionFailed is returned when pigpiod cannot be reached.
	ErrConnectionFailed = errors.New("pigpio: connection failed")

	// ErrCommandFailed is returned when pigpiod answers with an error code.
	ErrCommandFailed = errors.New("pigpio: command failed")

	// ErrInvalidAngle is returned for servo angles outside 0..180.
	ErrInvalidAngle = errors.New("pigpio: angle out of range")
)

// pigpio error codes seen in practice. See pigpio.h for the full list.
var errorCodes = map[int32]string{
	-2:  "bad user gpio",
	-3:  "bad gpio",
	-4:  "bad mode",
	-5:  "bad level",
	-7:  "bad pulsewidth",
	-41: "not permitted",
	-46: "bad trigger pulse length",
}

// CodeError is a negative pigpiod result.
type CodeError struct {
	Command uint32
	Code    int32
}

func (e *CodeError) Error() string {
	if msg, ok := errorCodes[e.Code]; ok {
		return fmt.Sprintf("pigpio: command %d: %s (%d)", e.Command, msg, e.Code)
	}
	return fmt.Sprintf("pigpio: command %d: error %d", e.Command, e.Code)
}

// Unwrap lets errors.Is match ErrCommandFailed.
func (e *CodeError) Unwrap() error { return ErrCommandFailed }
