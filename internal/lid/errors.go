package lid

import (
	"errors"
	"fmt"
)

// Domain errors for lid operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotAuthenticated is returned by every operation except
	// Authenticate while the session is not authenticated.
	ErrNotAuthenticated = errors.New("lid: not authenticated")

	// ErrAuthFailed is returned when a presented credential does not match.
	ErrAuthFailed = errors.New("lid: authentication failed")

	// ErrProtocol is the parent of all command decoding errors.
	ErrProtocol = errors.New("lid: protocol error")

	// ErrEncoding is returned when a payload is not valid UTF-8.
	ErrEncoding = fmt.Errorf("%w: payload is not valid UTF-8", ErrProtocol)

	// ErrUnknownCommand is returned for text matching no command.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrProtocol)

	// ErrMalformed is returned when a known command carries a bad argument.
	ErrMalformed = fmt.Errorf("%w: malformed command", ErrProtocol)

	// ErrInvalidArgument is returned when a value is outside its allowed domain.
	ErrInvalidArgument = errors.New("lid: invalid argument")

	// ErrFailedOperation is the parent of refused operations.
	ErrFailedOperation = errors.New("lid: operation failed")

	// ErrDeviceOff is returned when the lid is asked to move while switched off.
	ErrDeviceOff = fmt.Errorf("%w: device is off", ErrFailedOperation)

	// ErrShutdown is returned when the lid is asked to move after Shutdown.
	ErrShutdown = fmt.Errorf("%w: controller shut down", ErrFailedOperation)

	// ErrConfigStore is returned when updated settings cannot be persisted.
	ErrConfigStore = errors.New("lid: settings store failure")

	// ErrMonitorRunning is returned when Start is called on a running Monitor.
	ErrMonitorRunning = errors.New("lid: monitor already running")
)
