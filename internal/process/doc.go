// Package process supervises the helper daemons NeoBin depends on.
//
// In practice that is pigpiod, the GPIO daemon the servo and ultrasonic
// drivers talk to. When the device is configured to own pigpiod, the
// supervisor launches it, waits until its socket accepts commands, restarts
// it with exponential backoff if it dies, and stops the whole process group
// on shutdown.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:       "pigpiod",
//	    Binary:     "/usr/bin/pigpiod",
//	    Args:       []string{"-g"},
//	    ReadyCheck: process.DialCheck("localhost:8888"),
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
