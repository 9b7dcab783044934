package pigpio

import (
	"context"
	"fmt"
	"time"
)

const (
	// speedOfSoundCM is the speed of sound in cm/s at about 20 °C.
	speedOfSoundCM = 34300

	triggerPulseMicros = 10
	defaultMaxDistance = 300
	defaultEdgeTimeout = 100 * time.Millisecond
)

// UltrasonicConfig holds HC-SR04 wiring and limits.
type UltrasonicConfig struct {
	TrigPin int
	EchoPin int

	// EdgeTimeout bounds the wait for each echo edge.
	EdgeTimeout time.Duration

	// MaxDistance is the largest reading (cm) accepted as valid.
	MaxDistance float64
}

// Ultrasonic measures distance with an HC-SR04. It implements lid.Sensor.
type Ultrasonic struct {
	gpio GPIO
	cfg  UltrasonicConfig
	now  func() time.Time
}

// NewUltrasonic configures the trigger and echo pins and returns a sensor.
func NewUltrasonic(gpio GPIO, cfg UltrasonicConfig) (*Ultrasonic, error) {
	if cfg.EdgeTimeout <= 0 {
		cfg.EdgeTimeout = defaultEdgeTimeout
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = defaultMaxDistance
	}

	if err := gpio.SetMode(cfg.TrigPin, ModeOutput); err != nil {
		return nil, fmt.Errorf("configuring trigger gpio %d: %w", cfg.TrigPin, err)
	}
	if err := gpio.SetMode(cfg.EchoPin, ModeInput); err != nil {
		return nil, fmt.Errorf("configuring echo gpio %d: %w", cfg.EchoPin, err)
	}
	if err := gpio.Write(cfg.TrigPin, 0); err != nil {
		return nil, fmt.Errorf("lowering trigger gpio %d: %w", cfg.TrigPin, err)
	}

	return &Ultrasonic{gpio: gpio, cfg: cfg, now: time.Now}, nil
}

// MeasureDistance fires one ping and returns the distance in cm.
//
// A missing echo edge within EdgeTimeout, or a reading outside
// (0, MaxDistance), yields 0 with a nil error. Socket failures are returned.
func (u *Ultrasonic) MeasureDistance(ctx context.Context) (float64, error) {
	if err := u.gpio.Trigger(u.cfg.TrigPin, triggerPulseMicros, 1); err != nil {
		return 0, fmt.Errorf("triggering ping: %w", err)
	}

	start, ok, err := u.waitLevel(ctx, 1)
	if err != nil || !ok {
		return 0, err
	}
	end, ok, err := u.waitLevel(ctx, 0)
	if err != nil || !ok {
		return 0, err
	}

	echo := time.Duration(end-start) * time.Microsecond
	distance := echo.Seconds() * speedOfSoundCM / 2
	if distance <= 0 || distance >= u.cfg.MaxDistance {
		return 0, nil
	}
	return distance, nil
}

// waitLevel polls the echo pin until it reads level and returns the
// pigpiod tick at that edge. ok is false when the edge timeout or ctx
// expires first.
func (u *Ultrasonic) waitLevel(ctx context.Context, level int) (uint32, bool, error) {
	deadline := u.now().Add(u.cfg.EdgeTimeout)
	for {
		v, err := u.gpio.Read(u.cfg.EchoPin)
		if err != nil {
			return 0, false, fmt.Errorf("reading echo: %w", err)
		}
		if v == level {
			tick, err := u.gpio.Tick()
			if err != nil {
				return 0, false, fmt.Errorf("reading tick: %w", err)
			}
			return tick, true, nil
		}
		if u.now().After(deadline) || ctx.Err() != nil {
			return 0, false, nil
		}
	}
}
