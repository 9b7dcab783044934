package lid

import (
	"context"
	"sync"
	"time"
)

// Sensor measures the distance to the nearest obstacle in centimetres.
// Implementations bound their own electrical waits; a reading of 0 means
// nothing was detected.
type Sensor interface {
	MeasureDistance(ctx context.Context) (float64, error)
}

// Actuation is the part of Controller the monitor drives.
type Actuation interface {
	AutoOpen(ctx context.Context) error
	AutoClose(ctx context.Context) error
	Powered() bool
	DetectDistance() int
}

// ReadingRecorder receives every distance reading. Optional.
type ReadingRecorder interface {
	RecordReading(cm float64, triggered bool)
}

// MonitorConfig holds the proximity loop timings.
type MonitorConfig struct {
	// PollInterval is the delay after a reading that did not trigger.
	// Zero reads back to back.
	PollInterval time.Duration

	// IdleInterval is how often the power state is rechecked while the
	// device is switched off.
	// Default: 100ms
	IdleInterval time.Duration

	// Dwell is how long the lid stays open after a trigger.
	Dwell time.Duration

	// Cooldown is the pause after the autonomous close.
	Cooldown time.Duration

	// ErrorBackoff is the pause after a failed autonomous open.
	// Default: 1s
	ErrorBackoff time.Duration
}

// DefaultMonitorConfig returns the timings deployed bins run with.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: 0,
		IdleInterval: 100 * time.Millisecond,
		Dwell:        3 * time.Second,
		Cooldown:     500 * time.Millisecond,
		ErrorBackoff: time.Second,
	}
}

// Monitor polls a Sensor and opens the lid when something comes closer
// than the detect distance.
//
// Each trigger runs one cycle: AutoOpen, wait Dwell, AutoClose (only if
// the monitor is still running), wait Cooldown. Sensor errors count as a
// 0 reading. While the device is switched off the sensor is not read.
//
// Thread Safety:
//   - Start and Stop are safe for concurrent use.
type Monitor struct {
	sensor   Sensor
	target   Actuation
	cfg      MonitorConfig
	logger   Logger
	readings ReadingRecorder

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(sensor Sensor, target Actuation, cfg MonitorConfig) *Monitor {
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 100 * time.Millisecond
	}
	return &Monitor{
		sensor: sensor,
		target: target,
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetReadingRecorder attaches a recorder for every distance reading.
func (m *Monitor) SetReadingRecorder(r ReadingRecorder) {
	m.readings = r
}

// Start launches the polling goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrMonitorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(loopCtx)
	}()

	m.logger.Info("proximity monitor started",
		"poll_interval", m.cfg.PollInterval,
		"dwell", m.cfg.Dwell,
		"cooldown", m.cfg.Cooldown,
	)
	return nil
}

// Stop clears the running flag and waits for the loop to exit.
// It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("proximity monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context) {
	for ctx.Err() == nil {
		if !m.target.Powered() {
			if m.readings != nil {
				m.readings.RecordReading(0, false)
			}
			if !sleepCtx(ctx, m.cfg.IdleInterval) {
				return
			}
			continue
		}

		distance := m.read(ctx)
		threshold := float64(m.target.DetectDistance())
		triggered := distance > 0 && distance < threshold

		if m.readings != nil {
			m.readings.RecordReading(distance, triggered)
		}

		if triggered {
			m.cycle(ctx, distance)
			continue
		}
		if !sleepCtx(ctx, m.cfg.PollInterval) {
			return
		}
	}
}

// read returns 0 when the sensor fails.
func (m *Monitor) read(ctx context.Context) float64 {
	d, err := m.sensor.MeasureDistance(ctx)
	if err != nil {
		m.logger.Debug("distance reading failed", "error", err)
		return 0
	}
	return d
}

func (m *Monitor) cycle(ctx context.Context, distance float64) {
	m.logger.Info("object detected, opening lid", "distance_cm", distance)

	if err := m.target.AutoOpen(ctx); err != nil {
		m.logger.Warn("autonomous open failed", "error", err)
		sleepCtx(ctx, m.cfg.ErrorBackoff)
		return
	}

	if !sleepCtx(ctx, m.cfg.Dwell) {
		return
	}

	if err := m.target.AutoClose(ctx); err != nil {
		m.logger.Warn("autonomous close failed", "error", err)
	}

	sleepCtx(ctx, m.cfg.Cooldown)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
