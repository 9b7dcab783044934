package lid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Actuator drives the lid motor.
type Actuator interface {
	SetAngle(ctx context.Context, degrees int) error
}

// Network manages the wireless connection of the device.
type Network interface {
	Status(ctx context.Context) (WifiStatus, error)
	Connect(ctx context.Context, ssid, password string) error
	Disconnect(ctx context.Context) error
}

// Notifier receives change events in emission order.
type Notifier interface {
	Notify(Event)
}

// Recorder persists state transitions. Failures are logged, never surfaced.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Logger is the logging interface used by the lid package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of a Controller.
type Deps struct {
	Session  *Session
	Actuator Actuator
	Store    SettingsStore
	Network  Network
	Notifier Notifier

	// Recorder is optional.
	Recorder Recorder

	// Logger is optional.
	Logger Logger
}

// Controller executes commands against the lid state.
//
// State mutation and the actuator call happen under mu. Emission happens
// under emitMu, which is acquired before mu is released, so observers see
// events in the order the mutations happened without holding up mutators
// on slow observers for longer than one emission batch.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Controller struct {
	session  *Session
	actuator Actuator
	store    SettingsStore
	network  Network
	notifier Notifier
	recorder Recorder
	logger   Logger

	mu       sync.Mutex
	emitMu   sync.Mutex
	angle    int
	opened   bool
	status   bool
	shutdown bool
	cfg      Settings
}

// NewController creates a Controller with the device switched on and the
// lid at settings.MinAngle. It does not move the actuator; call Init for that.
func NewController(deps Deps, settings Settings) (*Controller, error) {
	if deps.Session == nil || deps.Actuator == nil || deps.Store == nil ||
		deps.Network == nil || deps.Notifier == nil {
		return nil, errors.New("lid: session, actuator, store, network and notifier are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("initial settings: %w", err)
	}

	c := &Controller{
		session:  deps.Session,
		actuator: deps.Actuator,
		store:    deps.Store,
		network:  deps.Network,
		notifier: deps.Notifier,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		angle:    settings.MinAngle,
		status:   true,
		cfg:      settings,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	c.opened = settings.IsOpened(c.angle)
	return c, nil
}

// Init drives the actuator to the current angle. A failure here is fatal
// for startup.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.actuator.SetAngle(ctx, c.angle); err != nil {
		return fmt.Errorf("setting initial angle %d: %w", c.angle, err)
	}
	return nil
}

// Shutdown stops the controller from driving the actuator. Every later
// move fails with ErrShutdown; a move already holding the lock completes
// before Shutdown returns. Call it before releasing the actuator.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
}

// Execute runs one command on behalf of the remote client.
//
// Authenticate is always accepted. Every other command fails with
// ErrNotAuthenticated, before any mutation, while the session is not
// authenticated. A dispatched command runs to completion even if ctx is
// cancelled part way.
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	if auth, ok := cmd.(Authenticate); ok {
		if err := c.session.Authenticate(auth.Credential); err != nil {
			c.logger.Warn("authentication failed")
			return err
		}
		c.logger.Info("client authenticated")
		return nil
	}

	if err := c.session.Require(); err != nil {
		c.logger.Debug("rejected unauthenticated command", "command", cmd.Name())
		return err
	}

	ctx = context.WithoutCancel(ctx)

	switch cmd := cmd.(type) {
	case SetAngle:
		return c.setAngle(ctx, cmd.Angle, cmd.Name(), OriginCommand)
	case Open:
		return c.open(ctx, OriginCommand)
	case Close:
		return c.close(ctx, OriginCommand)
	case ToggleStatus:
		c.toggleStatus(ctx)
		return nil
	case UpdateSettings:
		return c.updateSettings(cmd)
	case GetSettings:
		c.getSettings()
		return nil
	case GetWifiStatus:
		c.emitWifiStatus(ctx)
		return nil
	case WifiDisconnect:
		c.wifiDisconnect(ctx)
		return nil
	case WifiConnect:
		c.wifiConnect(ctx, cmd.SSID, cmd.Password)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name())
	}
}

// AutoOpen opens the lid on behalf of the proximity monitor.
// It bypasses the session check; the monitor is local to the device.
func (c *Controller) AutoOpen(ctx context.Context) error {
	return c.open(context.WithoutCancel(ctx), OriginSensor)
}

// AutoClose closes the lid on behalf of the proximity monitor.
func (c *Controller) AutoClose(ctx context.Context) error {
	return c.close(context.WithoutCancel(ctx), OriginSensor)
}

// Powered reports whether the device is switched on.
func (c *Controller) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// DetectDistance returns the current proximity threshold in centimetres.
func (c *Controller) DetectDistance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.DetectDistance
}

// Settings returns the cached settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Snapshot returns a consistent copy of the device state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Read resolves a query selector (STATUS, OPENED, ANGLE) against the
// current state. Selectors are case-insensitive.
func (c *Controller) Read(selector string) (Event, error) {
	if err := c.session.Require(); err != nil {
		return Event{}, err
	}
	return c.Query(selector)
}

// Query is Read without the session check, for local maintenance surfaces
// that carry their own authentication.
func (c *Controller) Query(selector string) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch strings.ToUpper(strings.TrimSpace(selector)) {
	case SelectorStatus:
		return Event{Key: KeyStatus, Value: c.status}, nil
	case SelectorOpened:
		return Event{Key: KeyOpened, Value: c.opened}, nil
	case SelectorAngle:
		return Event{Key: KeyAngle, Value: c.angle}, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown selector %q", ErrInvalidArgument, selector)
	}
}

func (c *Controller) open(ctx context.Context, origin Origin) error {
	return c.moveTo(ctx, func(s Settings) int { return s.MaxAngle }, Open{}.Name(), origin)
}

func (c *Controller) close(ctx context.Context, origin Origin) error {
	return c.moveTo(ctx, func(s Settings) int { return s.MinAngle }, Close{}.Name(), origin)
}

func (c *Controller) setAngle(ctx context.Context, angle int, command string, origin Origin) error {
	return c.moveTo(ctx, func(Settings) int { return angle }, command, origin)
}

// moveTo resolves the target angle against the current settings, validates
// it, drives the actuator, commits the new angle and emits Angle then Opened.
func (c *Controller) moveTo(ctx context.Context, target func(Settings) int, command string, origin Origin) error {
	c.mu.Lock()
	angle := target(c.cfg)

	if !c.cfg.InRange(angle) {
		lo, hi := c.cfg.MinAngle, c.cfg.MaxAngle
		c.mu.Unlock()
		return fmt.Errorf("%w: angle %d outside [%d, %d]", ErrInvalidArgument, angle, lo, hi)
	}
	if !c.status {
		c.mu.Unlock()
		return ErrDeviceOff
	}
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}

	// An actuator failure leaves the logical state at the requested angle.
	if err := c.actuator.SetAngle(ctx, angle); err != nil {
		c.logger.Error("actuator failed", "angle", angle, "origin", string(origin), "error", err)
	}

	c.angle = angle
	c.opened = c.cfg.IsOpened(angle)
	c.logger.Info("lid moved", "angle", angle, "opened", c.opened, "origin", string(origin))

	t := c.transitionLocked(command, origin)
	c.publishLocked(ctx, &t,
		Event{Key: KeyAngle, Value: angle},
		Event{Key: KeyOpened, Value: t.Opened},
	)
	return nil
}

func (c *Controller) toggleStatus(ctx context.Context) {
	c.mu.Lock()
	c.status = !c.status
	c.logger.Info("device status changed", "status", c.status)

	t := c.transitionLocked(ToggleStatus{}.Name(), OriginCommand)
	c.publishLocked(ctx, &t, Event{Key: KeyStatus, Value: t.Status})
}

func (c *Controller) updateSettings(cmd UpdateSettings) error {
	if cmd.Type != SettingsSection {
		return fmt.Errorf("%w: unknown settings type %q", ErrInvalidArgument, cmd.Type)
	}

	c.mu.Lock()
	next, err := c.cfg.With(cmd.Key, cmd.Value)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.store.Save(next); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConfigStore, err)
	}

	wasOpened := c.opened
	c.cfg = next
	c.opened = next.IsOpened(c.angle)
	c.logger.Info("settings updated", "key", cmd.Key, "value", cmd.Value)

	events := []Event{{Key: cmd.Key, Value: cmd.Value}}
	var t *Transition
	if c.opened != wasOpened {
		tr := c.transitionLocked(cmd.Name(), OriginCommand)
		t = &tr
		events = append(events, Event{Key: KeyOpened, Value: c.opened})
	}
	c.publishLocked(context.Background(), t, events...)
	return nil
}

func (c *Controller) getSettings() {
	c.mu.Lock()
	s := c.cfg
	c.publishLocked(context.Background(), nil,
		Event{Key: SettingMaxAngle, Value: s.MaxAngle},
		Event{Key: SettingDetectDistance, Value: s.DetectDistance},
	)
}

func (c *Controller) wifiConnect(ctx context.Context, ssid, password string) {
	if err := c.network.Connect(ctx, ssid, password); err != nil {
		c.logger.Error("wifi connect failed", "ssid", ssid, "error", err)
	} else {
		c.logger.Info("wifi connected", "ssid", ssid)
	}
	c.emitWifiStatus(ctx)
}

func (c *Controller) wifiDisconnect(ctx context.Context) {
	err := c.network.Disconnect(ctx)
	if err != nil {
		c.logger.Warn("wifi disconnect failed, retrying", "error", err)
		err = c.network.Disconnect(ctx)
	}
	if err != nil {
		c.logger.Error("wifi disconnect failed", "error", err)
	} else {
		c.logger.Info("wifi disconnected")
	}
	c.emitWifiStatus(ctx)
}

func (c *Controller) emitWifiStatus(ctx context.Context) {
	status, err := c.network.Status(ctx)
	if err != nil {
		c.logger.Error("reading wifi status failed", "error", err)
		status = WifiStatus{}
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.notifier.Notify(Event{Key: KeyWiFiConnectionData, Value: status})
}

func (c *Controller) snapshotLocked() State {
	return State{
		Angle:         c.angle,
		Opened:        c.opened,
		Status:        c.status,
		Authenticated: c.session.Authenticated(),
		Settings:      c.cfg,
	}
}

func (c *Controller) transitionLocked(command string, origin Origin) Transition {
	return Transition{
		Command: command,
		Angle:   c.angle,
		Opened:  c.opened,
		Status:  c.status,
		Origin:  origin,
	}
}

// publishLocked must be called with mu held and releases it. It hands over
// to emitMu before releasing mu, then emits events and records t (if any).
func (c *Controller) publishLocked(ctx context.Context, t *Transition, events ...Event) {
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	for _, evt := range events {
		c.notifier.Notify(evt)
	}

	if t != nil && c.recorder != nil {
		if err := c.recorder.RecordTransition(ctx, *t); err != nil {
			c.logger.Warn("recording transition failed", "command", t.Command, "error", err)
		}
	}
}
