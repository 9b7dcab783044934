package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// Config describes the peripheral.
type Config struct {
	// Adapter is the BlueZ adapter name (e.g. "hci0"). Empty selects the
	// first adapter that supports LE advertising and GATT.
	Adapter string

	// AppPath is the object path root the application is exported under.
	AppPath dbus.ObjectPath

	ServiceUUID   string
	Advertisement AdvertisementConfig
}

// exportedIface is one (path, interface) pair to unexport on Close.
type exportedIface struct {
	path  dbus.ObjectPath
	iface string
}

// Peripheral is the NeoBin GATT server, advertisement and pairing agent
// registered with BlueZ.
//
// The peripheral is created with NewPeripheral() and registered with
// Start(). The D-Bus connection belongs to the caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Peripheral struct {
	conn   *dbus.Conn
	cfg    Config
	logger Logger

	servicePath dbus.ObjectPath
	chars       []*Characteristic
	byUUID      map[string]*Characteristic
	adv         *advertisement
	agent       *agent

	ctxMu sync.RWMutex
	ctx   context.Context

	mu       sync.Mutex
	cancel   context.CancelFunc
	adapter  dbus.ObjectPath
	started  bool
	exported []exportedIface
	agentReg bool
	appReg   bool
	advReg   bool
}

// NewPeripheral builds the object tree for observables. Nothing touches the
// bus until Start.
//
// Parameters:
//   - conn: System bus connection (may be nil for offline use)
//   - cfg: Adapter, object path root, service UUID and advertisement
//   - observables: Exposed attributes, in characteristic order
//
// Returns:
//   - *Peripheral: Peripheral ready to start
//   - error: If the configuration or an observable is invalid
func NewPeripheral(conn *dbus.Conn, cfg Config, observables ...Observable) (*Peripheral, error) {
	if !cfg.AppPath.IsValid() || cfg.AppPath == "/" {
		return nil, fmt.Errorf("ble: invalid application path %q", cfg.AppPath)
	}
	if cfg.ServiceUUID == "" {
		return nil, fmt.Errorf("ble: service UUID is required")
	}
	if len(observables) == 0 {
		return nil, ErrNoObservables
	}

	p := &Peripheral{
		conn:        conn,
		cfg:         cfg,
		logger:      noopLogger{},
		servicePath: cfg.AppPath + "/service0",
		byUUID:      make(map[string]*Characteristic, len(observables)),
		ctx:         context.Background(),
	}
	p.adv = &advertisement{path: cfg.AppPath + "/advertisement0", cfg: cfg.Advertisement, logger: p.logger}
	p.agent = &agent{path: cfg.AppPath + "/agent", logger: p.logger}

	for i, obs := range observables {
		if err := obs.validate(); err != nil {
			return nil, err
		}
		if _, dup := p.byUUID[obs.UUID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUUID, obs.UUID)
		}
		path := dbus.ObjectPath(fmt.Sprintf("%s/char%d", p.servicePath, i))
		c := newCharacteristic(path, p.servicePath, obs, p.baseContext, p.logger)
		p.chars = append(p.chars, c)
		p.byUUID[obs.UUID] = c
	}

	return p, nil
}

// SetLogger sets the logger for the peripheral and its objects.
// Call it before Start.
func (p *Peripheral) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	p.logger = logger
	p.adv.logger = logger
	p.agent.logger = logger
	for _, c := range p.chars {
		c.logger = logger
	}
}

// Characteristic returns the characteristic for uuid, or nil.
func (p *Peripheral) Characteristic(uuid string) *Characteristic {
	return p.byUUID[uuid]
}

// Adapter returns the adapter path chosen by Start.
func (p *Peripheral) Adapter() dbus.ObjectPath {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adapter
}

// Start prepares the adapter, exports the object tree and registers the
// agent, GATT application and advertisement with BlueZ. On failure
// everything done so far is undone.
//
// Parameters:
//   - ctx: Context for the registration calls; also the parent of the
//     context passed to observable handlers
//
// Returns:
//   - error: If any step fails
func (p *Peripheral) Start(ctx context.Context) error {
	if p.conn == nil {
		return ErrNoConnection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	adapter, err := findAdapter(p.conn, p.cfg.Adapter)
	if err != nil {
		return err
	}
	if err := prepareAdapter(p.conn, adapter); err != nil {
		return err
	}
	p.adapter = adapter

	handlerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.ctxMu.Lock()
	p.ctx = handlerCtx
	p.ctxMu.Unlock()

	if err := p.register(ctx); err != nil {
		p.teardownLocked() //nolint:errcheck // Registration error is the one worth returning
		return err
	}

	p.started = true
	p.logger.Info("ble peripheral registered",
		"adapter", string(adapter),
		"app_path", string(p.cfg.AppPath),
		"characteristics", len(p.chars),
	)
	return nil
}

// register exports every object and registers with BlueZ. Caller holds mu.
func (p *Peripheral) register(ctx context.Context) error {
	if err := p.export(&application{p: p}, p.cfg.AppPath, objectManagerIface); err != nil {
		return err
	}
	if _, err := p.exportProps(p.servicePath, prop.Map{gattServiceIface: p.serviceProps()}); err != nil {
		return err
	}
	for _, c := range p.chars {
		if err := p.export(c, c.path, gattCharacteristicIface); err != nil {
			return err
		}
		props, err := p.exportProps(c.path, c.propMap())
		if err != nil {
			return err
		}
		c.attach(props)
	}
	if err := p.export(p.adv, p.adv.path, advertisementIface); err != nil {
		return err
	}
	if _, err := p.exportProps(p.adv.path, p.adv.propMap()); err != nil {
		return err
	}
	if err := p.export(p.agent, p.agent.path, agentIface); err != nil {
		return err
	}

	manager := p.conn.Object(bluezBusName, bluezRoot)
	if err := manager.CallWithContext(ctx, agentManagerIface+".RegisterAgent", 0, p.agent.path, AgentCapability).Err; err != nil {
		return fmt.Errorf("registering pairing agent: %w", err)
	}
	p.agentReg = true
	if err := manager.CallWithContext(ctx, agentManagerIface+".RequestDefaultAgent", 0, p.agent.path).Err; err != nil {
		p.logger.Warn("could not become default pairing agent", "error", err)
	}

	adapter := p.conn.Object(bluezBusName, p.adapter)
	noOptions := map[string]dbus.Variant{}
	if err := adapter.CallWithContext(ctx, gattManagerIface+".RegisterApplication", 0, p.cfg.AppPath, noOptions).Err; err != nil {
		return fmt.Errorf("registering GATT application: %w", err)
	}
	p.appReg = true
	if err := adapter.CallWithContext(ctx, advertisingManagerIface+".RegisterAdvertisement", 0, p.adv.path, noOptions).Err; err != nil {
		return fmt.Errorf("registering advertisement: %w", err)
	}
	p.advReg = true
	return nil
}

func (p *Peripheral) export(v any, path dbus.ObjectPath, iface string) error {
	if err := p.conn.Export(v, path, iface); err != nil {
		return fmt.Errorf("exporting %s on %s: %w", iface, path, err)
	}
	p.exported = append(p.exported, exportedIface{path: path, iface: iface})
	return nil
}

func (p *Peripheral) exportProps(path dbus.ObjectPath, m prop.Map) (*prop.Properties, error) {
	props, err := prop.Export(p.conn, path, m)
	if err != nil {
		return nil, fmt.Errorf("exporting properties on %s: %w", path, err)
	}
	p.exported = append(p.exported, exportedIface{path: path, iface: propertiesIface})
	return props, nil
}

// Close unregisters from BlueZ and unexports every object. It does not
// close the D-Bus connection.
//
// Returns:
//   - error: The first unregistration failure, if any
func (p *Peripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}
	err := p.teardownLocked()
	p.started = false
	p.logger.Info("ble peripheral unregistered")
	return err
}

// teardownLocked reverses register. Caller holds mu.
func (p *Peripheral) teardownLocked() error {
	var errs []error

	if p.advReg {
		adapter := p.conn.Object(bluezBusName, p.adapter)
		if err := adapter.Call(advertisingManagerIface+".UnregisterAdvertisement", 0, p.adv.path).Err; err != nil {
			errs = append(errs, fmt.Errorf("unregistering advertisement: %w", err))
		}
		p.advReg = false
	}
	if p.appReg {
		adapter := p.conn.Object(bluezBusName, p.adapter)
		if err := adapter.Call(gattManagerIface+".UnregisterApplication", 0, p.cfg.AppPath).Err; err != nil {
			errs = append(errs, fmt.Errorf("unregistering GATT application: %w", err))
		}
		p.appReg = false
	}
	if p.agentReg {
		manager := p.conn.Object(bluezBusName, bluezRoot)
		if err := manager.Call(agentManagerIface+".UnregisterAgent", 0, p.agent.path).Err; err != nil {
			errs = append(errs, fmt.Errorf("unregistering pairing agent: %w", err))
		}
		p.agentReg = false
	}

	for _, c := range p.chars {
		c.attach(nil)
	}
	for _, e := range p.exported {
		//nolint:errcheck // Unexporting a nil value cannot fail
		p.conn.Export(nil, e.path, e.iface)
	}
	p.exported = nil

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	for _, err := range errs {
		p.logger.Warn("ble teardown", "error", err)
	}
	return errors.Join(errs...)
}

// HealthCheck reports whether the peripheral is registered and its
// adapter is powered.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (p *Peripheral) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("ble health check: %w", ctx.Err())
	default:
	}

	p.mu.Lock()
	started, adapter := p.started, p.adapter
	p.mu.Unlock()

	if !started {
		return fmt.Errorf("ble peripheral not registered")
	}
	powered, err := getAdapterBool(p.conn, adapter, "Powered")
	if err != nil {
		return err
	}
	if !powered {
		return fmt.Errorf("adapter %s is powered off", adapter)
	}
	return nil
}

func (p *Peripheral) baseContext() context.Context {
	p.ctxMu.RLock()
	defer p.ctxMu.RUnlock()
	return p.ctx
}

// serviceProps returns the GattService1 properties.
func (p *Peripheral) serviceProps() map[string]*prop.Prop {
	paths := make([]dbus.ObjectPath, 0, len(p.chars))
	for _, c := range p.chars {
		paths = append(paths, c.path)
	}
	return map[string]*prop.Prop{
		"UUID":            {Value: p.cfg.ServiceUUID, Emit: prop.EmitConst},
		"Primary":         {Value: true, Emit: prop.EmitConst},
		"Characteristics": {Value: paths, Emit: prop.EmitConst},
	}
}

// managedObjects returns the tree BlueZ reads during RegisterApplication.
func (p *Peripheral) managedObjects() managedObjects {
	service := make(map[string]dbus.Variant)
	for name, pr := range p.serviceProps() {
		service[name] = dbus.MakeVariant(pr.Value)
	}

	objects := managedObjects{
		p.servicePath: {gattServiceIface: service},
	}
	for _, c := range p.chars {
		objects[c.path] = map[string]map[string]dbus.Variant{
			gattCharacteristicIface: c.properties(),
		}
	}
	return objects
}

// application is the org.freedesktop.DBus.ObjectManager at the app root.
type application struct {
	p *Peripheral
}

// GetManagedObjects returns the service and characteristic tree.
func (a *application) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	return a.p.managedObjects(), nil
}
