// NeoBin Core - Smart Bin Lid Controller
//
// This is the main entry point for the NeoBin device program. It drives the
// lid servo and the proximity sensor, exposes the authenticated command
// protocol over Bluetooth LE, and mirrors lid state to the optional
// maintenance surfaces (history database, MQTT, InfluxDB, HTTP API).
//
// Usage:
//
//	neobin                          run the device program
//	neobin hash-password <password> print an Argon2id hash for security.api_password_hash
//	neobin version                  print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/neobin-core/internal/api"
	"github.com/nerrad567/neobin-core/internal/auth"
	"github.com/nerrad567/neobin-core/internal/ble"
	"github.com/nerrad567/neobin-core/internal/hardware/pigpio"
	"github.com/nerrad567/neobin-core/internal/history"
	"github.com/nerrad567/neobin-core/internal/infrastructure/config"
	"github.com/nerrad567/neobin-core/internal/infrastructure/database"
	"github.com/nerrad567/neobin-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/neobin-core/internal/infrastructure/logging"
	"github.com/nerrad567/neobin-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/neobin-core/internal/lid"
	"github.com/nerrad567/neobin-core/internal/mirror"
	"github.com/nerrad567/neobin-core/internal/network"
	"github.com/nerrad567/neobin-core/internal/notify"
	"github.com/nerrad567/neobin-core/internal/process"
	"github.com/nerrad567/neobin-core/internal/settings"
	"github.com/nerrad567/neobin-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// mirrorQueueSize bounds the MQTT mirror backlog.
const mirrorQueueSize = 64

// pruneInterval is how often expired history is deleted.
const pruneInterval = time.Hour

// errUsage is returned for an unknown or incomplete subcommand.
var errUsage = errors.New("usage: neobin [hash-password <password> | version]")

func main() {
	if handled, err := runCommand(os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand handles the one-shot subcommands. It reports whether args
// named a subcommand; an empty args list runs the device program.
func runCommand(args []string, out io.Writer) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(out, "neobin %s (commit %s, built %s)\n", version, commit, date)
		return true, nil
	case "hash-password":
		if len(args) != 2 || args[1] == "" {
			return true, errUsage
		}
		hash, err := auth.HashPassword(args[1])
		if err != nil {
			return true, err
		}
		fmt.Fprintln(out, hash)
		return true, nil
	default:
		return true, fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
//
//nolint:gocognit,gocyclo // Startup wiring reads best as one sequence
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting NeoBin Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open history database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	historyRepo := history.NewSQLiteRepository(db.DB)
	if cfg.Database.HistoryRetentionDays > 0 {
		pruner := history.NewPruner(historyRepo,
			time.Duration(cfg.Database.HistoryRetentionDays)*24*time.Hour, pruneInterval)
		pruner.SetLogger(log)
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	// Start pigpiod (if managed)
	if cfg.Hardware.Pigpiod.Managed {
		supervisor, startErr := startPigpiod(ctx, cfg, log)
		if startErr != nil {
			return fmt.Errorf("starting pigpiod: %w", startErr)
		}
		defer func() {
			log.Info("stopping pigpiod")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping pigpiod", "error", stopErr)
			}
		}()
	}

	// Hardware
	gpio, err := pigpio.Dial(ctx, cfg.Hardware.Pigpiod.Address(), cfg.Hardware.CommandTimeout())
	if err != nil {
		return fmt.Errorf("connecting to pigpiod: %w", err)
	}
	defer func() {
		if closeErr := gpio.Close(); closeErr != nil {
			log.Error("error closing pigpiod connection", "error", closeErr)
		}
	}()
	servo, err := pigpio.NewServo(gpio, cfg.Hardware.ServoPin)
	if err != nil {
		return fmt.Errorf("initialising servo: %w", err)
	}
	sensor, err := pigpio.NewUltrasonic(gpio, pigpio.UltrasonicConfig{
		TrigPin:     cfg.Hardware.TrigPin,
		EchoPin:     cfg.Hardware.EchoPin,
		EdgeTimeout: cfg.Hardware.EdgeTimeout(),
		MaxDistance: cfg.Sensor.MaxDistance,
	})
	if err != nil {
		return fmt.Errorf("initialising ultrasonic sensor: %w", err)
	}
	log.Info("hardware ready",
		"pigpiod", gpio.Addr(),
		"servo_pin", cfg.Hardware.ServoPin,
		"trig_pin", cfg.Hardware.TrigPin,
		"echo_pin", cfg.Hardware.EchoPin,
	)

	// Settings
	store, err := settings.NewFileStore(cfg.Device.SettingsFile, cfg.Device.DefaultsFile)
	if err != nil {
		return fmt.Errorf("creating settings store: %w", err)
	}
	initial, err := store.Load()
	if err != nil {
		log.Warn("settings file unusable, using defaults", "path", store.Path(), "error", err)
		initial = lid.DefaultSettings()
	}

	netManager := network.NewManager(network.Config{
		Interface: cfg.Network.Interface,
		Nmcli:     cfg.Network.NmcliPath,
		Iw:        cfg.Network.IwPath,
		IP:        cfg.Network.IPPath,
		Timeout:   cfg.Network.Timeout(),
		UseSudo:   cfg.Network.UseSudo,
	}, nil)
	netManager.SetLogger(log)

	// Notification fan-out
	session := lid.NewSession([]byte(cfg.Device.Credential))
	channel := notify.NewChannel("inform")
	channel.SetLogger(log)
	publisher := notify.NewPublisher(channel)
	publisher.SetLogger(log)

	controller, err := lid.NewController(lid.Deps{
		Session:  session,
		Actuator: servo,
		Store:    store,
		Network:  netManager,
		Notifier: publisher,
		Recorder: historyRepo,
		Logger:   log,
	}, initial)
	if err != nil {
		return fmt.Errorf("creating lid controller: %w", err)
	}
	releaseServo := sync.OnceFunc(func() {
		controller.Shutdown()
		log.Info("releasing servo")
		if releaseErr := servo.Release(); releaseErr != nil {
			log.Error("error releasing servo", "error", releaseErr)
		}
	})
	defer releaseServo()
	if initErr := controller.Init(ctx); initErr != nil {
		return fmt.Errorf("initialising lid: %w", initErr)
	}
	log.Info("lid initialised",
		"min_angle", initial.MinAngle,
		"max_angle", initial.MaxAngle,
		"detect_distance", initial.DetectDistance,
	)

	var readings mirror.Readings
	checks := map[string]api.HealthChecker{
		"database": db,
		"pigpiod":  gpio,
	}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttMirror := mirror.NewMQTTObserver(mqttClient, mqttClient.Topics(), mirrorQueueSize)
		mqttMirror.SetLogger(log)
		mqttMirror.Start(ctx)
		defer mqttMirror.Stop()

		publisher.AddObserver(mqttMirror)
		readings = append(readings, mqttMirror)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Name)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxMirror := mirror.NewInfluxObserver(influxClient)
		publisher.AddObserver(influxMirror)
		readings = append(readings, influxMirror)
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bluetooth LE peripheral
	if cfg.Bluetooth.Enabled {
		peripheral, closeBLE, startErr := startBLE(ctx, cfg, controller, channel, session, log)
		if startErr != nil {
			return fmt.Errorf("starting bluetooth: %w", startErr)
		}
		defer closeBLE()
		checks["bluetooth"] = peripheral
	} else {
		log.Warn("bluetooth disabled, the lid only reacts to the proximity sensor")
	}

	// Maintenance API (optional)
	if cfg.API.Enabled {
		server, startErr := startAPI(ctx, cfg, controller, historyRepo, checks, log)
		if startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		publisher.AddObserver(server.Hub())
	} else {
		log.Info("API server disabled")
	}

	// The servo is released after the monitor stops and before the
	// transports are torn down. Commands arriving after that fail with
	// lid.ErrShutdown.
	defer releaseServo()

	// Proximity monitor
	if cfg.Sensor.Enabled {
		monitor := lid.NewMonitor(sensor, controller, lid.MonitorConfig{
			PollInterval: cfg.Sensor.PollInterval(),
			Dwell:        cfg.Sensor.Dwell(),
			Cooldown:     cfg.Sensor.Cooldown(),
		})
		monitor.SetLogger(log)
		if len(readings) > 0 {
			monitor.SetReadingRecorder(readings)
		}
		if startErr := monitor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting proximity monitor: %w", startErr)
		}
		defer func() {
			log.Info("stopping proximity monitor")
			monitor.Stop()
		}()
		log.Info("proximity monitor started",
			"poll_interval", cfg.Sensor.PollInterval(),
			"dwell", cfg.Sensor.Dwell(),
		)
	} else {
		log.Info("proximity monitor disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Proximity monitor
	// 2. Servo release
	// 3. API server and Bluetooth peripheral
	// 4. InfluxDB and MQTT mirrors
	// 5. pigpiod connection and pigpiod
	// 6. History pruner and database

	log.Info("NeoBin Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NEOBIN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEOBIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startPigpiod launches and supervises the pigpio daemon.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *process.Supervisor: Running supervisor
//   - error: If pigpiod does not start serving within its start timeout
func startPigpiod(ctx context.Context, cfg *config.Config, log *logging.Logger) (*process.Supervisor, error) {
	pcfg := cfg.Hardware.Pigpiod
	supervisor := process.NewSupervisor(process.Config{
		Name:             "pigpiod",
		Binary:           pcfg.Binary,
		Args:             []string{"-g", "-p", fmt.Sprint(pcfg.Port)},
		RestartOnFailure: pcfg.RestartOnFailure,
		ReadyCheck:       process.DialCheck(pcfg.Address()),
		ReadyTimeout:     time.Duration(pcfg.StartTimeout) * time.Second,
	})
	supervisor.SetLogger(log)

	log.Info("starting pigpiod", "binary", pcfg.Binary, "port", pcfg.Port)
	if err := supervisor.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("pigpiod started", "address", pcfg.Address())
	return supervisor, nil
}

// startBLE connects to the system bus and registers the GATT peripheral.
//
// Parameters:
//   - ctx: Context for registration
//   - cfg: Application configuration
//   - controller: Lid controller driven by the observables
//   - channel: Notification channel of the inform observable
//   - session: Connection session gating notifications
//   - log: Logger instance
//
// Returns:
//   - *ble.Peripheral: Registered peripheral
//   - func(): Unregisters the peripheral and closes the bus connection
//   - error: If the bus or BlueZ registration fails
func startBLE(ctx context.Context, cfg *config.Config, controller *lid.Controller, channel *notify.Channel, session *lid.Session, log *logging.Logger) (*ble.Peripheral, func(), error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	bcfg := cfg.Bluetooth
	uuids := ble.UUIDs{
		Service: bcfg.UUIDs.Service,
		Auth:    bcfg.UUIDs.Auth,
		Command: bcfg.UUIDs.Command,
		Inform:  bcfg.UUIDs.Inform,
	}
	peripheral, err := ble.NewPeripheral(conn, ble.Config{
		Adapter:     bcfg.Adapter,
		AppPath:     dbus.ObjectPath(bcfg.AppPath),
		ServiceUUID: uuids.Service,
		Advertisement: ble.AdvertisementConfig{
			LocalName:        bcfg.LocalName,
			ServiceUUIDs:     []string{uuids.Service},
			ManufacturerID:   uint16(bcfg.ManufacturerID), // #nosec G115 -- validated to 16 bits
			ManufacturerData: []byte(bcfg.ManufacturerData),
		},
	}, ble.Observables(uuids, controller, channel, session)...)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	peripheral.SetLogger(log.With("component", "ble"))
	channel.Attach(peripheral.Characteristic(uuids.Inform))

	if err := peripheral.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Info("bluetooth peripheral advertising",
		"adapter", string(peripheral.Adapter()),
		"local_name", bcfg.LocalName,
		"service", uuids.Service,
	)

	closeFn := func() {
		log.Info("stopping bluetooth peripheral")
		if closeErr := peripheral.Close(); closeErr != nil {
			log.Error("error stopping bluetooth peripheral", "error", closeErr)
		}
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing system bus", "error", closeErr)
		}
	}
	return peripheral, closeFn, nil
}

// startAPI creates and starts the maintenance HTTP server.
//
// Parameters:
//   - ctx: Context for the server lifetime
//   - cfg: Application configuration
//   - controller: Lid state source
//   - historyRepo: State history source
//   - checks: Components reported on /health
//   - log: Logger instance
//
// Returns:
//   - *api.Server: Listening server
//   - error: If the server cannot be created or bound
func startAPI(ctx context.Context, cfg *config.Config, controller *lid.Controller, historyRepo *history.SQLiteRepository, checks map[string]api.HealthChecker, log *logging.Logger) (*api.Server, error) {
	authenticator := auth.NewAuthenticator(
		cfg.Security.APIPasswordHash,
		cfg.Security.JWT.Secret,
		cfg.Device.Name,
		cfg.Security.JWT.AccessTokenDuration(),
	)

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Lid:     controller,
		Auth:    authenticator,
		History: historyRepo,
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return nil, err
	}
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("API server started", "address", server.Addr().String())
	return server, nil
}
