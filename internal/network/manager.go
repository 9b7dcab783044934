package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// Errors returned by the network manager.
var (
	// ErrCommandFailed is returned when a network tool exits non-zero.
	ErrCommandFailed = errors.New("network: command failed")

	// ErrInvalidSSID is returned when Connect is called with an empty SSID.
	ErrInvalidSSID = errors.New("network: ssid is required")
)

// nmcli connection type of a WiFi profile.
const wirelessType = "802-11-wireless"

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit wraps ErrCommandFailed and
// includes trimmed stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // Binary paths come from trusted config
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return out, fmt.Errorf("%w: %s: %s", ErrCommandFailed, name, msg)
	}
	return out, nil
}

// Logger is the logging interface used by the network package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds tool paths and the managed interface.
type Config struct {
	Interface string
	Nmcli     string
	Iw        string
	IP        string

	// Timeout bounds each external command.
	Timeout time.Duration

	// UseSudo prefixes state-changing commands with sudo.
	UseSudo bool
}

// Manager implements lid.Network.
type Manager struct {
	cfg    Config
	runner Runner
	logger Logger
}

// NewManager creates a Manager. A nil runner uses ExecRunner.
func NewManager(cfg Config, runner Runner) *Manager {
	if cfg.Interface == "" {
		cfg.Interface = "wlan0"
	}
	if cfg.Nmcli == "" {
		cfg.Nmcli = "nmcli"
	}
	if cfg.Iw == "" {
		cfg.Iw = "iw"
	}
	if cfg.IP == "" {
		cfg.IP = "ip"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Manager{cfg: cfg, runner: runner, logger: noopLogger{}}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Connect joins ssid. An empty password connects to an open network.
func (m *Manager) Connect(ctx context.Context, ssid, password string) error {
	if ssid == "" {
		return ErrInvalidSSID
	}
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	args = append(args, "ifname", m.cfg.Interface)

	_, err := m.privileged(ctx, m.cfg.Nmcli, args...)
	if err != nil {
		return fmt.Errorf("connecting to %q: %w", ssid, err)
	}
	return nil
}

// Disconnect drops the connection on the managed interface.
func (m *Manager) Disconnect(ctx context.Context) error {
	if _, err := m.privileged(ctx, m.cfg.Nmcli, "device", "disconnect", m.cfg.Interface); err != nil {
		return fmt.Errorf("disconnecting %s: %w", m.cfg.Interface, err)
	}
	return nil
}

// Status reports whether a WiFi connection is active, its SSID and IPv4
// address. Lookup failures after the link check leave fields nil rather
// than failing the whole call.
func (m *Manager) Status(ctx context.Context) (lid.WifiStatus, error) {
	out, err := m.run(ctx, m.cfg.Nmcli, "-t", "-f", "TYPE,NAME,DEVICE,STATE", "connection", "show", "--active")
	if err != nil {
		return lid.WifiStatus{}, fmt.Errorf("listing active connections: %w", err)
	}

	device := activeWirelessDevice(out)
	if device == "" {
		return lid.WifiStatus{}, nil
	}

	status := lid.WifiStatus{Connected: true}

	if ssid := m.lookupSSID(ctx, device); ssid != "" {
		status.SSID = &ssid
	}

	if ipOut, err := m.run(ctx, m.cfg.IP, "-f", "inet", "addr", "show", device); err != nil {
		m.logger.Warn("reading ip address failed", "device", device, "error", err)
	} else if ip := parseIPv4(ipOut); ip != "" {
		status.IPAddress = &ip
	}

	return status, nil
}

func (m *Manager) lookupSSID(ctx context.Context, device string) string {
	out, err := m.run(ctx, m.cfg.Iw, "dev", device, "link")
	if err != nil {
		m.logger.Debug("iw link failed, falling back to nmcli", "device", device, "error", err)
	} else if ssid := parseIwSSID(out); ssid != "" {
		return ssid
	}

	out, err = m.run(ctx, m.cfg.Nmcli, "-t", "-f", "active,ssid", "dev", "wifi")
	if err != nil {
		m.logger.Warn("reading ssid failed", "device", device, "error", err)
		return ""
	}
	return parseActiveSSID(out)
}

func (m *Manager) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return m.runner.Run(ctx, name, args...)
}

func (m *Manager) privileged(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.cfg.UseSudo {
		return m.run(ctx, "sudo", append([]string{name}, args...)...)
	}
	return m.run(ctx, name, args...)
}

// activeWirelessDevice returns the device of the first activated WiFi
// connection in `nmcli -t -f TYPE,NAME,DEVICE,STATE connection show --active`.
func activeWirelessDevice(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) >= 4 && fields[0] == wirelessType && fields[3] == "activated" {
			return fields[2]
		}
	}
	return ""
}

// parseIwSSID extracts "SSID: name" from `iw dev <dev> link`.
func parseIwSSID(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if _, ssid, ok := strings.Cut(line, "SSID:"); ok {
			return strings.TrimSpace(ssid)
		}
	}
	return ""
}

// parseActiveSSID extracts the active network from `nmcli -t -f active,ssid dev wifi`.
func parseActiveSSID(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) >= 2 && fields[0] == "yes" {
			return strings.Join(fields[1:], ":")
		}
	}
	return ""
}

// parseIPv4 extracts the first "inet a.b.c.d/nn" address from `ip addr show`.
func parseIPv4(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "inet" {
				addr, _, _ := strings.Cut(fields[i+1], "/")
				return addr
			}
		}
	}
	return ""
}

// splitTerse splits an nmcli terse line on ':' honouring "\:" escapes.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case line[i] == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(fields, cur.String())
}
