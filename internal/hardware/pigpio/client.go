package pigpio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Socket command numbers (pigpio.h, PI_CMD_*).
const (
	cmdModes = 0
	cmdRead  = 3
	cmdWrite = 4
	cmdServo = 8
	cmdTick  = 16
	cmdHWVer = 17
	cmdTrig  = 37
)

// GPIO modes.
const (
	ModeInput  = 0
	ModeOutput = 1
)

// unsignedResult lists commands whose result word is an unsigned value
// rather than a status code.
var unsignedResult = map[uint32]bool{
	cmdTick:  true,
	cmdHWVer: true,
}

const (
	frameSize          = 16
	defaultIOTimeout   = time.Second
	defaultDialTimeout = 5 * time.Second
)

// GPIO is the subset of pigpiod used by the servo and sensor drivers.
type GPIO interface {
	SetMode(gpio, mode int) error
	Read(gpio int) (int, error)
	Write(gpio, level int) error
	SetServoPulsewidth(gpio, width int) error
	Trigger(gpio, pulseLen, level int) error
	Tick() (uint32, error)
}

// Client is a pigpiod socket connection.
type Client struct {
	addr      string
	ioTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to pigpiod at addr (host:port). ioTimeout bounds each
// command round trip; zero selects one second.
func Dial(ctx context.Context, addr string, ioTimeout time.Duration) (*Client, error) {
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}

	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	return &Client{addr: addr, ioTimeout: ioTimeout, conn: conn}, nil
}

// Addr returns the pigpiod address.
func (c *Client) Addr() string { return c.addr }

// Close closes the socket. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SetMode sets a GPIO to ModeInput or ModeOutput.
func (c *Client) SetMode(gpio, mode int) error {
	_, err := c.command(cmdModes, uint32(gpio), uint32(mode), nil)
	return err
}

// Read returns the level (0 or 1) of a GPIO.
func (c *Client) Read(gpio int) (int, error) {
	res, err := c.command(cmdRead, uint32(gpio), 0, nil)
	return int(res), err
}

// Write sets the level of an output GPIO.
func (c *Client) Write(gpio, level int) error {
	_, err := c.command(cmdWrite, uint32(gpio), uint32(level), nil)
	return err
}

// SetServoPulsewidth starts servo pulses of width µs (500-2500) on gpio.
// A width of 0 stops the pulses.
func (c *Client) SetServoPulsewidth(gpio, width int) error {
	_, err := c.command(cmdServo, uint32(gpio), uint32(width), nil)
	return err
}

// Trigger sends a pulseLen µs pulse at level on gpio.
func (c *Client) Trigger(gpio, pulseLen, level int) error {
	ext := make([]byte, 4)
	binary.LittleEndian.PutUint32(ext, uint32(level))
	_, err := c.command(cmdTrig, uint32(gpio), uint32(pulseLen), ext)
	return err
}

// Tick returns the pigpiod microsecond tick. It wraps every 2^32 µs
// (about 72 minutes); differences taken in uint32 stay correct across a wrap.
func (c *Client) Tick() (uint32, error) {
	res, err := c.command(cmdTick, 0, 0, nil)
	return uint32(res), err
}

// HardwareRevision returns the board revision; used as a health check.
func (c *Client) HardwareRevision() (uint32, error) {
	res, err := c.command(cmdHWVer, 0, 0, nil)
	return uint32(res), err
}

// HealthCheck verifies pigpiod answers commands.
func (c *Client) HealthCheck(_ context.Context) error {
	_, err := c.HardwareRevision()
	return err
}

// command sends one request frame and reads the response.
func (c *Client) command(cmd, p1, p2 uint32, ext []byte) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, ErrNotConnected
	}

	req := make([]byte, frameSize+len(ext))
	binary.LittleEndian.PutUint32(req[0:], cmd)
	binary.LittleEndian.PutUint32(req[4:], p1)
	binary.LittleEndian.PutUint32(req[8:], p2)
	binary.LittleEndian.PutUint32(req[12:], uint32(len(ext)))
	copy(req[frameSize:], ext)

	if err := c.conn.SetDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return 0, fmt.Errorf("setting deadline: %w", err)
	}
	if _, err := c.conn.Write(req); err != nil {
		return 0, fmt.Errorf("sending command %d: %w", cmd, err)
	}

	var resp [frameSize]byte
	if _, err := io.ReadFull(c.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("reading response to command %d: %w", cmd, err)
	}

	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 && !unsignedResult[cmd] {
		return res, &CodeError{Command: cmd, Code: res}
	}
	return res, nil
}
