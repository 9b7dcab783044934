package notify

import (
	"sync"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// Sink carries an encoded event to the transport, e.g. a BLE
// PropertiesChanged signal on the characteristic value.
type Sink interface {
	Emit(payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(payload []byte) error

// Emit calls f(payload).
func (f SinkFunc) Emit(payload []byte) error { return f(payload) }

// Authenticator reports whether the device session is authenticated.
type Authenticator interface {
	Authenticated() bool
}

// Logger is the logging interface used by the notify package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Channel is the subscription state of one notifiable observable.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Channel struct {
	id     string
	logger Logger

	mu         sync.Mutex
	subscribed bool
	sink       Sink
}

// NewChannel creates an unsubscribed channel with no sink attached.
func NewChannel(id string) *Channel {
	return &Channel{id: id, logger: noopLogger{}}
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// ID returns the observable identifier.
func (c *Channel) ID() string { return c.id }

// Attach sets the sink events are forwarded to.
func (c *Channel) Attach(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// StartNotify subscribes the remote client. It is a no-op when already
// subscribed and fails with lid.ErrNotAuthenticated otherwise unless auth
// reports an authenticated session.
func (c *Channel) StartNotify(auth Authenticator) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribed {
		c.logger.Debug("already notifying", "observable", c.id)
		return nil
	}
	if auth == nil || !auth.Authenticated() {
		return lid.ErrNotAuthenticated
	}
	c.subscribed = true
	c.logger.Debug("notifications started", "observable", c.id)
	return nil
}

// StopNotify unsubscribes the remote client. It is a no-op when not subscribed.
func (c *Channel) StopNotify() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.subscribed {
		return
	}
	c.subscribed = false
	c.logger.Debug("notifications stopped", "observable", c.id)
}

// Subscribed reports whether a client is subscribed.
func (c *Channel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Send forwards evt to the sink if a client is subscribed.
// It reports whether the event was handed to the sink.
func (c *Channel) Send(evt lid.Event) bool {
	c.mu.Lock()
	subscribed, sink := c.subscribed, c.sink
	c.mu.Unlock()

	if !subscribed || sink == nil {
		return false
	}

	payload, err := evt.Payload()
	if err != nil {
		c.logger.Warn("encoding notification failed", "observable", c.id, "key", evt.Key, "error", err)
		return false
	}
	if err := sink.Emit(payload); err != nil {
		c.logger.Warn("emitting notification failed", "observable", c.id, "key", evt.Key, "error", err)
		return false
	}
	return true
}
