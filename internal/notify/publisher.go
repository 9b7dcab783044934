package notify

import (
	"sync"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// Observer receives every lid event, independent of BLE subscriptions.
// Observe must not block for long; it runs on the emitting goroutine.
type Observer interface {
	Observe(evt lid.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(evt lid.Event)

// Observe calls f(evt).
func (f ObserverFunc) Observe(evt lid.Event) { f(evt) }

// Publisher fans lid events out to a Channel and local observers.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Publisher struct {
	channel *Channel
	logger  Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewPublisher creates a Publisher for channel (which may be nil when the
// BLE transport is disabled).
func NewPublisher(channel *Channel, observers ...Observer) *Publisher {
	return &Publisher{
		channel:   channel,
		logger:    noopLogger{},
		observers: append([]Observer(nil), observers...),
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// AddObserver registers another local observer.
func (p *Publisher) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Notify implements lid.Notifier.
func (p *Publisher) Notify(evt lid.Event) {
	if p.channel != nil {
		p.channel.Send(evt)
	}

	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()

	for _, o := range observers {
		p.observe(o, evt)
	}
}

// observe shields the emitter from a panicking observer.
func (p *Publisher) observe(o Observer, evt lid.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("observer panicked", "key", evt.Key, "panic", r)
		}
	}()
	o.Observe(evt)
}
