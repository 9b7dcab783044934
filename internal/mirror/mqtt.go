package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/neobin-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/neobin-core/internal/lid"
)

const defaultQueueSize = 64

// Publisher is the subset of *mqtt.Client used by MQTTObserver.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
}

// Logger is the logging interface used by the mirrors.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// TriggerReading is the payload of a sensor trigger message.
type TriggerReading struct {
	DistanceCM float64   `json:"distance_cm"`
	Timestamp  time.Time `json:"timestamp"`
}

// MQTTObserver publishes lid events to MQTT. It implements notify.Observer
// and lid.ReadingRecorder.
//
// Thread Safety:
//   - Observe and RecordReading are safe for concurrent use and never block.
type MQTTObserver struct {
	pub    Publisher
	topics mqtt.Topics
	queue  chan message
	logger Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped int
}

// NewMQTTObserver creates an observer with a queue of queueSize messages
// (64 if queueSize <= 0). Call Start before events arrive.
func NewMQTTObserver(pub Publisher, topics mqtt.Topics, queueSize int) *MQTTObserver {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &MQTTObserver{
		pub:    pub,
		topics: topics,
		queue:  make(chan message, queueSize),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger. Call before Start.
func (o *MQTTObserver) SetLogger(l Logger) { o.logger = l }

// Start runs the publishing goroutine until Stop or ctx is done.
func (o *MQTTObserver) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(1)
	go o.run(ctx)
}

// Stop publishes whatever is already queued, then stops the goroutine.
func (o *MQTTObserver) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		o.wg.Wait()
	}
}

func (o *MQTTObserver) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case m := <-o.queue:
			o.publish(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-o.queue:
					o.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (o *MQTTObserver) publish(m message) {
	var err error
	if m.retained {
		err = o.pub.PublishRetained(m.topic, m.payload)
	} else {
		err = o.pub.PublishEvent(m.topic, m.payload)
	}
	if err != nil {
		o.logger.Warn("mqtt mirror publish failed", "topic", m.topic, "error", err)
	}
}

// Observe queues evt as a retained state message.
func (o *MQTTObserver) Observe(evt lid.Event) {
	payload, err := evt.Payload()
	if err != nil {
		o.logger.Warn("encoding event for mqtt", "key", evt.Key, "error", err)
		return
	}
	o.enqueue(message{topic: o.topics.State(evt.Key), payload: payload, retained: true})
}

// RecordReading queues a trigger message for readings that opened the lid.
func (o *MQTTObserver) RecordReading(cm float64, triggered bool) {
	if !triggered {
		return
	}
	payload, err := json.Marshal(TriggerReading{DistanceCM: cm, Timestamp: o.now().UTC()})
	if err != nil {
		return
	}
	o.enqueue(message{topic: o.topics.SensorTrigger(), payload: payload})
}

func (o *MQTTObserver) enqueue(m message) {
	select {
	case o.queue <- m:
	default:
		o.mu.Lock()
		o.dropped++
		n := o.dropped
		o.mu.Unlock()
		o.logger.Warn("mqtt mirror queue full, dropping message", "topic", m.topic, "dropped_total", n)
	}
}

// Dropped returns how many messages were discarded on a full queue.
func (o *MQTTObserver) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
