package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/neobin-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "neobin-test",
		},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
		TopicPrefix: "kitchen/neobin/",
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("/kitchen/neobin/")

	tests := []struct {
		got, want string
	}{
		{topics.Status(), "kitchen/neobin/status"},
		{topics.State("Angle"), "kitchen/neobin/state/Angle"},
		{topics.AllStates(), "kitchen/neobin/state/+"},
		{topics.SensorTrigger(), "kitchen/neobin/sensor/trigger"},
		{NewTopics("").Status(), "neobin/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bin", Password: "secret"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg, NewTopics(cfg.TopicPrefix))

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "neobin-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bin" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != "kitchen/neobin/status" {
		t.Errorf("will = (%v, %v, %q), want retained LWT on status topic",
			opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil with TLS enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestStatusPayload(t *testing.T) {
	var got map[string]string
	if err := json.Unmarshal([]byte(statusPayload("neobin-1", "offline", "graceful_shutdown")), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["status"] != "offline" || got["client_id"] != "neobin-1" || got["reason"] != "graceful_shutdown" {
		t.Errorf("payload = %v", got)
	}
	if _, err := time.Parse(time.RFC3339, got["timestamp"]); err != nil {
		t.Errorf("timestamp %q: %v", got["timestamp"], err)
	}

	got = nil
	if err := json.Unmarshal([]byte(statusPayload("neobin-1", "online", "")), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := got["reason"]; ok {
		t.Error("online payload carries a reason")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"bad qos", "neobin/state/Angle", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "neobin/state/Angle", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "neobin/state/Angle", []byte(`{"Angle":0}`), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
