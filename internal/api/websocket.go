package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/neobin-core/internal/infrastructure/config"
	"github.com/nerrad567/neobin-core/internal/infrastructure/logging"
	"github.com/nerrad567/neobin-core/internal/lid"
)

// Mirror channels. Every controller event maps to exactly one.
const (
	ChannelLidState = "lid.state"
	ChannelSettings = "lid.settings"
	ChannelWifi     = "lid.wifi"
)

var allChannels = []string{ChannelLidState, ChannelSettings, ChannelWifi}

const (
	// wsSendBufferSize is the per-client outbound frame buffer size.
	wsSendBufferSize = 64

	defaultMaxMessageSize = 4096
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// WSEvent is the frame pushed to dashboards for each controller event.
// Event encodes the same way as on the BLE inform characteristic.
type WSEvent struct {
	Channel string    `json:"channel"`
	Time    string    `json:"time"`
	Event   lid.Event `json:"event"`
}

// Hub fans controller events out to connected dashboards. It implements
// notify.Observer. The stream is one-way: inbound frames are discarded.
type Hub struct {
	logger         *logging.Logger
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration

	// mu guards clients and the send channels: sends happen under the read
	// lock, closes under the write lock.
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. Zero config values select defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:         logger,
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongWait:       time.Duration(cfg.PongTimeout) * time.Second,
		clients:        make(map[*wsClient]struct{}),
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongTimeout
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// Observe pushes evt to every client listening on its channel. It never
// blocks: a client with a full buffer misses the frame.
func (h *Hub) Observe(evt lid.Event) {
	channel := channelFor(evt.Key)
	data, err := json.Marshal(WSEvent{
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Event:   evt,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket frame", "key", evt.Key, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.channels[channel] {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("websocket client too slow, frame dropped", "channel", channel)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes c; only the caller that finds c in the map closes send.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// channelFor maps an event key to its mirror channel.
func channelFor(key string) string {
	switch key {
	case lid.KeyWiFiConnectionData:
		return ChannelWifi
	case lid.SettingMinAngle, lid.SettingMaxAngle, lid.SettingDetectDistance:
		return ChannelSettings
	default:
		return ChannelLidState
	}
}

// parseChannels reads the comma separated channels query value. Empty
// selects every channel.
func parseChannels(raw string) (map[string]bool, error) {
	set := make(map[string]bool, len(allChannels))
	if strings.TrimSpace(raw) == "" {
		for _, ch := range allChannels {
			set[ch] = true
		}
		return set, nil
	}
	for _, ch := range strings.Split(raw, ",") {
		ch = strings.TrimSpace(ch)
		switch ch {
		case ChannelLidState, ChannelSettings, ChannelWifi:
			set[ch] = true
		default:
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}
	return set, nil
}

// handleWebSocket upgrades to a websocket that streams controller events.
// Authentication is via the ticket query parameter (POST /auth/ws-ticket);
// ?channels= narrows the stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channels, err := parseChannels(r.URL.Query().Get("channels"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	if !s.tickets.consume(ticket) {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: channels,
	}
	s.hub.register(c)

	go s.hub.writeLoop(c)
	go s.hub.readLoop(c)
}

// readLoop keeps the read deadline alive via pongs and detects disconnects.
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	deadline := h.pingInterval + h.pongWait
	c.conn.SetReadLimit(h.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(h.pongWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(h.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
