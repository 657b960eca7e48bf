package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"hestonlab/internal/infrastructure"
	"hestonlab/internal/operations"
)

// Message types sent by the hub itself.
const (
	TypeConnection = "connection"
)

// Message is the JSON envelope every client receives.
type Message struct {
	Type      string      `json:"type"`
	Subtype   string      `json:"subtype,omitempty"`
	Action    string      `json:"action,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

type outbound struct {
	eventType string
	payload   []byte
}

// Hub fans progress events out to every connected dashboard client.
// It implements operations.WebSocketHub.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	logger  *slog.Logger
	metrics *hubMetrics
	now     func() time.Time
}

var _ operations.WebSocketHub = (*Hub)(nil)

// NewHub creates a hub. meter may be nil.
func NewHub(logger *slog.Logger, meter metric.Meter) (*Hub, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	metrics, err := newHubMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// Start runs the hub loop in a goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and closes every client's send channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)
	ctx := context.Background()
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.connected(ctx)
			h.logger.InfoContext(ctx, "Client registered",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("total_clients", count))

			if payload, err := h.encode(TypeConnection, "", "", map[string]interface{}{
				"status":    "connected",
				"client_id": c.id,
			}); err == nil {
				select {
				case c.send <- payload:
				default:
				}
			}

		case c := <-h.unregister:
			h.drop(ctx, c, "closed")

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			delivered := 0
			for _, c := range clients {
				select {
				case c.send <- msg.payload:
					delivered++
				default:
					h.drop(ctx, c, "slow")
				}
			}
			h.metrics.sent(ctx, msg.eventType, delivered)
		}
	}
}

// drop removes c and closes its send channel. Only the run loop calls it.
func (h *Hub) drop(ctx context.Context, c *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.disconnected(ctx, reason)
	level := slog.LevelInfo
	if reason == "slow" {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "Client unregistered",
		slog.String("client_id", c.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", h.now().Sub(c.connectedAt)),
		slog.Int("total_clients", count))
}

func (h *Hub) encode(eventType, subtype, action string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{
		Type:      eventType,
		Subtype:   subtype,
		Action:    action,
		Data:      data,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// BroadcastUpdate queues an event for every client. Snapshots carry their
// own identity, so subtype and action are only set on other events. Events
// are dropped once the hub has stopped.
func (h *Hub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	if eventType == operations.EventTypeBatchSnapshot {
		subtype, action = "", ""
	}
	payload, err := h.encode(eventType, subtype, action, data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- outbound{eventType: eventType, payload: payload}:
	case <-h.quit:
	}
}

// Register adds a client. It blocks until the hub loop accepts it.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		close(c.send)
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
