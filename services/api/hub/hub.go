// Package hub fans classified events out to websocket subscribers grouped by
// role.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// Message is one frame addressed to a role. A non-empty WorkerID restricts
// delivery to worker clients that asked for that id, plus unscoped ones.
type Message struct {
	Role     telemetry.Role
	WorkerID string
	Payload  []byte
}

// Metrics tracks hub activity.
type Metrics struct {
	clients *prometheus.GaugeVec
	sent    *prometheus.CounterVec
	evicted *prometheus.CounterVec
}

// NewMetrics registers hub collectors with reg, or the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shizuku",
			Subsystem: "hub",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}, []string{"role"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shizuku",
			Subsystem: "hub",
			Name:      "messages_sent_total",
			Help:      "Frames queued to websocket clients.",
		}, []string{"role"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shizuku",
			Subsystem: "hub",
			Name:      "clients_evicted_total",
			Help:      "Clients dropped because their send buffer was full.",
		}, []string{"role"}),
	}
	reg.MustRegister(m.clients, m.sent, m.evicted)
	return m
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	metrics    *Metrics
	logger     *log.Logger

	mu     sync.RWMutex
	counts map[telemetry.Role]int
}

// New creates a hub. metrics may be nil.
func New(metrics *Metrics, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
		counts:     make(map[telemetry.Role]int),
	}
}

// Run processes registrations and broadcasts until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.adjust(client.role, 1)
			h.logger.Printf("hub: client %s registered (role=%s worker=%s)", client.id, client.role, client.workerID)

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.logger.Printf("hub: client %s unregistered", client.id)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.accepts(msg) {
					continue
				}
				select {
				case client.send <- msg.Payload:
					if h.metrics != nil {
						h.metrics.sent.WithLabelValues(string(client.role)).Inc()
					}
				default:
					h.logger.Printf("hub: client %s send buffer full, removing", client.id)
					if h.metrics != nil {
						h.metrics.evicted.WithLabelValues(string(client.role)).Inc()
					}
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.adjust(client.role, -1)
}

func (h *Hub) adjust(role telemetry.Role, delta int) {
	h.mu.Lock()
	h.counts[role] += delta
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.clients.WithLabelValues(string(role)).Add(float64(delta))
	}
}

// Count returns the number of registered clients for role.
func (h *Hub) Count(role telemetry.Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[role]
}

// Broadcast queues msg for delivery. It returns false once the hub stopped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Publish encodes ev and sends it to each role.
func (h *Hub) Publish(ev telemetry.RiskEvent, roles ...telemetry.Role) error {
	payload, err := telemetry.Encode(ev)
	if err != nil {
		return err
	}
	for _, role := range roles {
		h.Broadcast(Message{Role: role, WorkerID: ev.WorkerID, Payload: payload})
	}
	return nil
}

// PublishRaw forwards an arbitrary JSON object to role.
func (h *Hub) PublishRaw(role telemetry.Role, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	workerID, _ := body["worker_id"].(string)
	if workerID == "" {
		workerID, _ = body["user_id"].(string)
	}
	h.Broadcast(Message{Role: role, WorkerID: workerID, Payload: payload})
	return nil
}
