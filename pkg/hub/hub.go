package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when registering with a stopped hub.
var ErrClosed = errors.New("hub: closed")

// member is anything with a send queue the hub can fan out to.
type member interface {
	queue() chan Message
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[member]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan member

	// Unregister requests from clients
	unregister chan member

	// Mutex for client count (read-only access from outside)
	mu sync.RWMutex

	// OnClients is called with the client count after every change.
	OnClients func(name string, n int)

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[member]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan member),
		unregister: make(chan member),
		done:       make(chan struct{}),
	}
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client's queue.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)
			h.notify(count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.queue())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)
			h.notify(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			dropped := 0
			for client := range h.clients {
				select {
				case client.queue() <- message:
				default:
					// Client's buffer is full - they're too slow
					close(client.queue())
					delete(h.clients, client)
					dropped++
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			if dropped > 0 {
				h.logger.Warn("dropped slow clients", "dropped", dropped, "clients", count)
				h.notify(count)
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })
	h.mu.Lock()
	for client := range h.clients {
		close(client.queue())
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.notify(0)
}

func (h *Hub) notify(n int) {
	if h.OnClients != nil {
		h.OnClients(h.name, n)
	}
}

// Register adds a client. It fails once the hub has stopped.
func (h *Hub) Register(s member) error {
	select {
	case h.register <- s:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(s member) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("broadcast channel full, dropping message")
	}
}

// BroadcastEvent broadcasts v wrapped in an Envelope of the given type.
func (h *Hub) BroadcastEvent(typ string, v any) error {
	msg, err := Event(typ, v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts an encoded camera frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Frame(data))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
