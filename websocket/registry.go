package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"debatesite/metrics"
)

// Registry maps user ids to their live connection. A user holds at most one
// connection; registering again replaces and closes the older one.
type Registry struct {
	metrics *metrics.Collector
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

func NewRegistry(collector *metrics.Collector, logger *slog.Logger) *Registry {
	return &Registry{
		metrics: collector,
		logger:  logger.With("component", "registry"),
		clients: make(map[string]*Client),
	}
}

// Register adds a connection. It reports whether an older connection of the
// same user was replaced.
func (r *Registry) Register(c *Client) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, ErrRegistryClosed
	}
	old, replaced := r.clients[c.userID]
	r.clients[c.userID] = c
	n := len(r.clients)
	r.mu.Unlock()

	if replaced {
		go old.Close()
	}
	r.metrics.SetConnections(n)
	return replaced, nil
}

// Unregister removes a connection if it is still the registered one for its
// user. It reports whether the user has no connection left.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	current, ok := r.clients[c.userID]
	if !ok || current != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c.userID)
	n := len(r.clients)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	return true
}

// Send queues a JSON message for a user without blocking. It reports whether
// the message was accepted for delivery.
func (r *Registry) Send(userID string, msg any) bool {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok {
		r.metrics.RecordDeliveryFailure()
		r.logger.Debug("no connection for user", "user_id", userID, "error", ErrNotConnected)
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to encode message", "user_id", userID, "error", err)
		return false
	}
	if !c.enqueue(data) {
		r.metrics.RecordDeliveryFailure()
		r.logger.Warn("dropping slow connection", "user_id", userID, "error", ErrDeliveryFailure)
		go c.Close()
		return false
	}
	return true
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Close refuses new connections and closes every live one.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	r.logger.Info("registry closed", "connections", len(clients))
}
