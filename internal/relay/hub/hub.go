package hub

import (
	"encoding/json"
	"log/slog"
)

// Hub broadcasts frames to every registered client.
type Hub struct {
	*Registry
	name string
}

// New creates a hub; name tags its log lines.
func New(name string) *Hub {
	return &Hub{Registry: NewRegistry(), name: name}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.Add(c)
	slog.Debug("client registered", "hub", h.name, "conn_id", c.ID, "identity", c.Identity, "online", h.Len())
}

// Unregister removes and closes c.
func (h *Hub) Unregister(c *Client) {
	if h.Remove(c.ID) {
		slog.Debug("client unregistered", "hub", h.name, "conn_id", c.ID, "identity", c.Identity, "online", h.Len())
	}
	c.Close()
}

// Broadcast marshals v once and queues it for every client registered at the moment
// of the call. It returns how many clients accepted the frame; a client with a full
// queue misses it without affecting the others.
func (h *Hub) Broadcast(v any) (int, error) {
	frame, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return h.BroadcastFrame(frame), nil
}

// BroadcastFrame queues an already encoded frame.
func (h *Hub) BroadcastFrame(frame []byte) int {
	delivered := 0
	for _, c := range h.Snapshot() {
		if c.Enqueue(frame) {
			delivered++
		} else {
			slog.Debug("broadcast frame dropped", "hub", h.name, "conn_id", c.ID, "dropped", c.Dropped())
		}
	}
	return delivered
}
