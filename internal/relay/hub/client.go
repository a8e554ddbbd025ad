// Package hub tracks live connections and fans frames out to them.
//
// Each Client owns a bounded outbound queue drained by its own writer goroutine, so a
// slow or dead peer never stalls a broadcast and frames reach every peer in the order
// they were queued.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Defaults for NewClient.
const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 5 * time.Second
)

// Transport is the write side of a connection.
type Transport interface {
	Write(ctx context.Context, frame []byte) error
}

// Client is one registered connection.
type Client struct {
	ID          uuid.UUID
	Identity    string
	Addr        string
	ConnectedAt time.Time

	transport    Transport
	writeTimeout time.Duration
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	dropped      atomic.Int64
	sent         atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSendBuffer sets the outbound queue size.
func WithSendBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.send = make(chan []byte, n)
		}
	}
}

// WithWriteTimeout bounds each transport write.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// NewClient creates a client; call Run to start delivering frames.
func NewClient(identity, addr string, t Transport, opts ...ClientOption) *Client {
	c := &Client{
		ID:           uuid.New(),
		Identity:     identity,
		Addr:         addr,
		ConnectedAt:  time.Now(),
		transport:    t,
		writeTimeout: DefaultWriteTimeout,
		send:         make(chan []byte, DefaultSendBuffer),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue queues frame without blocking. It returns false when the client is closed
// or its queue is full; a full queue counts as a drop.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Send marshals v and queues it.
func (c *Client) Send(v any) (bool, error) {
	frame, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return c.Enqueue(frame), nil
}

// Run writes queued frames until ctx ends, the client is closed or a write fails.
// A failed write closes the client.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case frame := <-c.send:
			if err := c.write(ctx, frame); err != nil {
				c.Close()
				return err
			}
		}
	}
}

func (c *Client) write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.transport.Write(ctx, frame); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

// Close stops delivery. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Dropped returns how many frames were discarded because the queue was full.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Sent returns how many frames were written.
func (c *Client) Sent() int64 { return c.sent.Load() }
