// Package registrytest provides an in-memory registry.Conn for tests.
package registrytest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrClosed = errors.New("connection closed")

type Conn struct {
	id string

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeReason string
	closeCalls  int
	failErr     error
}

func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	if c.closed {
		return ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), msg...))
	return nil
}

func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.closeReason = reason
	return nil
}

// FailWith makes every later Send return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Frames decodes every sent message as a JSON object.
func (c *Conn) Frames() []map[string]any {
	var out []map[string]any
	for _, raw := range c.Sent() {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FramesOfType returns sent frames whose "type" field equals typ.
func (c *Conn) FramesOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, f := range c.Frames() {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *Conn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
