package scheduler

import (
	"sync"

	"simplane/internal/sim"
)

// Channel is the unbounded, ordered result channel between worker runtimes
// and the watcher. Send never blocks, so a slow event loop never stalls a
// worker's output pipe.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []sim.Message
	closed bool
}

// NewChannel creates an open channel.
func NewChannel() *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send appends msg. It reports false and drops msg once the channel is
// closed.
func (c *Channel) Send(msg sim.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.items = append(c.items, msg)
	c.cond.Signal()
	return true
}

// Receive blocks until a message is available. It returns false once the
// channel is closed and drained.
func (c *Channel) Receive() (sim.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.items) == 0 && !c.closed {
		c.cond.Wait()
	}
	if len(c.items) == 0 {
		return sim.Message{}, false
	}
	msg := c.items[0]
	c.items[0] = sim.Message{}
	c.items = c.items[1:]
	return msg, true
}

// Close stops accepting messages. Messages already sent can still be
// received.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// Len returns the number of messages waiting to be received.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
