package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"simplane/internal/logger"
	"simplane/pkg/api"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// outbox is the unbounded queue of events waiting to be written.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []api.Message
	closed bool
}

func newOutbox() *outbox {
	o := &outbox{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(msg api.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.items = append(o.items, msg)
	o.cond.Signal()
}

func (o *outbox) pop() (api.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.items) == 0 && !o.closed {
		o.cond.Wait()
	}
	if o.closed {
		return api.Message{}, false
	}
	msg := o.items[0]
	o.items[0] = api.Message{}
	o.items = o.items[1:]
	return msg, true
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.items = nil
	o.cond.Broadcast()
}

type conn struct {
	id      string
	g       *Gateway
	ws      *websocket.Conn
	logger  *slog.Logger
	limiter *rate.Limiter
	out     *outbox

	// ctx is cancelled when the connection closes and aborts store reads.
	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned
	sim    *simRun
	closed bool
}

func newConn(g *Gateway, ws *websocket.Conn) *conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithConnID(context.Background(), id))

	c := &conn{
		id:     id,
		g:      g,
		ws:     ws,
		logger: logger.FromContext(ctx, g.logger),
		out:    newOutbox(),
		ctx:    ctx,
		cancel: cancel,
	}
	if g.opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(g.opts.RateLimit), g.opts.RateBurst)
	}
	return c
}

// serve runs the writer and blocks reading commands until the client goes
// away.
func (c *conn) serve() {
	c.logger.Info("client connected", "remote", c.ws.RemoteAddr().String())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()

	c.cancel()
	if !c.g.post(c.onClose) {
		c.out.close()
	}
	<-writerDone
	c.ws.Close()
	c.logger.Info("client disconnected")
}

func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req api.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.g.post(func() {
				c.replyError(api.EventError, nil, "malformed command", err.Error())
			})
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("command rate limit exceeded", "cmd", req.Cmd)
			c.g.post(func() {
				c.replyError(api.EventError, req.CmdID, "rate limit exceeded", req.Cmd)
			})
			continue
		}

		if !c.g.post(func() { c.handle(req) }) {
			return
		}
	}
}

func (c *conn) writeLoop() {
	for {
		msg, ok := c.out.pop()
		if !ok {
			return
		}
		c.ws.SetWriteDeadline(time.Now().Add(c.g.opts.WriteTimeout))
		if err := c.ws.WriteJSON(msg); err != nil {
			c.logger.Warn("websocket write failed", "cmd", msg.Cmd, "error", err)
			// unblocks the reader, which winds the connection down
			c.ws.Close()
			return
		}
	}
}

// onClose runs on the loop once the client is gone.
func (c *conn) onClose() {
	c.closed = true
	c.out.close()
	if c.sim != nil {
		c.logger.Info("cancelling simulation of closed connection", "job_id", c.sim.id)
		c.g.scheduler.Cancel(c.sim.id)
		c.sim = nil
	}
}

// send queues an event. It must be called on the loop.
func (c *conn) send(cmd string, data any) {
	if c.closed {
		return
	}
	msg, err := api.NewMessage(cmd, data)
	if err != nil {
		c.logger.Error("failed to encode event", "cmd", cmd, "error", err)
		return
	}
	c.out.push(msg)
}

func (c *conn) replyError(event string, cmdID json.RawMessage, msg, description string) {
	c.send(event, api.ErrorReply{Error: msg, Description: description, CmdID: cmdID})
}
