// Package gateway serves the websocket protocol. Each connection's state is
// owned by the event loop: a reader goroutine posts decoded commands to the
// loop and a writer goroutine drains the connection's outbox.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"simplane/internal/chunk"
	"simplane/internal/circuit"
	"simplane/internal/scheduler"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Loop is the event loop connection state lives on.
type Loop interface {
	Submit(fn func()) error
}

// Scheduler is the part of the job scheduler the gateway uses.
type Scheduler interface {
	Submit(circuit, simulation json.RawMessage, sub scheduler.Subscriber) (int64, error)
	Cancel(id int64)
}

// Options configures a Gateway.
type Options struct {
	// Maintenance is reported by get_server_status.
	Maintenance bool

	// ChunkCount is the target number of chunks per bulk stream
	// (default: chunk.DefaultCount).
	ChunkCount int

	// RateLimit is the number of commands per second a connection may send.
	// Zero means unlimited.
	RateLimit float64
	RateBurst int

	// WriteTimeout bounds a single websocket write (default: 10s).
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Gateway upgrades HTTP requests to websocket connections and serves the
// command protocol on them.
type Gateway struct {
	loop      Loop
	scheduler Scheduler
	store     circuit.Store
	opts      Options
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	connections metric.Int64UpDownCounter
	commands    metric.Int64Counter
	chunks      metric.Int64Counter

	mu    sync.Mutex
	conns map[string]*conn
}

// New creates a gateway.
func New(loop Loop, sched Scheduler, store circuit.Store, opts Options) (*Gateway, error) {
	if loop == nil || sched == nil || store == nil {
		return nil, fmt.Errorf("event loop, scheduler and circuit store are required")
	}
	if opts.ChunkCount <= 0 {
		opts.ChunkCount = chunk.DefaultCount
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := &Gateway{
		loop:      loop,
		scheduler: sched,
		store:     store,
		opts:      opts,
		logger:    opts.Logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browser clients are served from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}

	meter := otel.Meter("simplane-gateway")
	var err error
	if g.connections, err = meter.Int64UpDownCounter("simplane.gateway.connections",
		metric.WithDescription("Open websocket connections")); err != nil {
		return nil, err
	}
	if g.commands, err = meter.Int64Counter("simplane.gateway.commands",
		metric.WithDescription("Commands received, by command")); err != nil {
		return nil, err
	}
	if g.chunks, err = meter.Int64Counter("simplane.gateway.chunks",
		metric.WithDescription("Bulk data chunks delivered, by event")); err != nil {
		return nil, err
	}

	return g, nil
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(g, ws)
	g.track(c)
	defer g.untrack(c)

	c.serve()
}

// Close closes every open connection. Their jobs are cancelled as the
// connections wind down.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// Len returns the number of open connections.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) track(c *conn) {
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	g.connections.Add(context.Background(), 1)
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	g.connections.Add(context.Background(), -1)
}

// Ready reports whether the event loop is running tasks: it posts a no-op
// and waits for it.
func (g *Gateway) Ready(ctx context.Context) error {
	done := make(chan struct{})
	if err := g.loop.Submit(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event loop is not responding: %w", ctx.Err())
	}
}

func (g *Gateway) post(fn func()) bool {
	if err := g.loop.Submit(fn); err != nil {
		g.logger.Debug("event loop closed, dropping task", "error", err)
		return false
	}
	return true
}
