package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"simplane/internal/sim"
	"simplane/pkg/api"

	"github.com/gorilla/websocket"
)

// SimClient speaks the simplane websocket protocol.
type SimClient struct {
	conn *websocket.Conn

	// Timeout bounds each read. Zero waits forever.
	Timeout time.Duration

	mu     sync.Mutex
	nextID int
}

// ServerError is an error reply from the server.
type ServerError struct {
	Event       string
	Message     string
	Description string
}

func (e *ServerError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Event, e.Message, e.Description)
}

// DialSimClient connects to the websocket endpoint at url.
func DialSimClient(ctx context.Context, url string, timeout time.Duration) (*SimClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return &SimClient{conn: conn, Timeout: timeout}, nil
}

// Send writes a command and returns the cmdid it was tagged with. circuit
// may be nil for commands that do not address a circuit.
func (c *SimClient) Send(cmd string, circuit *sim.CircuitConfig, data any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := api.Request{
		Cmd:   cmd,
		CmdID: json.RawMessage(strconv.Itoa(c.nextID)),
	}
	if circuit != nil {
		raw, err := json.Marshal(circuit)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal circuit config: %w", err)
		}
		req.Context.CircuitConfig = raw
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.Data = raw
	}

	if err := c.conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	return c.nextID, nil
}

// Read returns the next event from the server.
func (c *SimClient) Read() (api.Message, error) {
	if c.Timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	var msg api.Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return api.Message{}, fmt.Errorf("failed to read reply: %w", err)
	}
	return msg, nil
}

// Call sends a command and waits for the first event named event. Error
// replies, under event or as a generic error event, are returned as
// *ServerError.
func (c *SimClient) Call(cmd string, circuit *sim.CircuitConfig, data any, event string) (api.Message, error) {
	if _, err := c.Send(cmd, circuit, data); err != nil {
		return api.Message{}, err
	}
	for {
		msg, err := c.Read()
		if err != nil {
			return api.Message{}, err
		}
		if msg.Cmd != event && msg.Cmd != api.EventError {
			continue
		}
		if err := replyError(msg); err != nil {
			return api.Message{}, err
		}
		return msg, nil
	}
}

// replyError decodes an {error, description} reply.
func replyError(msg api.Message) error {
	var reply api.ErrorReply
	if json.Unmarshal(msg.Data, &reply) != nil || reply.Error == "" {
		return nil
	}
	return &ServerError{Event: msg.Cmd, Message: reply.Error, Description: reply.Description}
}

// Close closes the connection.
func (c *SimClient) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
