// Package ami speaks the Asterisk Manager Interface: a long-lived TCP
// connection carrying newline-delimited key/value packets. The Client
// owns the connection and reconnect loop; the Correlator consumes the
// ordered event stream it produces.
package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// reconnectDelay is the fixed backoff between connection attempts.
	reconnectDelay = 5 * time.Second

	// eventQueueSize bounds the reader-to-correlator queue.
	eventQueueSize = 1024

	defaultActionTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Send when no session is established.
var ErrNotConnected = errors.New("not connected to asterisk")

// Config holds the AMI connection parameters.
type Config struct {
	Address  string // host:port
	Username string
	Password string
}

// Client maintains the AMI session. Events flow out through the bounded
// queue; actions are matched to their responses by ActionID.
type Client struct {
	cfg    Config
	logger *slog.Logger
	queue  *eventQueue

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	pending   map[string]chan Event
}

// NewClient creates a client; call Run to establish the session.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		logger:  logger,
		queue:   newEventQueue(eventQueueSize),
		pending: make(map[string]chan Event),
	}
}

// Events returns the queue the correlator loop consumes from.
func (c *Client) Events() *eventQueue {
	return c.queue
}

// Connected reports whether a logged-in session exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run connects and reads events until ctx is cancelled. Connection loss
// triggers a reconnect after a fixed delay, indefinitely; the login
// re-subscribes to the full event set so no re-arm step is needed.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.session(ctx); err != nil {
			if ctx.Err() != nil {
				c.queue.Close()
				return
			}
			c.logger.Error("ami session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			c.queue.Close()
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// session dials, logs in, and pumps packets until the connection drops.
func (c *Client) session(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.cfg.Address, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// The server greets with a protocol banner line before any packet.
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}

	if err := c.login(conn, reader); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("ami connected", "address", c.cfg.Address)

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	// Close the connection when ctx is cancelled so the blocking read
	// below returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		packet, err := readPacket(reader)
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		c.dispatch(packet)
	}
}

func (c *Client) login(conn net.Conn, reader *bufio.Reader) error {
	login := marshalAction("Login", map[string]string{
		"Username": c.cfg.Username,
		"Secret":   c.cfg.Password,
		"Events":   "on",
	})
	if _, err := conn.Write(login); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	response, err := readPacket(reader)
	if err != nil {
		return fmt.Errorf("reading login response: %w", err)
	}
	if !response.Success() {
		return fmt.Errorf("login rejected: %s", response.Get("Message"))
	}
	return nil
}

// dispatch routes a packet: responses (and list events carrying an
// ActionID) go to the waiting Send call, everything else to the queue.
func (c *Client) dispatch(packet Event) {
	if id := packet.Get("ActionID"); id != "" {
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- packet:
			default:
				c.logger.Warn("dropping response for slow action waiter", "action_id", id)
			}
			return
		}
	}

	if packet.Name() == "" {
		return
	}
	if dropped := c.queue.Push(packet); dropped != "" {
		c.logger.Warn("event queue full, dropped status event", "event", dropped)
	}
}

// Send issues an action and waits for its response.
func (c *Client) Send(ctx context.Context, action string, fields map[string]string) (Event, error) {
	responses, err := c.sendAndCollect(ctx, action, fields, false)
	if err != nil {
		return nil, err
	}
	return responses[0], nil
}

// SendList issues an action whose response is a list of events followed
// by a completion event, and returns the list entries.
func (c *Client) SendList(ctx context.Context, action string, fields map[string]string) ([]Event, error) {
	responses, err := c.sendAndCollect(ctx, action, fields, true)
	if err != nil {
		return nil, err
	}

	var entries []Event
	for _, e := range responses {
		if e.IsResponse() || strings.HasSuffix(e.Name(), "Complete") {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Client) sendAndCollect(ctx context.Context, action string, fields map[string]string, list bool) ([]Event, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	actionID := uuid.NewString()
	ch := make(chan Event, 32)
	c.pending[actionID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, actionID)
		c.mu.Unlock()
	}()

	merged := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["ActionID"] = actionID

	if _, err := conn.Write(marshalAction(action, merged)); err != nil {
		return nil, fmt.Errorf("sending action %s: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultActionTimeout)
	defer cancel()

	var collected []Event
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("action %s: %w", action, ctx.Err())
		case packet, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("action %s: %w", action, ErrNotConnected)
			}
			collected = append(collected, packet)
			if !list {
				if packet.IsResponse() && !packet.Success() {
					return nil, fmt.Errorf("action %s failed: %s", action, packet.Get("Message"))
				}
				return collected, nil
			}
			if packet.IsResponse() && !packet.Success() {
				return nil, fmt.Errorf("action %s failed: %s", action, packet.Get("Message"))
			}
			if strings.HasSuffix(packet.Name(), "Complete") {
				return collected, nil
			}
		}
	}
}

// Originate asks the engine to place a call from the given endpoint to an
// extension in the internal context.
func (c *Client) Originate(ctx context.Context, fromExtension, toExtension string) error {
	_, err := c.Send(ctx, "Originate", map[string]string{
		"Channel":  "PJSIP/" + fromExtension,
		"Exten":    toExtension,
		"Context":  "internal",
		"Priority": "1",
		"CallerID": fromExtension,
		"Async":    "true",
	})
	return err
}
