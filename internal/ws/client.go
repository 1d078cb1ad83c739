// Package ws provides the ServerTap console WebSocket client.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
	"github.com/frederikbeimgraben/mcssh/internal/protocol"
)

// ErrNotConnected is returned by Send when neither the console socket nor
// the REST fallback is available.
var ErrNotConnected = errors.New("console not connected")

const (
	writeTimeout        = 10 * time.Second
	maxReconnectGap     = 30 * time.Second
	defaultPingInterval = 30 * time.Second
)

// MessageStore persists console messages for de-duplication.
type MessageStore interface {
	SeenMessage(ctx context.Context, fingerprint string) (bool, error)
	SaveMessage(ctx context.Context, record *domain.ConsoleRecord) error
	LatestTimestamp(ctx context.Context) (int64, error)
}

// Publisher receives formatted console lines.
type Publisher interface {
	Publish(line string)
}

// CommandLearner is told about commands discovered in the console.
type CommandLearner interface {
	LearnCommand(ctx context.Context, name string)
}

// Executor runs a command when the socket is down.
type Executor interface {
	Exec(ctx context.Context, command string) error
}

// Options configures a Client.
type Options struct {
	URL            string
	Secret         string
	ReconnectDelay time.Duration
	// PingInterval is how often the socket is pinged. A connection that
	// stays silent for ReadTimeout, default twice the ping interval, is
	// dropped and redialled.
	PingInterval time.Duration
	ReadTimeout  time.Duration
	// Location used to format timestamps, nil for local time.
	Location *time.Location
}

// Client maintains the console connection.
type Client struct {
	opts      Options
	dialer    *websocket.Dialer
	store     MessageStore
	publisher Publisher
	learner   CommandLearner
	fallback  Executor

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	latest atomic.Int64
}

// NewClient creates a new console client. learner and fallback may be nil.
func NewClient(opts Options, store MessageStore, publisher Publisher, learner CommandLearner, fallback Executor) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * opts.PingInterval
	}
	return &Client{
		opts:      opts,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		store:     store,
		publisher: publisher,
		learner:   learner,
		fallback:  fallback,
	}
}

// SetLearner sets the command learner. It must be called before Run.
func (c *Client) SetLearner(learner CommandLearner) {
	c.learner = learner
}

// Run keeps the console connection alive until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	if latest, err := c.store.LatestTimestamp(ctx); err != nil {
		log.Printf("[ws] Failed to load latest timestamp: %v", err)
	} else {
		c.latest.Store(latest)
	}

	delay := c.opts.ReconnectDelay
	for {
		log.Printf("[ws] Connecting to %s", c.opts.URL)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[ws] Connect failed: %v (retrying in %s)", err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectGap {
				delay = maxReconnectGap
			}
			continue
		}

		log.Printf("[ws] Connected")
		delay = c.opts.ReconnectDelay
		c.setConn(conn)
		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[ws] Closed connection, reconnecting: %v", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Cookie", fmt.Sprintf("%s=%s", protocol.CookieKey, c.opts.Secret))
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// readLoop reads frames until the connection fails, goes silent, or ctx
// is done.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.handleFrame(ctx, data)
	}
}

// pingLoop pings conn until done. It closes conn when ctx ends or a ping
// cannot be written.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[ws] Ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

// handleFrame filters, stores and publishes a single console frame.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	msg, err := protocol.ParseConsoleMessage(data)
	if err != nil {
		log.Printf("[ws] Error parsing message: %v", err)
		return
	}

	if msg.TimestampMillis < c.latest.Load() {
		return
	}

	fingerprint := protocol.Fingerprint(data)
	seen, err := c.store.SeenMessage(ctx, fingerprint)
	if err != nil {
		log.Printf("[ws] Error checking message: %v", err)
	}
	if seen {
		return
	}

	record := &domain.ConsoleRecord{
		Fingerprint:     fingerprint,
		TimestampMillis: msg.TimestampMillis,
		Level:           msg.Level,
		Message:         msg.Message,
	}
	if err := c.store.SaveMessage(ctx, record); err != nil {
		log.Printf("[ws] Error saving message: %v", err)
	}
	c.latest.Store(msg.TimestampMillis)

	if name, ok := protocol.CommandName(msg.Message); ok && c.learner != nil {
		c.learner.LearnCommand(ctx, name)
	}

	c.publisher.Publish(protocol.Format(msg, c.opts.Location))
}

// Send writes a console command. Without a live socket it falls back to
// the REST executor.
func (c *Client) Send(ctx context.Context, command string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, []byte(command))
		c.writeMu.Unlock()
		if err == nil {
			return nil
		}
		log.Printf("[ws] Write failed, falling back: %v", err)
	}

	if c.fallback != nil {
		if err := c.fallback.Exec(ctx, command); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		return nil
	}
	return ErrNotConnected
}

// Connected reports whether the console socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
