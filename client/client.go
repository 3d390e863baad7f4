// Package client is a Go client for the page-context wire protocol. It
// speaks for one browser tab: it dials the daemon's socket, says hello
// with its tab id, and then issues page notices and navigation commands.
//
// Usage:
//
//	c, err := client.Dial("ws://127.0.0.1:8080/v1/wire",
//	    client.WithToken("ext_..."),
//	    client.WithTab(12),
//	)
//	defer c.Close()
//
//	ready, err := c.Ready(ctx, "https://app.example.com/")
//	res, err := c.Next(ctx)
//
//	for evt := range c.Events() {
//	    fmt.Println(evt.Type)
//	}
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/walkthrough/stream"
	"github.com/xraph/walkthrough/wire"
)

// creditBatch is how many events are consumed before credits are
// returned to the server.
const creditBatch = 64

// Error is an error frame returned by the server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("walkthrough/client: server error %d: %s", e.Code, e.Message)
}

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("walkthrough/client: closed")

// Client is one tab's connection to a walkthrough daemon.
type Client struct {
	url    string
	token  string
	tab    int
	codec  wire.Codec
	logger *slog.Logger

	// Reconnection.
	reconnect  bool
	maxRetries int
	baseDelay  time.Duration

	conn   net.Conn
	mu     sync.Mutex
	closed atomic.Bool
	connID string

	// Request-response correlation.
	pending sync.Map // frameID → chan *wire.Frame

	events   chan *stream.Event
	subs     sync.Map // channel → chan *stream.Event
	consumed atomic.Int64
}

// Dial connects to a walkthrough daemon and says hello.
func Dial(url string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), url, opts...)
}

// DialContext connects to a walkthrough daemon with a context.
func DialContext(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:        url,
		codec:      &wire.JSONCodec{},
		logger:     slog.Default(),
		maxRetries: 5,
		baseDelay:  time.Second,
		events:     make(chan *stream.Event, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tab <= 0 {
		return nil, fmt.Errorf("walkthrough/client: dial: tab id is required")
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("walkthrough/client: dial: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// connect establishes the socket and completes the hello exchange. It
// reads the hello response directly since the read loop is not running
// yet.
func (c *Client) connect(ctx context.Context) error {
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	hello, err := wire.NewRequestFrame(wire.MethodHello, wire.HelloRequest{
		Token:  c.token,
		TabID:  c.tab,
		Format: c.codec.Name(),
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("marshal hello: %w", err)
	}
	data, err := json.Marshal(hello)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		_ = conn.Close()
		return fmt.Errorf("write hello: %w", err)
	}

	type readResult struct {
		resp *wire.Frame
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			resultCh <- readResult{err: fmt.Errorf("read hello response: %w", err)}
			return
		}
		// Rejections arrive as JSON text before the codec applies.
		codec := c.codec
		if op == ws.OpText {
			codec = &wire.JSONCodec{}
		}
		frame, err := codec.Decode(data)
		resultCh <- readResult{resp: frame, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			_ = conn.Close()
			return result.err
		}
		if result.resp.Type == wire.FrameErr {
			_ = conn.Close()
			return frameError(result.resp)
		}
		var resp wire.HelloResponse
		if err := json.Unmarshal(result.resp.Data, &resp); err != nil {
			_ = conn.Close()
			return fmt.Errorf("unmarshal hello response: %w", err)
		}
		c.mu.Lock()
		c.conn = conn
		c.connID = resp.ConnID
		c.mu.Unlock()
		c.logger.Info("walkthrough client connected",
			slog.String("conn_id", resp.ConnID),
			slog.Int("tab_id", resp.TabID),
			slog.String("format", resp.Format),
		)
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-time.After(wire.DefaultHelloTimeout):
		_ = conn.Close()
		return fmt.Errorf("hello timeout")
	}
}

func (c *Client) readLoop() {
	for {
		if c.closed.Load() {
			return
		}
		data, _, err := wsutil.ReadServerData(c.conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("walkthrough client read error", slog.String("error", err.Error()))
			if c.reconnect {
				c.tryReconnect()
			}
			return
		}

		frame, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("walkthrough client: invalid frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Type {
		case wire.FrameResponse, wire.FrameErr:
			if val, ok := c.pending.Load(frame.CorrelID); ok {
				ch := val.(chan *wire.Frame) //nolint:errcheck // pending map always stores chan *wire.Frame
				select {
				case ch <- frame:
				default:
				}
			}
		case wire.FrameEvent:
			c.deliver(frame)
		case wire.FramePong:
		}
	}
}

// deliver routes an event frame to Events or a topic subscription, and
// returns credits to the server in batches.
func (c *Client) deliver(frame *wire.Frame) {
	var evt stream.Event
	if err := json.Unmarshal(frame.Data, &evt); err != nil {
		return
	}

	target := c.events
	if val, ok := c.subs.Load(frame.Channel); ok {
		target = val.(chan *stream.Event) //nolint:errcheck // subs map always stores chan *stream.Event
	}
	select {
	case target <- &evt:
	default:
		// Drop if the consumer is slow.
	}

	if c.consumed.Add(1)%creditBatch == 0 {
		if err := c.writeFrame(&wire.Frame{
			ID:        wire.GenerateFrameID(),
			Type:      wire.FrameRequest,
			Credits:   creditBatch,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			c.logger.Warn("walkthrough client: return credits", slog.String("error", err.Error()))
		}
	}
}

// tryReconnect attempts to reconnect with exponential backoff.
func (c *Client) tryReconnect() {
	delay := c.baseDelay
	for i := range c.maxRetries {
		c.logger.Info("walkthrough client reconnecting",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
		)
		time.Sleep(delay)
		if c.closed.Load() {
			return
		}

		if err := c.connect(context.Background()); err != nil {
			c.logger.Warn("walkthrough client reconnect failed", slog.String("error", err.Error()))
			delay = min(delay*2, 30*time.Second)
			continue
		}

		go c.readLoop()
		return
	}
	c.logger.Error("walkthrough client: max reconnection attempts reached")
}

// request sends a request frame and waits for the correlated response.
func (c *Client) request(ctx context.Context, method string, data any) (*wire.Frame, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := wire.NewRequestFrame(method, data)
	if err != nil {
		return nil, fmt.Errorf("marshal request data: %w", err)
	}

	respCh := make(chan *wire.Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == wire.FrameErr {
			return nil, frameError(resp)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// call issues method and decodes the response payload into T.
func call[T any](ctx context.Context, c *Client, method string, data any) (*T, error) {
	resp, err := c.request(ctx, method, data)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("walkthrough/client: decode %s response: %w", method, err)
	}
	return &out, nil
}

func (c *Client) writeFrame(frame *wire.Frame) error {
	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codec.Binary() {
		return wsutil.WriteClientBinary(c.conn, data)
	}
	return wsutil.WriteClientText(c.conn, data)
}

func frameError(f *wire.Frame) error {
	if f.Error == nil {
		return &Error{Code: wire.ErrCodeInternal, Message: "unknown error"}
	}
	return &Error{Code: f.Error.Code, Message: f.Error.Message}
}

// ConnID returns the connection ID assigned by the server.
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Tab returns the tab this client speaks for.
func (c *Client) Tab() int { return c.tab }

// Events returns the tab's session notices and lifecycle events.
func (c *Client) Events() <-chan *stream.Event { return c.events }

// Close closes the client connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.subs.Range(func(key, val any) bool {
		close(val.(chan *stream.Event)) //nolint:errcheck // subs map always stores chan *stream.Event
		c.subs.Delete(key)
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
