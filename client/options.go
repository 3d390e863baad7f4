package client

import (
	"log/slog"
	"time"

	"github.com/xraph/walkthrough/wire"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the authentication token sent in the hello frame.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTab sets the browser tab the client speaks for. Required.
func WithTab(tab int) Option {
	return func(c *Client) { c.tab = tab }
}

// WithFormat sets the wire format for frame encoding.
// Supported values: "json" (default), "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.codec = wire.GetCodec(format) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect enables automatic reconnection with the given parameters.
func WithReconnect(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}
