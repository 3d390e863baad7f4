package client

import (
	"context"
	"fmt"

	"github.com/xraph/walkthrough/stream"
	"github.com/xraph/walkthrough/wire"
)

// Subscribe subscribes to a stream topic in addition to the tab topic
// and returns a channel of its events. The channel is closed when the
// client disconnects or Unsubscribe is called.
//
// Topics follow the stream convention:
//   - "session:<sessionID>"  events for one session
//   - "sessions"             all session lifecycle events
//   - "firehose"             everything
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *stream.Event, error) {
	ch := make(chan *stream.Event, 64)
	c.subs.Store(channel, ch)

	if _, err := c.request(ctx, wire.MethodSubscribe, wire.SubscribeRequest{Channel: channel}); err != nil {
		c.subs.Delete(channel)
		return nil, fmt.Errorf("subscribe to %q: %w", channel, err)
	}
	return ch, nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	_, err := c.request(ctx, wire.MethodUnsubscribe, wire.UnsubscribeRequest{Channel: channel})

	if val, ok := c.subs.LoadAndDelete(channel); ok {
		close(val.(chan *stream.Event)) //nolint:errcheck // subs map always stores chan *stream.Event
	}
	return err
}

// Watch subscribes to the events of one session.
func (c *Client) Watch(ctx context.Context, sessionID string) (<-chan *stream.Event, error) {
	return c.Subscribe(ctx, stream.SessionTopic(sessionID))
}
