package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/session"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Broker)(nil)
	_ ext.SessionStarted = (*Broker)(nil)
	_ ext.StepChanged    = (*Broker)(nil)
	_ ext.SessionEnded   = (*Broker)(nil)
	_ ext.Shutdown       = (*Broker)(nil)
	_ session.Notifier   = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 64

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It receives session lifecycle
// hooks and tab notices and fans them out to subscribers via topics.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a subscriber for tab on its tab topic plus any extra
// topics.
func (b *Broker) Subscribe(subscriberID string, tab int, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, tab, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	if tab != 0 {
		b.topics.Subscribe(TabTopic(tab), sub)
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	sub, ok := b.GetSubscriber(subscriberID)
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish stamps evt and broadcasts it on the global topics plus the
// given ones. It returns the number of subscribers reached.
func (b *Broker) publish(evt *Event, topics ...string) int {
	if evt.ID == "" {
		evt.ID = id.NewEventID().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	all := make([]string, 0, len(topics)+2)
	all = append(all, TopicFirehose)
	if evt.Type != EventNotice {
		all = append(all, TopicSessions)
	}
	all = append(all, topics...)

	delivered := b.topics.Broadcast(all, evt)
	b.totalPublished.Add(int64(delivered))
	return delivered
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func sessionData(s *session.Session) SessionEventData {
	return SessionEventData{
		SessionID:    s.ID.String(),
		WorkflowID:   s.WorkflowID,
		WorkflowName: s.WorkflowName,
		State:        string(s.State),
		StepIndex:    s.StepIndex,
		TotalSteps:   s.TotalSteps,
		PrimaryTabID: s.Tabs.Primary,
	}
}

func tabTopics(s *session.Session) []string {
	out := make([]string, 0, len(s.Tabs.IDs))
	for _, tab := range s.Tabs.IDs {
		out = append(out, TabTopic(tab))
	}
	return out
}

// ── Tab notices ─────────────────────────────────────

// Notify implements session.Notifier. It returns walkthrough.ErrTabGone
// when no connection for tab took the notice.
func (b *Broker) Notify(_ context.Context, tab int, n session.Notice) error {
	topic := TabTopic(tab)
	if b.topics.SubscriberCount(topic) == 0 {
		b.totalDropped.Add(1)
		return walkthrough.ErrTabGone
	}
	b.publish(&Event{
		Type:  EventNotice,
		Topic: topic,
		Data:  mustMarshal(n),
	}, topic)
	return nil
}

// ── Session lifecycle hooks ─────────────────────────

func (b *Broker) OnSessionStarted(_ context.Context, s *session.Session) error {
	b.publish(&Event{
		Type:  EventSessionStarted,
		Topic: SessionTopic(s.ID.String()),
		Data:  mustMarshal(sessionData(s)),
	}, append(tabTopics(s), SessionTopic(s.ID.String()))...)
	return nil
}

func (b *Broker) OnStepChanged(_ context.Context, s *session.Session, from int) error {
	data := sessionData(s)
	data.FromStep = &from
	b.publish(&Event{
		Type:  EventSessionStepChanged,
		Topic: SessionTopic(s.ID.String()),
		Data:  mustMarshal(data),
	}, append(tabTopics(s), SessionTopic(s.ID.String()))...)
	return nil
}

// OnSessionEnded publishes on the session topics only; tabs hear about
// the end through Notify.
func (b *Broker) OnSessionEnded(_ context.Context, s *session.Session, reason session.EndReason) error {
	data := sessionData(s)
	data.Reason = string(reason)
	b.publish(&Event{
		Type:  EventSessionEnded,
		Topic: SessionTopic(s.ID.String()),
		Data:  mustMarshal(data),
	}, SessionTopic(s.ID.String()))
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		b.topics.UnsubscribeAll(key.(string)) //nolint:errcheck // sync.Map always stores string keys
		value.(*Subscriber).Close()           //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
