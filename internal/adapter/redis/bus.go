package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/domain"
	"github.com/pscheid92/grove/internal/platform/codec"
	goredis "github.com/redis/go-redis/v9"
)

const subscriptionBufferSize = 256

// Subscriber opens Redis Pub/Sub subscriptions.
type Subscriber struct {
	rdb *goredis.Client
}

var _ domain.EventSubscriber = (*Subscriber)(nil)

func NewSubscriber(rdb *goredis.Client) *Subscriber {
	return &Subscriber{rdb: rdb}
}

// Subscribe subscribes to topic and waits for Redis to confirm it, so a
// broken connection surfaces here rather than as a silent empty stream.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (domain.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to confirm subscription to %q: %w", topic, err)
	}

	sub := &subscription{
		ps:   ps,
		out:  make(chan []byte),
		done: make(chan struct{}),
	}
	go sub.pump(ps.Channel(goredis.WithChannelSize(subscriptionBufferSize)))

	slog.Debug("Subscribed to topic", "topic", topic)
	return sub, nil
}

type subscription struct {
	ps        *goredis.PubSub
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Messages() <-chan []byte {
	return s.out
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.ps.Close()
	})
	return s.closeErr
}

func (s *subscription) pump(ch <-chan *goredis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

// EventPublisher writes envelopes to the event topic.
type EventPublisher struct {
	rdb     *goredis.Client
	topic   string
	metrics *metrics.BusMetrics
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher for topic. m may be nil.
func NewEventPublisher(rdb *goredis.Client, topic string, m *metrics.BusMetrics) *EventPublisher {
	return &EventPublisher{rdb: rdb, topic: topic, metrics: m}
}

func (p *EventPublisher) PublishCreated(ctx context.Context, event domain.Event) error {
	return p.publish(ctx, domain.Envelope{Action: domain.ActionCreated, Event: event})
}

func (p *EventPublisher) PublishUpdated(ctx context.Context, event domain.Event) error {
	return p.publish(ctx, domain.Envelope{Action: domain.ActionUpdated, Event: event})
}

// PublishDeleted announces a removed event. event must still carry its
// visibility, owner and group so subscribers can route the deletion.
func (p *EventPublisher) PublishDeleted(ctx context.Context, event domain.Event) error {
	return p.publish(ctx, domain.Envelope{Action: domain.ActionDeleted, Event: event})
}

func (p *EventPublisher) publish(ctx context.Context, env domain.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event %d: %w", env.Action, env.Event.ID, err)
	}

	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(string(env.Action)).Inc()
	}
	slog.DebugContext(ctx, "Event published", "topic", p.topic, "event_id", env.Event.ID, "action", env.Action)
	return nil
}
