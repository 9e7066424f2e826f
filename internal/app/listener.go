package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/domain"
	"github.com/pscheid92/grove/internal/platform/codec"
	"github.com/pscheid92/grove/internal/platform/correlation"
)

// ErrSubscriptionClosed is returned by Run when the bus ends the subscription
// while the listener is still expected to be running.
var ErrSubscriptionClosed = errors.New("event subscription closed")

// Listener consumes event envelopes from a bus topic and hands them to the
// Notifier, one message at a time.
type Listener struct {
	bus      domain.EventSubscriber
	topic    string
	groups   domain.GroupSource
	notifier *Notifier
	metrics  *metrics.BusMetrics
}

// NewListener creates a listener. m may be nil.
func NewListener(bus domain.EventSubscriber, topic string, groups domain.GroupSource, notifier *Notifier, m *metrics.BusMetrics) *Listener {
	return &Listener{
		bus:      bus,
		topic:    topic,
		groups:   groups,
		notifier: notifier,
		metrics:  m,
	}
}

// Run subscribes to the topic and processes messages until ctx is cancelled.
// A subscribe failure is returned immediately; bad messages are skipped.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.bus.Subscribe(ctx, l.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", l.topic, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			slog.Warn("Failed to close subscription", "topic", l.topic, "error", err)
		}
	}()

	slog.Info("Listener started", "topic", l.topic)
	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Listener stopped", "topic", l.topic)
			return nil
		case payload, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					slog.Info("Listener stopped", "topic", l.topic)
					return nil
				}
				return ErrSubscriptionClosed
			}
			l.handle(correlation.WithID(ctx, correlation.NewID()), payload)
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	if l.metrics != nil {
		l.metrics.MessagesReceived.Inc()
	}

	env, err := decodeEnvelope(payload)
	if err != nil {
		attrs := []any{"topic", l.topic, "bytes", len(payload), "error", err}
		if diag, derr := codec.Diagnose(payload); derr == nil {
			attrs = append(attrs, "diagnostic", truncate(diag, maxDiagnosticLen))
		}
		slog.WarnContext(ctx, "Skipping undecodable message", attrs...)
		if l.metrics != nil {
			l.metrics.DecodeFailures.Inc()
		}
		return
	}

	groups, err := l.groups.ListGroups(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch groups, skipping message", "event_id", env.Event.ID, "action", env.Action, "error", err)
		if l.metrics != nil {
			l.metrics.GroupFetchErrors.Inc()
		}
		return
	}

	known := make(domain.GroupSet, len(groups))
	for _, g := range groups {
		known[g.ID] = struct{}{}
	}

	if _, err := l.notifier.Notify(ctx, env, known); err != nil {
		slog.ErrorContext(ctx, "Failed to notify sessions", "event_id", env.Event.ID, "action", env.Action, "error", err)
		return
	}

	if l.metrics != nil {
		l.metrics.MessagesHandled.WithLabelValues(string(env.Action)).Inc()
	}
}

const maxDiagnosticLen = 256

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func decodeEnvelope(payload []byte) (domain.Envelope, error) {
	var env domain.Envelope
	if err := codec.Unmarshal(payload, &env); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %w", domain.ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return domain.Envelope{}, err
	}
	return env, nil
}
