package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pscheid92/grove/internal/broadcast"
	"github.com/pscheid92/grove/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLookupTimeout = 2 * time.Second

	// StreamEventName is the SSE event name carrying calendar events.
	StreamEventName = "event"
)

// streamEvent is the JSON body of an SSE event frame.
type streamEvent struct {
	domain.Event
	Action domain.Action `json:"action"`
}

// CanView reports whether viewer may see e. known is the set of groups that
// currently exist. members is consulted only for shared events; any lookup
// error denies access.
func CanView(ctx context.Context, e domain.Event, viewer domain.UserID, known domain.GroupSet, members domain.MembershipLookup) bool {
	switch e.Visibility {
	case domain.VisibilityPrivate:
		return e.Owner != nil && *e.Owner == viewer

	case domain.VisibilityShared:
		if e.Group == nil || !known.Contains(*e.Group) {
			return false
		}
		groups, err := members.GroupsOf(ctx, viewer)
		if err != nil {
			slog.DebugContext(ctx, "Membership lookup failed, denying delivery", "user_id", viewer, "group_id", *e.Group, "error", err)
			return false
		}
		return groups.Contains(*e.Group)

	default:
		return false
	}
}

// Notifier delivers envelopes to the sessions allowed to see them.
type Notifier struct {
	hub           *broadcast.Hub
	members       domain.MembershipLookup
	lookupTimeout time.Duration
	lookups       singleflight.Group
}

func NewNotifier(hub *broadcast.Hub, members domain.MembershipLookup, lookupTimeout time.Duration) *Notifier {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Notifier{
		hub:           hub,
		members:       members,
		lookupTimeout: lookupTimeout,
	}
}

// Notify fans env out to every session whose identity passes CanView.
// known is the group set fetched for this message.
func (n *Notifier) Notify(ctx context.Context, env domain.Envelope, known domain.GroupSet) (broadcast.DeliveryReport, error) {
	data, err := json.Marshal(streamEvent{Event: env.Event, Action: env.Action})
	if err != nil {
		return broadcast.DeliveryReport{}, fmt.Errorf("failed to encode stream event: %w", err)
	}

	frame := broadcast.EventFrame(StreamEventName, data)
	filter := func(ctx context.Context, s *broadcast.Session) bool {
		return CanView(ctx, env.Event, s.Identity, known, n)
	}

	report := n.hub.Notify(ctx, frame, filter)
	slog.DebugContext(ctx, "Event delivered",
		"event_id", env.Event.ID,
		"action", env.Action,
		"visibility", env.Event.Visibility,
		"candidates", report.Candidates,
		"eligible", report.Eligible,
		"delivered", report.Delivered,
		"failed", report.Failed)
	return report, nil
}

// GroupsOf looks up membership with a timeout. Concurrent lookups for the
// same user share one query; nothing is kept once it returns.
func (n *Notifier) GroupsOf(ctx context.Context, user domain.UserID) (domain.GroupSet, error) {
	ch := n.lookups.DoChan(strconv.FormatInt(int64(user), 10), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.lookupTimeout)
		defer cancel()
		return n.members.GroupsOf(lookupCtx, user)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domain.GroupSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
