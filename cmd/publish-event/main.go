// Command publish-event writes a single event envelope to the bus topic. It is
// the operator's way to exercise a running grove without the CRUD layer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pscheid92/grove/internal/adapter/redis"
	"github.com/pscheid92/grove/internal/domain"
	"github.com/pscheid92/grove/internal/platform/logging"
)

const publishTimeout = 5 * time.Second

type eventFlags struct {
	action     string
	id         int64
	title      string
	visibility string
	owner      int64
	group      int64
	startsAt   string
	duration   time.Duration
}

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		topic    = flag.String("topic", envOr("EVENT_TOPIC", "grove:events"), "Bus topic (or set EVENT_TOPIC env)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
		ef       eventFlags
	)
	flag.StringVar(&ef.action, "action", string(domain.ActionCreated), "created, updated or deleted")
	flag.Int64Var(&ef.id, "id", 0, "Event id")
	flag.StringVar(&ef.title, "title", "", "Event title")
	flag.StringVar(&ef.visibility, "visibility", string(domain.VisibilityShared), "private or shared")
	flag.Int64Var(&ef.owner, "owner", 0, "Owner user id (private events)")
	flag.Int64Var(&ef.group, "group", 0, "Grove id (shared events)")
	flag.StringVar(&ef.startsAt, "starts-at", "", "Start time, RFC 3339 (defaults to now)")
	flag.DurationVar(&ef.duration, "duration", time.Hour, "Event length")
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	action, event, err := buildEvent(ef, time.Now())
	if err != nil {
		log.Fatalf("Invalid event: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	publisher := redis.NewEventPublisher(rdb, *topic, nil)
	if err := publish(ctx, publisher, action, event); err != nil {
		log.Fatalf("Publish failed: %v", err)
	}

	slog.Info("Event published", "topic", *topic, "action", action, "event_id", event.ID, "visibility", event.Visibility)
}

func publish(ctx context.Context, p domain.EventPublisher, action domain.Action, event domain.Event) error {
	switch action {
	case domain.ActionCreated:
		return p.PublishCreated(ctx, event)
	case domain.ActionUpdated:
		return p.PublishUpdated(ctx, event)
	case domain.ActionDeleted:
		return p.PublishDeleted(ctx, event)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action)
	}
}

func buildEvent(ef eventFlags, now time.Time) (domain.Action, domain.Event, error) {
	action := domain.Action(ef.action)
	if !action.Valid() {
		return "", domain.Event{}, fmt.Errorf("%w: %q", domain.ErrUnknownAction, ef.action)
	}
	if ef.id <= 0 {
		return "", domain.Event{}, errors.New("--id must be positive")
	}

	start := now.UTC().Truncate(time.Second)
	if ef.startsAt != "" {
		t, err := time.Parse(time.RFC3339, ef.startsAt)
		if err != nil {
			return "", domain.Event{}, fmt.Errorf("--starts-at: %w", err)
		}
		start = t
	}

	event := domain.Event{
		ID:         domain.EventID(ef.id),
		Title:      ef.title,
		StartsAt:   start,
		EndsAt:     start.Add(ef.duration),
		Visibility: domain.Visibility(ef.visibility),
	}

	switch event.Visibility {
	case domain.VisibilityPrivate:
		if ef.owner <= 0 {
			return "", domain.Event{}, errors.New("private events need --owner")
		}
		event.Owner = domain.OwnedBy(domain.UserID(ef.owner))
	case domain.VisibilityShared:
		if ef.group <= 0 {
			return "", domain.Event{}, errors.New("shared events need --group")
		}
		event.Group = domain.InGroup(domain.GroupID(ef.group))
		if ef.owner > 0 {
			event.Owner = domain.OwnedBy(domain.UserID(ef.owner))
		}
	default:
		return "", domain.Event{}, fmt.Errorf("%w: %q", domain.ErrUnknownVisibility, ef.visibility)
	}

	return action, event, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeURL hides the password in a Redis URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
