package domain

import (
	"fmt"
	"time"
)

type (
	UserID  int64
	GroupID int64
	EventID int64
)

// Visibility controls who may see a calendar event.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityShared
}

// Action is the kind of change an envelope reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// Event is a calendar entry as seen by the distribution pipeline. It carries
// identity references only; owner and group are resolved at delivery time.
type Event struct {
	ID          EventID    `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Visibility  Visibility `json:"visibility"`
	Owner       *UserID    `json:"owner,omitempty"`
	Group       *GroupID   `json:"group,omitempty"`
}

// Envelope is the bus message wrapping a change to an Event.
// Deletes carry the full visibility metadata of the removed event.
type Envelope struct {
	Action Action `json:"action"`
	Event  Event  `json:"payload"`
}

// Validate checks the envelope for values the pipeline cannot route.
func (e Envelope) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidEnvelope, ErrUnknownAction, e.Action)
	}
	if !e.Event.Visibility.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidEnvelope, ErrUnknownVisibility, e.Event.Visibility)
	}
	return nil
}

// OwnedBy returns a pointer to id, for building events in tests and publishers.
func OwnedBy(id UserID) *UserID { return &id }

// InGroup returns a pointer to id.
func InGroup(id GroupID) *GroupID { return &id }
