package domain

import "context"

// Group is a grove: a set of users sharing calendar events.
type Group struct {
	ID   GroupID
	Name string
}

// GroupSet is a set of group ids.
type GroupSet map[GroupID]struct{}

func NewGroupSet(ids ...GroupID) GroupSet {
	s := make(GroupSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s GroupSet) Contains(id GroupID) bool {
	_, ok := s[id]
	return ok
}

// MembershipLookup resolves the groups a user currently belongs to.
// Implementations must not cache; callers rely on fresh answers.
type MembershipLookup interface {
	GroupsOf(ctx context.Context, user UserID) (GroupSet, error)
}

// GroupSource lists all groups that currently exist.
type GroupSource interface {
	ListGroups(ctx context.Context) ([]Group, error)
}
