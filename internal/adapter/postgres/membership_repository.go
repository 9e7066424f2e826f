package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/grove/internal/adapter/metrics"
	"github.com/pscheid92/grove/internal/domain"
	"github.com/sony/gobreaker"
)

const (
	breakerComponent = "postgres"

	queryGroupsOf   = `SELECT grove_id FROM grove_members WHERE user_id = $1`
	queryListGroups = `SELECT id, name FROM groves ORDER BY id`
)

// querier is the subset of *pgxpool.Pool the repository needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MembershipRepo answers membership and group queries straight from the
// database. Results are never cached. All queries share one circuit breaker;
// while it is open every call fails immediately, which callers treat as
// "not visible".
type MembershipRepo struct {
	db querier
	cb *gobreaker.CircuitBreaker
}

var (
	_ domain.MembershipLookup = (*MembershipRepo)(nil)
	_ domain.GroupSource      = (*MembershipRepo)(nil)
)

// BreakerSettings tunes the repository's circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // failures that open the breaker
	OpenTimeout         time.Duration // time before a half-open probe
}

var DefaultBreakerSettings = BreakerSettings{
	ConsecutiveFailures: 5,
	OpenTimeout:         30 * time.Second,
}

// NewMembershipRepo creates the repository. m may be nil.
func NewMembershipRepo(db querier, settings BreakerSettings, m *metrics.BreakerMetrics) *MembershipRepo {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerComponent,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a database fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			m.Record(name, to.String(), stateToFloat(to))
		},
	})

	return &MembershipRepo{db: db, cb: cb}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return metrics.BreakerClosed
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return -1
	}
}

// State returns the current breaker state.
func (r *MembershipRepo) State() gobreaker.State {
	return r.cb.State()
}

func (r *MembershipRepo) GroupsOf(ctx context.Context, user domain.UserID) (domain.GroupSet, error) {
	res, err := r.cb.Execute(func() (any, error) {
		rows, err := r.db.Query(ctx, queryGroupsOf, int64(user))
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowTo[int64])
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get groups of user %d: %w", user, err)
	}

	ids := res.([]int64)
	groups := make(domain.GroupSet, len(ids))
	for _, id := range ids {
		groups[domain.GroupID(id)] = struct{}{}
	}
	return groups, nil
}

func (r *MembershipRepo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	res, err := r.cb.Execute(func() (any, error) {
		rows, err := r.db.Query(ctx, queryListGroups)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Group, error) {
			var (
				id   int64
				name string
			)
			if err := row.Scan(&id, &name); err != nil {
				return domain.Group{}, err
			}
			return domain.Group{ID: domain.GroupID(id), Name: name}, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return res.([]domain.Group), nil
}
