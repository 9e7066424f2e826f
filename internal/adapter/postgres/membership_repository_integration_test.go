package postgres

import (
	"context"
	"testing"

	"github.com/pscheid92/grove/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsOf(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool, DefaultBreakerSettings, nil)
	ctx := context.Background()

	garden := insertGroup(t, pool, "Garden", 1, 2)
	choir := insertGroup(t, pool, "Choir", 2)

	groups, err := repo.GroupsOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.NewGroupSet(domain.GroupID(garden), domain.GroupID(choir)), groups)

	groups, err = repo.GroupsOf(ctx, 1)
	require.NoError(t, err)
	assert.True(t, groups.Contains(domain.GroupID(garden)))
	assert.False(t, groups.Contains(domain.GroupID(choir)))
}

func TestGroupsOf_NoMemberships(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool, DefaultBreakerSettings, nil)

	groups, err := repo.GroupsOf(context.Background(), 42)

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupsOf_ReflectsChangesImmediately(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool, DefaultBreakerSettings, nil)
	ctx := context.Background()

	garden := insertGroup(t, pool, "Garden", 1)
	groups, err := repo.GroupsOf(ctx, 1)
	require.NoError(t, err)
	require.True(t, groups.Contains(domain.GroupID(garden)))

	_, err = pool.Exec(ctx, "DELETE FROM grove_members WHERE user_id = 1")
	require.NoError(t, err)

	groups, err = repo.GroupsOf(ctx, 1)
	require.NoError(t, err)
	assert.False(t, groups.Contains(domain.GroupID(garden)))
}

func TestListGroups(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool, DefaultBreakerSettings, nil)

	garden := insertGroup(t, pool, "Garden")
	choir := insertGroup(t, pool, "Choir")

	groups, err := repo.ListGroups(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.Group{
		{ID: domain.GroupID(garden), Name: "Garden"},
		{ID: domain.GroupID(choir), Name: "Choir"},
	}, groups)
}

func TestListGroups_Empty(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool, DefaultBreakerSettings, nil)

	groups, err := repo.ListGroups(context.Background())

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", nil)
	assert.Error(t, err)
}
