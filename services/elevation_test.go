package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

func TestRunAsRequiresEditCapability(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.member(t, "alice", 0)
	b := env.member(t, "bob", 0)
	post := env.rawPost(t, models.Post{UserID: a.ID})

	err := env.core.Elevator.RunAs(ctx, nil, actorOf(b), func(s *Scope) error {
		return s.Increment(&post, "child_count", 1)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = env.core.Elevator.RunAs(ctx, nil, actorOf(a), func(s *Scope) error {
		assert.Equal(t, a.ID, s.Actor().ID)
		return s.Increment(&post, "child_count", 3)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.reloadPost(t, post.ID).ChildCount)

	err = env.core.Elevator.RunAs(ctx, nil, access.System(env.admin.ID), func(s *Scope) error {
		return s.Update(&post, map[string]any{"up": 9})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), env.reloadPost(t, post.ID).Up)
}

func TestRunAsRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.member(t, "alice", 4)
	boom := errors.New("boom")

	err := env.core.Elevator.RunAs(ctx, nil, actorOf(a), func(s *Scope) error {
		if err := s.Increment(a, "votes_to_give", 10); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(4), env.reloadMember(t, a.ID).VotesToGive)
}

func TestScopeDoesNotOutliveWork(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.member(t, "alice", 4)

	var leaked *Scope
	require.NoError(t, env.core.Elevator.RunAs(ctx, nil, actorOf(a), func(s *Scope) error {
		leaked = s
		return nil
	}))
	assert.ErrorIs(t, leaked.Increment(a, "votes_to_give", 1), ErrScopeClosed)
	assert.ErrorIs(t, leaked.Update(a, map[string]any{"up": 1}), ErrScopeClosed)
	assert.Nil(t, leaked.DB())
	assert.Equal(t, int64(4), env.reloadMember(t, a.ID).VotesToGive)
}

func TestIncrementClampsAtZero(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.member(t, "alice", 2)

	balance, err := env.core.Reward(ctx, env.db, a.ID, -5)
	require.NoError(t, err)
	assert.Zero(t, balance)

	balance, err = env.core.Reward(ctx, env.db, a.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
}
