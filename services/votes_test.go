package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

func TestSingleVoteOverwritesDirection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 0)
	c := env.member(t, "carol", 5)
	post := env.rawPost(t, models.Post{UserID: author.ID})

	v, err := votes.Vote(ctx, actorOf(c), post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "upvote", v.Vote)
	assert.Equal(t, int64(1), v.Up)
	assert.Equal(t, int64(4), *v.RemainingVotes)

	v, err = votes.Vote(ctx, actorOf(c), post.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, "downvote", v.Vote)
	assert.Equal(t, int64(0), v.Up)
	assert.Equal(t, int64(1), v.Down)
	assert.Equal(t, int64(3), *v.RemainingVotes)

	records, err := votes.Votes(ctx, c.ID, post.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.VoteDown, records[0].Direction)

	stored := env.reloadPost(t, post.ID)
	assert.Equal(t, int64(0), stored.Up)
	assert.Equal(t, int64(1), stored.Down)

	// one author increment per vote call, in the direction cast
	owner := env.reloadMember(t, author.ID)
	assert.Equal(t, int64(1), owner.Up)
	assert.Equal(t, int64(1), owner.Down)
	assert.Equal(t, int64(3), env.reloadMember(t, c.ID).VotesToGive)
}

func TestMultiVoteAppends(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.SingleVote = false
	env := newTestEnvWith(t, settings)
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 0)
	c := env.member(t, "carol", 5)
	post := env.rawPost(t, models.Post{UserID: author.ID})

	for _, d := range []int{1, 1, 0} {
		_, err := votes.Vote(ctx, actorOf(c), post.ID, d)
		require.NoError(t, err)
	}

	records, err := votes.Votes(ctx, c.ID, post.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	stored := env.reloadPost(t, post.ID)
	assert.Equal(t, int64(2), stored.Up)
	assert.Equal(t, int64(1), stored.Down)
	assert.Equal(t, int64(2), env.reloadMember(t, c.ID).VotesToGive)
}

func TestSelfVoteLeavesAuthorAggregate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	votes := NewVoteService(env.core)
	a := env.member(t, "alice", 5)
	post := env.rawPost(t, models.Post{UserID: a.ID})

	v, err := votes.Vote(ctx, actorOf(a), post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Up)

	m := env.reloadMember(t, a.ID)
	assert.Zero(t, m.Up)
	assert.Zero(t, m.Down)
	assert.Equal(t, int64(4), m.VotesToGive)
}

func TestVoteWithoutBalanceIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 0)
	broke := env.member(t, "broke", 0)
	post := env.rawPost(t, models.Post{UserID: author.ID})

	v, err := votes.Vote(ctx, actorOf(broke), post.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, v.RemainingVotes)
	assert.Zero(t, *v.RemainingVotes)
	assert.Empty(t, v.Vote)
	assert.Zero(t, v.Up)

	records, err := votes.Votes(ctx, broke.ID, post.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, env.reloadMember(t, author.ID).Up)
}

func TestVoteBalanceNotRequired(t *testing.T) {
	ctx := context.Background()
	settings := DefaultSettings()
	settings.RequireVoteBalance = false
	env := newTestEnvWith(t, settings)
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 0)
	broke := env.member(t, "broke", 0)
	post := env.rawPost(t, models.Post{UserID: author.ID})

	v, err := votes.Vote(ctx, actorOf(broke), post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Up)
	// the balance never goes below zero
	assert.Zero(t, *v.RemainingVotes)
}

func TestVoteRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 0)
	c := env.member(t, "carol", 5)
	post := env.rawPost(t, models.Post{UserID: author.ID})
	gone := env.rawPost(t, models.Post{UserID: author.ID, Deleted: true})
	hidden := env.rawPost(t, models.Post{UserID: author.ID, Hidden: true})

	_, err := votes.Vote(ctx, access.Anonymous, post.ID, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = votes.Vote(ctx, actorOf(c), 9999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = votes.Vote(ctx, actorOf(c), gone.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = votes.Vote(ctx, actorOf(c), hidden.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = votes.Vote(ctx, access.Actor{ID: 777}, post.ID, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVoteOnOwnerlessPostFallsBackToAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	votes := NewVoteService(env.core)
	c := env.member(t, "carol", 5)
	orphan := env.rawPost(t, models.Post{UserID: 0})

	v, err := votes.Vote(ctx, actorOf(c), orphan.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Up)
	assert.Equal(t, int64(1), env.reloadMember(t, env.admin.ID).Up)
}

func TestVoteForgetsCachedAuthorProfile(t *testing.T) {
	ctx := context.Background()
	profiles := &recordingProfiles{}
	env := newTestEnv(t, WithProfileCache(profiles))
	votes := NewVoteService(env.core)
	author := env.member(t, "author", 5)
	c := env.member(t, "carol", 5)
	broke := env.member(t, "broke", 0)
	post := env.rawPost(t, models.Post{UserID: author.ID})

	_, err := votes.Vote(ctx, actorOf(c), post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, profiles.ids())

	// self votes and refused votes leave the author aggregates alone
	_, err = votes.Vote(ctx, actorOf(author), post.ID, 1)
	require.NoError(t, err)
	_, err = votes.Vote(ctx, actorOf(broke), post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, profiles.ids())
}
