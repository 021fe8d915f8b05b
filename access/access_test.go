package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ownedDoc struct {
	owner  uint
	locked bool
}

func (d ownedDoc) Permits(a Actor, c Capability) bool {
	return a.Is(d.owner)
}

func (d ownedDoc) GrantKey() (string, uint, bool) {
	return "doc", 7, !d.locked
}

type staticGrants struct {
	members map[uint]bool
	err     error
}

func (s staticGrants) HasGrant(_ context.Context, kind string, id uint, memberID uint) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return kind == "doc" && id == 7 && s.members[memberID], nil
}

func TestActor(t *testing.T) {
	assert := assert.New(t)

	assert.True(Anonymous.IsAnonymous())
	assert.False(Actor{ID: 3}.IsAnonymous())
	assert.False(System(1).IsAnonymous())
	assert.True(Actor{ID: 3}.Is(3))
	assert.False(Anonymous.Is(0))
}

func TestCheckerOwnerAndAdmin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ch := NewChecker(nil)
	doc := ownedDoc{owner: 5}

	assert.True(ch.CanEdit(ctx, Actor{ID: 5}, doc))
	assert.False(ch.CanEdit(ctx, Actor{ID: 6}, doc))
	assert.True(ch.CanDelete(ctx, System(1), doc))
	assert.False(ch.CanView(ctx, Anonymous, doc))
	assert.False(ch.CanView(ctx, Actor{ID: 5}, nil))
}

func TestCheckerGrants(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ch := NewChecker(staticGrants{members: map[uint]bool{9: true}})

	assert.True(ch.CanView(ctx, Actor{ID: 9}, ownedDoc{owner: 5}))
	assert.False(ch.CanEdit(ctx, Actor{ID: 9}, ownedDoc{owner: 5}), "grants only open view")
	assert.False(ch.CanView(ctx, Actor{ID: 10}, ownedDoc{owner: 5}))
	assert.False(ch.CanView(ctx, Actor{ID: 9}, ownedDoc{owner: 5, locked: true}))

	failing := NewChecker(staticGrants{err: errors.New("down")})
	assert.False(failing.CanView(ctx, Actor{ID: 9}, ownedDoc{owner: 5}))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "view", View.String())
	assert.Equal(t, "delete", Delete.String())
	assert.Equal(t, "<unknown>", Capability(42).String())
}
