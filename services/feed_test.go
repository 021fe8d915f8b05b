package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

func feedIDs(page *FeedPage) []uint {
	ids := make([]uint, 0, len(page.Posts))
	for _, p := range page.Posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestParseSort(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(SortSpec{{Field: "up"}}, ParseSort("up"))
	assert.Equal(SortSpec{{Field: "created_at", Desc: true}}, ParseSort("-created_at"))
	assert.Equal(SortSpec{{Field: "up", Desc: true}, {Field: "created_at"}},
		ParseSort("up:desc, password:asc,created_at:asc,up:asc"))
	assert.Empty(ParseSort(""))
	assert.Empty(ParseSort("deleted;drop table posts"))

	assert.Equal(SortSpec{{Field: "reply_count", Desc: true}, {Field: "id"}},
		SortFromMap([]string{"reply_count", "user_id", "id"}, map[string]string{"reply_count": "DESC", "id": "asc"}))
}

func TestFeedLimitIsClamped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)
	for i := 0; i < 60; i++ {
		env.rawPost(t, models.Post{UserID: a.ID})
	}

	page, err := feed.Posts(ctx, access.Anonymous, FeedQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 50)
	assert.Equal(t, int64(60), page.Remaining)

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 20)

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Offset: 55, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 5)
	assert.Equal(t, int64(60), page.Remaining)
}

func TestFeedExcludesDeletedHiddenAndInvisible(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)
	b := env.member(t, "bob", 0)

	visible := env.rawPost(t, models.Post{UserID: a.ID})
	env.rawPost(t, models.Post{UserID: a.ID, Deleted: true})
	hidden := env.rawPost(t, models.Post{UserID: a.ID, Hidden: true})
	private := env.rawPost(t, models.Post{UserID: a.ID})
	require.NoError(t, env.db.Model(&private).UpdateColumn("public", false).Error)

	page, err := feed.Posts(ctx, actorOf(b), FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{visible.ID}, feedIDs(page))
	// counted before the per-item visibility filter
	assert.Equal(t, int64(2), page.Remaining)
	require.Len(t, page.Members, 1)
	assert.Equal(t, "alice", page.Members[0].Username)

	page, err = feed.Posts(ctx, actorOf(a), FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{private.ID, visible.ID}, feedIDs(page))

	withHidden := FeedQuery{Filter: Filter{IncludeHidden: true}}
	page, err = feed.Posts(ctx, actorOf(a), withHidden)
	require.NoError(t, err)
	assert.Equal(t, []uint{private.ID, hidden.ID, visible.ID}, feedIDs(page))
	assert.Equal(t, int64(3), page.Remaining)

	// hidden posts stay invisible to everyone but their author
	page, err = feed.Posts(ctx, actorOf(b), withHidden)
	require.NoError(t, err)
	assert.Equal(t, []uint{visible.ID}, feedIDs(page))
	assert.Equal(t, int64(3), page.Remaining)
}

func TestFeedSortAndCursor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)

	p1 := env.rawPost(t, models.Post{UserID: a.ID, Up: 5})
	p2 := env.rawPost(t, models.Post{UserID: a.ID, Up: 1})
	p3 := env.rawPost(t, models.Post{UserID: a.ID, Up: 5})
	p4 := env.rawPost(t, models.Post{UserID: a.ID, Up: 3})

	page, err := feed.Posts(ctx, access.Anonymous, FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{p4.ID, p3.ID, p2.ID, p1.ID}, feedIDs(page))

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Sort: ParseSort("up:desc,bogus")})
	require.NoError(t, err)
	assert.Equal(t, []uint{p3.ID, p1.ID, p4.ID, p2.ID}, feedIDs(page))

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Sort: ParseSort("id")})
	require.NoError(t, err)
	assert.Equal(t, []uint{p1.ID, p2.ID, p3.ID, p4.ID}, feedIDs(page))

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Since: p1.ID, Before: p4.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{p3.ID, p2.ID}, feedIDs(page))
	assert.Equal(t, int64(2), page.Remaining)
}

func TestFeedTopLevelAndReplies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	threads := NewThreadService(env.core)
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)
	b := env.member(t, "bob", 0)

	root, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "root"})
	require.NoError(t, err)
	r1, err := threads.CreatePost(ctx, actorOf(b), CreatePostInput{Content: "r1", ParentID: root.ID})
	require.NoError(t, err)
	r2, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "r2", ParentID: root.ID})
	require.NoError(t, err)
	_, err = threads.CreatePost(ctx, actorOf(b), CreatePostInput{Content: "nested", ParentID: r1.ID})
	require.NoError(t, err)

	page, err := feed.Posts(ctx, access.Anonymous, FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{root.ID}, feedIDs(page))

	page, err = feed.Replies(ctx, access.Anonymous, root.ID, FeedQuery{Sort: ParseSort("id:asc")})
	require.NoError(t, err)
	assert.Equal(t, []uint{r1.ID, r2.ID}, feedIDs(page))
	assert.Len(t, page.Members, 2)

	_, err = feed.Replies(ctx, access.Anonymous, 9999, FeedQuery{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeedTags(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	threads := NewThreadService(env.core)
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 50)

	goPost, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "about #golang"})
	require.NoError(t, err)
	rustPost, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "about #rust"})
	require.NoError(t, err)
	_, err = threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "untagged"})
	require.NoError(t, err)

	page, err := feed.Posts(ctx, access.Anonymous, FeedQuery{Tags: []string{"#GoLang"}})
	require.NoError(t, err)
	assert.Equal(t, []uint{goPost.ID}, feedIDs(page))
	assert.Equal(t, []string{"golang"}, page.Posts[0].Tags)

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Tags: []string{"golang", "rust", " "}})
	require.NoError(t, err)
	assert.Equal(t, []uint{rustPost.ID, goPost.ID}, feedIDs(page))
}

func TestFeedTypeMaxAge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	settings := DefaultSettings()
	settings.PostTypeMaxAge = map[string]time.Duration{"news": 24 * time.Hour, "event": time.Hour}
	env := newTestEnvWith(t, settings, WithClock(func() time.Time { return now }))
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)

	freshNews := env.rawPost(t, models.Post{UserID: a.ID, Type: "news", CreatedAt: now.Add(-time.Hour)})
	env.rawPost(t, models.Post{UserID: a.ID, Type: "news", CreatedAt: now.Add(-48 * time.Hour)})
	env.rawPost(t, models.Post{UserID: a.ID, Type: "event", CreatedAt: now.Add(-2 * time.Hour)})
	oldChat := env.rawPost(t, models.Post{UserID: a.ID, Type: "chat", CreatedAt: now.Add(-100 * 24 * time.Hour)})
	untyped := env.rawPost(t, models.Post{UserID: a.ID, CreatedAt: now.Add(-365 * 24 * time.Hour)})

	page, err := feed.Posts(ctx, access.Anonymous, FeedQuery{Sort: ParseSort("id:asc")})
	require.NoError(t, err)
	assert.Equal(t, []uint{freshNews.ID, oldChat.ID, untyped.ID}, feedIDs(page))
	assert.Equal(t, int64(3), page.Remaining)

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{Filter: Filter{Type: "news"}})
	require.NoError(t, err)
	assert.Equal(t, []uint{freshNews.ID}, feedIDs(page))
}

func TestFeedVoteMarkers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	votes := NewVoteService(env.core)
	a := env.member(t, "alice", 0)
	c := env.member(t, "carol", 5)
	up := env.rawPost(t, models.Post{UserID: a.ID})
	down := env.rawPost(t, models.Post{UserID: a.ID})
	none := env.rawPost(t, models.Post{UserID: a.ID})

	_, err := votes.Vote(ctx, actorOf(c), up.ID, 1)
	require.NoError(t, err)
	_, err = votes.Vote(ctx, actorOf(c), down.ID, -1)
	require.NoError(t, err)

	page, err := feed.Posts(ctx, actorOf(c), FeedQuery{})
	require.NoError(t, err)
	markers := map[uint]string{}
	for _, p := range page.Posts {
		markers[p.ID] = p.Vote
	}
	assert.Equal(t, map[uint]string{up.ID: "upvote", down.ID: "downvote", none.ID: ""}, markers)

	page, err = feed.Posts(ctx, access.Anonymous, FeedQuery{})
	require.NoError(t, err)
	for _, p := range page.Posts {
		assert.Empty(t, p.Vote)
	}
}

func TestTimelineFollowsGraph(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	friends := NewFriendshipService(env.core)
	d := env.member(t, "dave", 0)
	e := env.member(t, "erin", 0)
	f := env.member(t, "frank", 0)

	_, err := friends.Follow(ctx, actorOf(d), d.ID, e.ID)
	require.NoError(t, err)

	own := env.rawPost(t, models.Post{UserID: d.ID})
	followed := env.rawPost(t, models.Post{UserID: e.ID})
	env.rawPost(t, models.Post{UserID: f.ID})

	page, err := feed.Timeline(ctx, actorOf(d), d.ID, FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{followed.ID, own.ID}, feedIDs(page))
	assert.Len(t, page.Members, 2)
}

func TestUnreadUsesLastViewing(t *testing.T) {
	ctx := context.Background()
	clock := time.Now()
	env := newTestEnv(t, WithClock(func() time.Time { return clock }))
	feed := NewFeedService(env.core)
	a := env.member(t, "alice", 0)
	b := env.member(t, "bob", 0)

	_, err := feed.Unread(ctx, access.Anonymous, FeedQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	old := env.rawPost(t, models.Post{UserID: a.ID, CreatedAt: clock.Add(-time.Hour)})

	// never viewed: everything is unread
	page, err := feed.Unread(ctx, actorOf(b), FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{old.ID}, feedIDs(page))

	last, ok, err := env.core.Tracker.LastSeen(ctx, b.ID, ActionViewing)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(clock))

	fresh := env.rawPost(t, models.Post{UserID: a.ID, CreatedAt: clock.Add(time.Hour)})
	page, err = feed.Unread(ctx, actorOf(b), FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{fresh.ID}, feedIDs(page))
}

func TestFeedRecordsViewingInRequestActivity(t *testing.T) {
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	b := env.member(t, "bob", 0)

	ctx, act := WithActivity(context.Background())
	_, err := feed.Posts(ctx, actorOf(b), FeedQuery{})
	require.NoError(t, err)
	_, err = feed.Posts(ctx, access.Anonymous, FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, act.Len())

	_, ok, err := env.core.Tracker.LastSeen(ctx, b.ID, ActionViewing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, act.Flush(ctx, env.core.Tracker))
	_, ok, err = env.core.Tracker.LastSeen(ctx, b.ID, ActionViewing)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, act.Len())
}

func TestThreadFeed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	feed := NewFeedService(env.core)
	threads := NewThreadService(env.core)
	a := env.member(t, "alice", 0)
	b := env.member(t, "bob", 0)

	root, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "root"})
	require.NoError(t, err)
	mid, err := threads.CreatePost(ctx, actorOf(b), CreatePostInput{Content: "mid", ParentID: root.ID})
	require.NoError(t, err)
	leaf, err := threads.CreatePost(ctx, actorOf(a), CreatePostInput{Content: "leaf", ParentID: mid.ID})
	require.NoError(t, err)
	_, err = threads.CreatePost(ctx, actorOf(b), CreatePostInput{Content: "elsewhere"})
	require.NoError(t, err)

	page, err := feed.Thread(ctx, actorOf(b), mid.ID, FeedQuery{Sort: ParseSort("id")})
	require.NoError(t, err)
	assert.Equal(t, []uint{root.ID, mid.ID, leaf.ID}, feedIDs(page))
	assert.Equal(t, int64(3), page.Remaining)

	_, err = feed.Thread(ctx, actorOf(b), 9999, FeedQuery{})
	assert.ErrorIs(t, err, ErrNotFound)
}
