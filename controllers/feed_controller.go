package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/middleware"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// FeedController serves the paginated post feeds.
type FeedController struct {
	feed *services.FeedService
}

func NewFeedController(feed *services.FeedService) *FeedController {
	return &FeedController{feed: feed}
}

func (f *FeedController) respond(ctx *gin.Context, page *services.FeedPage, err error) {
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, page)
}

// Posts is the global feed of top-level posts.
func (f *FeedController) Posts(ctx *gin.Context) {
	page, err := f.feed.Posts(ctx.Request.Context(), middleware.ActorFrom(ctx), feedQuery(ctx))
	f.respond(ctx, page, err)
}

// Unread is the global feed since the caller's last feed view.
func (f *FeedController) Unread(ctx *gin.Context) {
	page, err := f.feed.Unread(ctx.Request.Context(), middleware.ActorFrom(ctx), feedQuery(ctx))
	f.respond(ctx, page, err)
}

// Updates is the caller's own timeline.
func (f *FeedController) Updates(ctx *gin.Context) {
	actor := middleware.ActorFrom(ctx)
	page, err := f.feed.Timeline(ctx.Request.Context(), actor, actor.ID, feedQuery(ctx))
	f.respond(ctx, page, err)
}

// Timeline is the feed of a member and the members they follow.
func (f *FeedController) Timeline(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.feed.Timeline(ctx.Request.Context(), middleware.ActorFrom(ctx), id, feedQuery(ctx))
	f.respond(ctx, page, err)
}

// MemberPosts lists the posts written by a member, replies included.
func (f *FeedController) MemberPosts(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	q := feedQuery(ctx)
	q.Filter.OwnerIDs = []uint{id}
	page, err := f.feed.BuildFeed(ctx.Request.Context(), middleware.ActorFrom(ctx), q)
	f.respond(ctx, page, err)
}

// Replies lists the direct replies of a post.
func (f *FeedController) Replies(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.feed.Replies(ctx.Request.Context(), middleware.ActorFrom(ctx), id, feedQuery(ctx))
	f.respond(ctx, page, err)
}

// Thread lists every post of the thread a post belongs to.
func (f *FeedController) Thread(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.feed.Thread(ctx.Request.Context(), middleware.ActorFrom(ctx), id, feedQuery(ctx))
	f.respond(ctx, page, err)
}
