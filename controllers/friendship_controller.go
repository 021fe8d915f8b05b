package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/middleware"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// FriendshipController manages follow edges.
type FriendshipController struct {
	friends *services.FriendshipService
}

func NewFriendshipController(friends *services.FriendshipService) *FriendshipController {
	return &FriendshipController{friends: friends}
}

// Follow makes the caller follow member_id.
func (f *FriendshipController) Follow(ctx *gin.Context) {
	var req struct {
		MemberID uint `json:"member_id" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "member_id is required")
		return
	}
	actor := middleware.ActorFrom(ctx)
	edge, err := f.friends.Follow(ctx.Request.Context(), actor, actor.ID, req.MemberID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, edge)
}

// Unfollow removes a follow edge by id.
func (f *FriendshipController) Unfollow(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := f.friends.Unfollow(ctx.Request.Context(), middleware.ActorFrom(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "deleted": true})
}

// Following lists the edges a member initiated.
func (f *FriendshipController) Following(ctx *gin.Context) {
	f.list(ctx, true)
}

// Followers lists the edges pointing at a member.
func (f *FriendshipController) Followers(ctx *gin.Context) {
	f.list(ctx, false)
}

func (f *FriendshipController) list(ctx *gin.Context, outgoing bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	edges, err := f.friends.List(ctx.Request.Context(), id, outgoing)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, edges)
}
