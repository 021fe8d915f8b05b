package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/middleware"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// PostController exposes post creation, editing and voting.
type PostController struct {
	threads *services.ThreadService
	votes   *services.VoteService
}

// NewPostController creates a new PostController instance.
func NewPostController(threads *services.ThreadService, votes *services.VoteService) *PostController {
	return &PostController{threads: threads, votes: votes}
}

type targetRequest struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

// CreatePost creates a post or a reply.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Content    string         `json:"content" binding:"required"`
		ParentID   uint           `json:"parent_id"`
		Properties map[string]any `json:"properties"`
		Target     *targetRequest `json:"target"`
		Visibility []uint         `json:"visibility"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request payload")
		return
	}

	in := services.CreatePostInput{
		Content:    req.Content,
		ParentID:   req.ParentID,
		Properties: req.Properties,
		Visibility: req.Visibility,
	}
	if req.Target != nil && req.Target.ID != 0 {
		target, err := p.threads.Target(ctx.Request.Context(), req.Target.Type, req.Target.ID)
		if err != nil {
			respondError(ctx, err)
			return
		}
		in.Target = target
	}

	view, err := p.threads.CreatePost(ctx.Request.Context(), middleware.ActorFrom(ctx), in)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusCreated, utils.CodeOK, "success", view)
}

// GetPost returns a single visible post.
func (p *PostController) GetPost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	view, err := p.threads.GetPost(ctx.Request.Context(), middleware.ActorFrom(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

// RawPost returns the full stored record to its editors.
func (p *PostController) RawPost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	post, err := p.threads.RawPost(ctx.Request.Context(), middleware.ActorFrom(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, post)
}

// SavePost edits content and properties.
func (p *PostController) SavePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Content    *string        `json:"content"`
		Properties map[string]any `json:"properties"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request payload")
		return
	}
	view, err := p.threads.SavePost(ctx.Request.Context(), middleware.ActorFrom(ctx), id, req.Content, req.Properties)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

// DeletePost soft deletes a post; ?hard=true removes it.
func (p *PostController) DeletePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	hard, _ := strconv.ParseBool(ctx.Query("hard"))
	if err := p.threads.DeletePost(ctx.Request.Context(), middleware.ActorFrom(ctx), id, hard); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "deleted": true})
}

// HidePost hides or unhides a post.
func (p *PostController) HidePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	req := struct {
		Hidden *bool `json:"hidden"`
	}{}
	_ = ctx.ShouldBindJSON(&req)
	hidden := req.Hidden == nil || *req.Hidden
	if err := p.threads.HidePost(ctx.Request.Context(), middleware.ActorFrom(ctx), id, hidden); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "hidden": hidden})
}

// Vote casts an up vote for a positive direction and a down vote otherwise.
func (p *PostController) Vote(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Direction *int `json:"direction" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "direction is required")
		return
	}
	view, err := p.votes.Vote(ctx.Request.Context(), middleware.ActorFrom(ctx), id, *req.Direction)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

// MyVotes lists the caller's votes on a post.
func (p *PostController) MyVotes(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	votes, err := p.votes.Votes(ctx.Request.Context(), middleware.ActorFrom(ctx).ID, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, votes)
}
