package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/socialbbs/models"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

// MemberController serves public member profiles, groups and statistics.
type MemberController struct {
	members *services.MemberService
	cache   *utils.Cache
}

// NewMemberController caches profile lookups in cache, which may be nil.
func NewMemberController(members *services.MemberService, cache *utils.Cache) *MemberController {
	return &MemberController{members: members, cache: cache}
}

// GetMember returns a member by id.
func (m *MemberController) GetMember(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	key := utils.MemberKey(id)
	var view models.MemberView
	if m.cache.GetJSON(ctx.Request.Context(), key, &view) {
		utils.Success(ctx, view)
		return
	}
	member, err := m.members.Find(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	view = member.Public()
	m.cache.SetJSON(ctx.Request.Context(), key, view)
	utils.Success(ctx, view)
}

// GetMemberByUsername returns a member by case-insensitive username.
func (m *MemberController) GetMemberByUsername(ctx *gin.Context) {
	name := strings.ToLower(strings.TrimSpace(ctx.Param("username")))
	key := utils.MemberNameKey(name)
	var view models.MemberView
	if m.cache.GetJSON(ctx.Request.Context(), key, &view) {
		utils.Success(ctx, view)
		return
	}
	member, err := m.members.FindByUsername(ctx.Request.Context(), name)
	if err != nil {
		respondError(ctx, err)
		return
	}
	view = member.Public()
	m.cache.SetJSON(ctx.Request.Context(), key, view)
	utils.Success(ctx, view)
}

// Group lists the members of one of a member's groups (Followers, Friends).
func (m *MemberController) Group(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	group := ctx.Param("group")
	switch strings.ToLower(group) {
	case "followers":
		group = services.GroupFollowers
	case "friends":
		group = services.GroupFriends
	}
	views, err := m.members.Groups(ctx.Request.Context(), id, group)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, views)
}

// Stats returns aggregate counts for the service.
func (m *MemberController) Stats(ctx *gin.Context) {
	utils.Success(ctx, m.members.Stats(ctx.Request.Context()))
}
