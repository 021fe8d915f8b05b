package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/socialbbs/models"
)

// MemberService resolves public member projections and engine statistics.
type MemberService struct {
	*Core
}

func NewMemberService(c *Core) *MemberService {
	return &MemberService{Core: c}
}

// Find returns a member by id.
func (s *MemberService) Find(ctx context.Context, id uint) (*models.Member, error) {
	return s.loadMember(s.DB.WithContext(ctx), id)
}

// FindByUsername returns a member by case-insensitive username.
func (s *MemberService) FindByUsername(ctx context.Context, username string) (*models.Member, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrNotFound
	}
	var m models.Member
	err := s.DB.WithContext(ctx).Where("LOWER(username) = ?", strings.ToLower(username)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Groups lists the members of a group owned by memberID.
func (s *MemberService) Groups(ctx context.Context, memberID uint, group string) ([]models.MemberView, error) {
	ids, err := s.Core.Groups.Members(ctx, memberID, group)
	if err != nil || len(ids) == 0 {
		return []models.MemberView{}, err
	}
	var found []models.Member
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&found).Error; err != nil {
		return nil, err
	}
	out := make([]models.MemberView, 0, len(found))
	for i := range found {
		out = append(out, found[i].Public())
	}
	return out, nil
}

// Stats are aggregate counts across the service.
type Stats struct {
	Members     int64 `json:"member_count"`
	Posts       int64 `json:"post_count"`
	Votes       int64 `json:"vote_count"`
	Friendships int64 `json:"friendship_count"`
}

// Stats counts members, live posts, votes and approved friendships. Failing
// counts are reported as zero.
func (s *MemberService) Stats(ctx context.Context) Stats {
	db := s.DB.WithContext(ctx)
	var st Stats
	if err := db.Model(&models.Member{}).Count(&st.Members).Error; err != nil {
		st.Members = 0
	}
	if err := db.Model(&models.Post{}).Where("deleted = ?", false).Count(&st.Posts).Error; err != nil {
		st.Posts = 0
	}
	if err := db.Model(&models.Vote{}).Count(&st.Votes).Error; err != nil {
		st.Votes = 0
	}
	if err := db.Model(&models.Friendship{}).Where("status = ?", models.FriendshipApproved).Count(&st.Friendships).Error; err != nil {
		st.Friendships = 0
	}
	return st
}
