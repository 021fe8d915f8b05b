package models

import (
	"time"

	"github.com/cppla/socialbbs/access"
)

const (
	VoteUp   = 1
	VoteDown = -1
)

// Vote is a single vote cast by a member on a post.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_vote_user_post;not null" json:"user_id"`
	PostID    uint      `gorm:"index:idx_vote_user_post;index;not null" json:"post_id"`
	Direction int       `gorm:"not null" json:"direction"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Vote) EntityID() uint { return v.ID }

func (v *Vote) Permits(a access.Actor, c access.Capability) bool {
	return c != access.Delete && a.Is(v.UserID)
}

// NormalizeDirection maps any positive input to VoteUp and everything else to VoteDown.
func NormalizeDirection(d int) int {
	if d > 0 {
		return VoteUp
	}
	return VoteDown
}

// Marker is the toggle-state name of a vote direction.
func Marker(direction int) string {
	if direction > 0 {
		return "upvote"
	}
	return "downvote"
}
