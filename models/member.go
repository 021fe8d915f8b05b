package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/socialbbs/access"
)

// Member is a forum member. VotesToGive is the vote economy balance; Up and
// Down aggregate the votes the member received as an author.
type Member struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email       string         `gorm:"size:255" json:"email"`
	AvatarURL   string         `gorm:"size:512" json:"avatar_url"`
	Signature   string         `gorm:"size:255" json:"signature"`
	VotesToGive int64          `gorm:"not null;default:0" json:"votes_to_give"`
	Up          int64          `gorm:"not null;default:0" json:"up"`
	Down        int64          `gorm:"not null;default:0" json:"down"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// MemberView is the public projection of a member.
type MemberView struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Up        int64     `json:"up"`
	Down      int64     `json:"down"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Member) EntityID() uint { return m.ID }

// Permits lets anyone view a member and only the member edit itself.
func (m *Member) Permits(a access.Actor, c access.Capability) bool {
	switch c {
	case access.View:
		return true
	case access.Edit:
		return a.Is(m.ID)
	default:
		return false
	}
}

// TargetRef snapshots the member for posts that point at it.
func (m *Member) TargetRef() (kind string, id uint, title, link string) {
	return "member", m.ID, m.Username, "/members/" + strconv.FormatUint(uint64(m.ID), 10)
}

// Public returns the client-safe projection.
func (m *Member) Public() MemberView {
	return MemberView{
		ID:        m.ID,
		Username:  m.Username,
		AvatarURL: m.AvatarURL,
		Signature: m.Signature,
		Up:        m.Up,
		Down:      m.Down,
		CreatedAt: m.CreatedAt,
	}
}
