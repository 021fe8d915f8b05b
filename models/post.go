package models

import (
	"strconv"
	"time"

	"github.com/cppla/socialbbs/access"
)

// Post is a short message. ThreadID names the root post of its conversation
// and equals ID for top-level posts.
type Post struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null;default:0" json:"owner_id"`
	ParentID       uint      `gorm:"index;not null;default:0" json:"parent_id"`
	ThreadID       uint      `gorm:"index;not null;default:0" json:"thread_id"`
	Title          string    `gorm:"size:255;not null;default:''" json:"title"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Type           string    `gorm:"size:32;index;not null;default:''" json:"type"`
	DisableReplies bool      `gorm:"not null;default:false" json:"disable_replies"`
	ChildCount     int64     `gorm:"not null;default:0" json:"child_count"`
	ReplyCount     int64     `gorm:"not null;default:0" json:"reply_count"`
	Up             int64     `gorm:"not null;default:0" json:"up"`
	Down           int64     `gorm:"not null;default:0" json:"down"`
	Deleted        bool      `gorm:"index;not null;default:false" json:"deleted"`
	Hidden         bool      `gorm:"index;not null;default:false" json:"hidden"`
	IsPublic       bool      `gorm:"column:public;not null;default:false" json:"public"`
	TargetType     string    `gorm:"size:32;not null;default:''" json:"target_type"`
	TargetID       uint      `gorm:"not null;default:0" json:"target_id"`
	TargetTitle    string    `gorm:"size:255;not null;default:''" json:"target_title"`
	TargetLink     string    `gorm:"size:512;not null;default:''" json:"target_link"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Tags           []Tag     `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE;" json:"tags"`
}

// Target is the client-facing snapshot of the entity a post points at.
type Target struct {
	Type  string `json:"type"`
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// PostView is the public projection of a post.
type PostView struct {
	ID             uint      `json:"id"`
	OwnerID        uint      `json:"owner_id"`
	ParentID       uint      `json:"parent_id"`
	ThreadID       uint      `json:"thread_id"`
	Title          string    `json:"title,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type,omitempty"`
	DisableReplies bool      `json:"disable_replies,omitempty"`
	ChildCount     int64     `json:"child_count"`
	ReplyCount     int64     `json:"reply_count"`
	Up             int64     `json:"up"`
	Down           int64     `json:"down"`
	Target         *Target   `json:"target,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	// Vote is "upvote" or "downvote" when the viewer holds a vote on the post.
	Vote           string `json:"vote,omitempty"`
	RemainingVotes *int64 `json:"remaining_votes,omitempty"`
}

func (p *Post) EntityID() uint { return p.ID }

// IsReply reports whether the post belongs to another post's thread.
func (p *Post) IsReply() bool {
	return p.ThreadID != 0 && p.ThreadID != p.ID
}

// Permits implements the post capability rules: owners see and change their
// own posts, everyone else sees public posts that are neither deleted nor hidden.
func (p *Post) Permits(a access.Actor, c access.Capability) bool {
	if a.Is(p.UserID) {
		return true
	}
	if c != access.View {
		return false
	}
	return p.IsPublic && !p.Deleted && !p.Hidden
}

// GrantKey opens non-public posts to explicitly granted members.
func (p *Post) GrantKey() (string, uint, bool) {
	return "post", p.ID, !p.Deleted && !p.Hidden
}

// TargetRef snapshots the post for posts that point at it.
func (p *Post) TargetRef() (kind string, id uint, title, link string) {
	title = p.Title
	if title == "" {
		title = truncate(p.Content, 80)
	}
	return "post", p.ID, title, "/posts/" + strconv.FormatUint(uint64(p.ID), 10)
}

// Public returns the client-safe projection.
func (p *Post) Public() PostView {
	v := PostView{
		ID:             p.ID,
		OwnerID:        p.UserID,
		ParentID:       p.ParentID,
		ThreadID:       p.ThreadID,
		Title:          p.Title,
		Content:        p.Content,
		Type:           p.Type,
		DisableReplies: p.DisableReplies,
		ChildCount:     p.ChildCount,
		ReplyCount:     p.ReplyCount,
		Up:             p.Up,
		Down:           p.Down,
		CreatedAt:      p.CreatedAt,
	}
	if p.TargetType != "" {
		v.Target = &Target{Type: p.TargetType, ID: p.TargetID, Title: p.TargetTitle, Link: p.TargetLink}
	}
	for _, t := range p.Tags {
		v.Tags = append(v.Tags, t.Name)
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
