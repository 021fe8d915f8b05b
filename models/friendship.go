package models

import (
	"time"

	"github.com/cppla/socialbbs/access"
)

// FriendshipStatus is Pending for a one-way follow and Approved once reciprocated.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipApproved FriendshipStatus = "approved"
)

// Friendship is a directed follow edge from InitiatorID to OtherID.
type Friendship struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	InitiatorID uint             `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"initiator_id"`
	OtherID     uint             `gorm:"uniqueIndex:idx_friendship_pair;index;not null" json:"other_id"`
	Status      FriendshipStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (f *Friendship) EntityID() uint { return f.ID }

// Permits grants both participants every capability on the edge.
func (f *Friendship) Permits(a access.Actor, _ access.Capability) bool {
	return a.Is(f.InitiatorID) || a.Is(f.OtherID)
}

func (f *Friendship) Approved() bool {
	return f.Status == FriendshipApproved
}
