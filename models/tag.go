package models

// Tag is a normalized hashtag extracted from post content.
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:64;not null;uniqueIndex" json:"name"`
}

// PostGrant opens a non-public post to one extra viewer.
type PostGrant struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	PostID   uint `gorm:"uniqueIndex:idx_grant_post_member;not null" json:"post_id"`
	MemberID uint `gorm:"uniqueIndex:idx_grant_post_member;not null" json:"member_id"`
}

// GroupMembership places MemberID in the named group owned by OwnerID,
// e.g. the "Followers" or "Friends" of a member.
type GroupMembership struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	OwnerID  uint   `gorm:"uniqueIndex:idx_group_member;not null" json:"owner_id"`
	Group    string `gorm:"column:group_name;size:32;uniqueIndex:idx_group_member;not null" json:"group"`
	MemberID uint   `gorm:"uniqueIndex:idx_group_member;not null" json:"member_id"`
}

// All lists every model the service migrates.
func All() []any {
	return []any{
		&Member{}, &Post{}, &Tag{}, &Vote{}, &Friendship{}, &PostGrant{}, &GroupMembership{},
	}
}
