package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/socialbbs/models"
)

// Group names projected by the friendship graph.
const (
	GroupFollowers = "Followers"
	GroupFriends   = "Friends"
)

// GroupProjector maintains named member groups owned by another member.
// Writes run inside the transaction that changed the follow graph.
type GroupProjector interface {
	Add(ctx context.Context, tx *gorm.DB, owner uint, group string, member uint) error
	Remove(ctx context.Context, tx *gorm.DB, owner uint, group string, member uint) error
	Members(ctx context.Context, owner uint, group string) ([]uint, error)
}

// ContentAnalyzer scans a freshly persisted post inside the creating transaction.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, tx *gorm.DB, post *models.Post) error
}

// ModerationQueue receives posts of untrusted authors for deferred analysis.
type ModerationQueue interface {
	Enqueue(ctx context.Context, post models.Post) error
}

// Notifier is told about new posts. Delivery is best effort.
type Notifier interface {
	PostCreated(ctx context.Context, post models.Post) error
}

// ActivityTracker remembers when a member last performed an action.
type ActivityTracker interface {
	Touch(ctx context.Context, member uint, action string, at time.Time) error
	LastSeen(ctx context.Context, member uint, action string) (time.Time, bool, error)
}

// ProfileCache holds public member projections. ForgetMember is called after
// the aggregates of a member changed.
type ProfileCache interface {
	ForgetMember(ctx context.Context, member models.Member)
}

// DBGroups stores group membership in the group_memberships table.
type DBGroups struct {
	db *gorm.DB
}

func NewDBGroups(db *gorm.DB) *DBGroups {
	return &DBGroups{db: db}
}

func (g *DBGroups) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return g.db.WithContext(ctx)
}

func (g *DBGroups) Add(ctx context.Context, tx *gorm.DB, owner uint, group string, member uint) error {
	return g.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMembership{OwnerID: owner, Group: group, MemberID: member}).Error
}

func (g *DBGroups) Remove(ctx context.Context, tx *gorm.DB, owner uint, group string, member uint) error {
	return g.conn(ctx, tx).
		Where("owner_id = ? AND group_name = ? AND member_id = ?", owner, group, member).
		Delete(&models.GroupMembership{}).Error
}

func (g *DBGroups) Members(ctx context.Context, owner uint, group string) ([]uint, error) {
	var ids []uint
	err := g.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("owner_id = ? AND group_name = ?", owner, group).
		Order("member_id").
		Pluck("member_id", &ids).Error
	return ids, err
}

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]{1,64})`)

// ExtractTags returns the distinct lower-cased hashtags of text in order of appearance.
func ExtractTags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)
	return lo.Uniq(lo.Map(matches, func(m []string, _ int) string {
		return strings.ToLower(m[1])
	}))
}

// TagAnalyzer attaches the hashtags of a post as Tag rows.
type TagAnalyzer struct{}

func (TagAnalyzer) Analyze(ctx context.Context, tx *gorm.DB, post *models.Post) error {
	names := ExtractTags(post.Title + " " + post.Content)
	if len(names) == 0 {
		return nil
	}
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag := models.Tag{Name: name}
		if err := tx.WithContext(ctx).Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		tags = append(tags, tag)
	}
	if err := tx.WithContext(ctx).Model(post).Association("Tags").Replace(tags); err != nil {
		return err
	}
	post.Tags = tags
	return nil
}

// NullModeration drops queued posts.
type NullModeration struct{}

func (NullModeration) Enqueue(context.Context, models.Post) error { return nil }

// NullProfileCache caches nothing.
type NullProfileCache struct{}

func (NullProfileCache) ForgetMember(context.Context, models.Member) {}

// NullNotifier drops notifications.
type NullNotifier struct{}

func (NullNotifier) PostCreated(context.Context, models.Post) error { return nil }

// MemoryTracker keeps activity in process memory.
type MemoryTracker struct {
	seen *xsync.MapOf[string, time.Time]
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: xsync.NewMapOf[string, time.Time]()}
}

func (m *MemoryTracker) Touch(_ context.Context, member uint, action string, at time.Time) error {
	m.seen.Compute(activityKey(member, action), func(old time.Time, loaded bool) (time.Time, bool) {
		if loaded && old.After(at) {
			return old, false
		}
		return at, false
	})
	return nil
}

func (m *MemoryTracker) LastSeen(_ context.Context, member uint, action string) (time.Time, bool, error) {
	at, ok := m.seen.Load(activityKey(member, action))
	return at, ok, nil
}

// grantStore answers post view grants from the post_grants table.
type grantStore struct {
	db *gorm.DB
}

func (g grantStore) HasGrant(ctx context.Context, kind string, id uint, memberID uint) (bool, error) {
	if kind != "post" {
		return false, nil
	}
	var n int64
	err := g.db.WithContext(ctx).Model(&models.PostGrant{}).
		Where("post_id = ? AND member_id = ?", id, memberID).
		Count(&n).Error
	return n > 0, err
}
