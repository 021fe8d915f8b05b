package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
	"github.com/cppla/socialbbs/utils"
)

// Linkable entities can be the target of a post.
type Linkable interface {
	access.Resource
	TargetRef() (kind string, id uint, title, link string)
}

// CreatePostInput carries a post creation request.
type CreatePostInput struct {
	Content    string
	Properties map[string]any
	ParentID   uint
	Target     Linkable
	// Visibility lists members granted view access. A non-empty list makes the post non-public.
	Visibility []uint
}

// ThreadService creates and maintains posts and their thread counters.
type ThreadService struct {
	*Core
}

func NewThreadService(c *Core) *ThreadService {
	return &ThreadService{Core: c}
}

// CreatePost persists a new post, links it into its parent's thread and
// rewards the author.
func (s *ThreadService) CreatePost(ctx context.Context, actor access.Actor, in CreatePostInput) (*models.PostView, error) {
	if actor.IsAnonymous() && !s.Settings.AnonymousPosting {
		return nil, ErrUnauthorized
	}
	content := strings.TrimSpace(utils.Sanitize(in.Content))
	if content == "" {
		return nil, fmt.Errorf("empty content: %w", ErrInvalidInput)
	}

	props := FilterProperties(in.Properties)
	post := models.Post{
		UserID:   actor.ID,
		Content:  content,
		IsPublic: len(in.Visibility) == 0,
	}
	applyProperties(&post, props)

	if in.Target != nil && s.Access.CanView(ctx, actor, in.Target) {
		post.TargetType, post.TargetID, post.TargetTitle, post.TargetLink = in.Target.TargetRef()
	}

	parentID := in.ParentID
	if parentID == 0 {
		parentID = props.ParentID
	}
	parent := s.replyableParent(ctx, actor, parentID)
	if parent != nil {
		post.ParentID = parent.ID
		post.ThreadID = parent.ThreadID
		post.TargetType, post.TargetID = parent.TargetType, parent.TargetID
		post.TargetTitle, post.TargetLink = parent.TargetTitle, parent.TargetLink
	}

	var (
		remaining int64
		trusted   bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parent != nil {
			parentOwner, _, err := s.ownerOf(tx, parent.UserID)
			if err != nil {
				return err
			}
			if err := s.Elevator.RunAs(ctx, tx, parentOwner, func(es *Scope) error {
				return es.Increment(parent, "child_count", 1)
			}); err != nil {
				return fmt.Errorf("increment child count of %d: %w", parent.ID, err)
			}
		}

		if err := tx.Omit(clause.Associations).Create(&post).Error; err != nil {
			return err
		}

		if !actor.IsAnonymous() {
			author, err := s.loadMember(tx, actor.ID)
			if err != nil {
				return fmt.Errorf("load author %d: %w", actor.ID, err)
			}
			trusted = author.VotesToGive >= s.Settings.TrustedPosterBalance
		}
		if trusted {
			if err := s.Analyzer.Analyze(ctx, tx, &post); err != nil {
				return fmt.Errorf("analyze post %d: %w", post.ID, err)
			}
		}

		if post.ThreadID == 0 {
			post.ThreadID = post.ID
			if err := tx.Model(&post).Omit(clause.Associations).UpdateColumn("thread_id", post.ID).Error; err != nil {
				return err
			}
		}

		if post.IsReply() {
			if err := s.countReply(ctx, tx, post.ThreadID); err != nil {
				return err
			}
		}

		if !actor.IsAnonymous() {
			balance, err := s.Reward(ctx, tx, actor.ID, s.Settings.PostReward)
			if err != nil {
				return fmt.Errorf("reward author %d: %w", actor.ID, err)
			}
			remaining = balance
		}

		grants := lo.Uniq(lo.Filter(in.Visibility, func(id uint, _ int) bool { return id != 0 && id != actor.ID }))
		for _, member := range grants {
			g := models.PostGrant{PostID: post.ID, MemberID: member}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&g).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := "root"
	if post.IsReply() {
		kind = "reply"
	}
	postsCreated.WithLabelValues(kind).Inc()

	if !trusted {
		if err := s.Moderation.Enqueue(ctx, post); err != nil {
			s.Log.Warnf("moderation enqueue failed post=%d err=%v", post.ID, err)
		}
	}
	s.notifyPostCreated(post)

	view := post.Public()
	view.RemainingVotes = &remaining
	return &view, nil
}

// countReply increments the reply counter of the thread root. A root that
// no longer exists is skipped.
func (s *ThreadService) countReply(ctx context.Context, tx *gorm.DB, rootID uint) error {
	root := &models.Post{}
	if err := tx.First(root, rootID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.Debugf("thread root %d is gone, reply count not updated", rootID)
			return nil
		}
		return fmt.Errorf("load thread root %d: %w", rootID, err)
	}
	rootOwner, _, err := s.ownerOf(tx, root.UserID)
	if err != nil {
		return err
	}
	if err := s.Elevator.RunAs(ctx, tx, rootOwner, func(es *Scope) error {
		return es.Increment(root, "reply_count", 1)
	}); err != nil {
		return fmt.Errorf("increment reply count of %d: %w", root.ID, err)
	}
	return nil
}

// replyableParent loads the parent a new post may attach to. Missing,
// invisible or reply-disabled parents yield nil: the post becomes standalone.
func (s *ThreadService) replyableParent(ctx context.Context, actor access.Actor, id uint) *models.Post {
	if id == 0 {
		return nil
	}
	parent, err := s.loadPost(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Log.Warnf("load parent %d failed: %v", id, err)
		}
		return nil
	}
	if parent.Deleted || parent.DisableReplies || !s.Access.CanView(ctx, actor, parent) {
		s.Log.Debugf("parent %d not available to %d, creating standalone post", id, actor.ID)
		return nil
	}
	if parent.ThreadID == 0 {
		parent.ThreadID = parent.ID
	}
	return parent
}

func applyProperties(p *models.Post, props PostProperties) {
	if props.Title != nil {
		p.Title = utils.SanitizeStrict(*props.Title)
	}
	if props.Type != nil {
		p.Type = *props.Type
	}
	if props.DisableReplies != nil {
		p.DisableReplies = *props.DisableReplies
	}
}

// GetPost returns the public projection of a visible post.
func (s *ThreadService) GetPost(ctx context.Context, actor access.Actor, id uint) (*models.PostView, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Access.CanView(ctx, actor, post) {
		return nil, ErrNotFound
	}
	view := post.Public()
	if s.Settings.SingleVote && !actor.IsAnonymous() {
		var v models.Vote
		err := s.DB.WithContext(ctx).Where("user_id = ? AND post_id = ?", actor.ID, post.ID).First(&v).Error
		if err == nil {
			view.Vote = models.Marker(v.Direction)
		}
	}
	return &view, nil
}

// RawPost returns the full record to actors that may edit it.
func (s *ThreadService) RawPost(ctx context.Context, actor access.Actor, id uint) (*models.Post, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Access.CanEdit(ctx, actor, post) {
		return nil, ErrUnauthorized
	}
	return post, nil
}

// SavePost edits the content and allow-listed properties of a post. The
// thread linkage of a post never changes after creation.
func (s *ThreadService) SavePost(ctx context.Context, actor access.Actor, id uint, content *string, properties map[string]any) (*models.PostView, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Deleted || !s.Access.CanEdit(ctx, actor, post) {
		return nil, ErrUnauthorized
	}
	if content != nil {
		c := strings.TrimSpace(utils.Sanitize(*content))
		if c == "" {
			return nil, fmt.Errorf("empty content: %w", ErrInvalidInput)
		}
		post.Content = c
	}
	applyProperties(post, FilterProperties(properties))

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(post).Select("content", "title", "type", "disable_replies").Updates(post).Error; err != nil {
			return err
		}
		if content == nil || post.UserID == 0 {
			return nil
		}
		author, err := s.loadMember(tx, post.UserID)
		if err != nil || author.VotesToGive < s.Settings.TrustedPosterBalance {
			return nil
		}
		return s.Analyzer.Analyze(ctx, tx, post)
	})
	if err != nil {
		return nil, err
	}
	view := post.Public()
	return &view, nil
}

// DeletePost marks a post deleted, or removes it for good when hard is set.
// Counters of the thread are left as they were at the last write.
func (s *ThreadService) DeletePost(ctx context.Context, actor access.Actor, id uint, hard bool) error {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return err
	}
	if !s.Access.CanDelete(ctx, actor, post) {
		return ErrUnauthorized
	}
	if !hard {
		return s.DB.WithContext(ctx).Model(post).Omit(clause.Associations).UpdateColumn("deleted", true).Error
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(post).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostGrant{}).Error; err != nil {
			return err
		}
		return tx.Delete(post).Error
	})
}

// HidePost toggles the hidden flag of a post.
func (s *ThreadService) HidePost(ctx context.Context, actor access.Actor, id uint, hidden bool) error {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return err
	}
	if !s.Access.CanEdit(ctx, actor, post) {
		return ErrUnauthorized
	}
	return s.DB.WithContext(ctx).Model(post).Omit(clause.Associations).UpdateColumn("hidden", hidden).Error
}

// Target resolves the entity a new post may point at. Supported kinds are
// "post" and "member".
func (s *ThreadService) Target(ctx context.Context, kind string, id uint) (Linkable, error) {
	switch strings.ToLower(kind) {
	case "post", "":
		p, err := s.loadPost(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "member":
		m, err := s.loadMember(s.DB.WithContext(ctx), id)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown target type %q: %w", kind, ErrInvalidInput)
	}
}

// Moderate runs deferred content analysis for a post taken off the
// moderation queue. Deleted posts are skipped.
func (s *ThreadService) Moderate(ctx context.Context, postID uint) error {
	post, err := s.loadPost(ctx, postID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if post.Deleted {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Analyzer.Analyze(ctx, tx, post)
	})
}
