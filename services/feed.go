package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

// sortColumns is the allow-list of sortable post fields.
var sortColumns = map[string]string{
	"id":          "id",
	"created_at":  "created_at",
	"up":          "up",
	"down":        "down",
	"reply_count": "reply_count",
	"child_count": "child_count",
}

// SortField is one ordering term.
type SortField struct {
	Field string
	Desc  bool
}

// SortSpec is an ordered list of ordering terms.
type SortSpec []SortField

// ParseSort accepts a single field ("up", "-created_at") or an ordered,
// comma separated list of field:direction pairs ("up:desc,created_at:asc").
// Fields outside the allow-list are dropped.
func ParseSort(raw string) SortSpec {
	var sorts SortSpec
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		f := SortField{}
		if strings.HasPrefix(term, "-") {
			f.Desc = true
			term = term[1:]
		}
		if name, dir, ok := strings.Cut(term, ":"); ok {
			term = name
			f.Desc = strings.EqualFold(strings.TrimSpace(dir), "desc")
		}
		f.Field = strings.ToLower(strings.TrimSpace(term))
		sorts = append(sorts, f)
	}
	return sorts.Allowed()
}

// SortFromMap builds a sort order from an ordered list of keys and a field→direction
// mapping, the shape JSON clients send.
func SortFromMap(order []string, dirs map[string]string) SortSpec {
	sorts := make(SortSpec, 0, len(order))
	for _, k := range order {
		sorts = append(sorts, SortField{Field: k, Desc: strings.EqualFold(dirs[k], "desc")})
	}
	return sorts.Allowed()
}

// Allowed drops terms outside the allow-list and repeated fields.
func (s SortSpec) Allowed() SortSpec {
	seen := map[string]bool{}
	return lo.Filter(s, func(f SortField, _ int) bool {
		_, ok := sortColumns[f.Field]
		if !ok || seen[f.Field] {
			return false
		}
		seen[f.Field] = true
		return true
	})
}

func (s SortSpec) apply(db *gorm.DB) *gorm.DB {
	hasID := false
	for _, f := range s.Allowed() {
		col := sortColumns[f.Field]
		if f.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		db = db.Order(col)
		hasID = hasID || f.Field == "id"
	}
	if !hasID {
		db = db.Order("id DESC")
	}
	return db
}

// Filter restricts the candidate set of a feed.
type Filter struct {
	OwnerIDs      []uint
	ParentID      *uint
	ThreadID      uint
	Type          string
	IncludeHidden bool
	CreatedAfter  time.Time
}

// FeedQuery is the input of BuildFeed.
type FeedQuery struct {
	Filter       Filter
	Sort         SortSpec
	Since        uint
	Before       uint
	TopLevelOnly bool
	Tags         []string
	Offset       int
	Limit        int
}

// FeedPage is the result of every feed operation. Remaining counts the posts
// matching the query before the per-item visibility filter.
type FeedPage struct {
	Posts     []models.PostView   `json:"posts"`
	Remaining int64               `json:"remaining"`
	Members   []models.MemberView `json:"members"`
}

// FeedService assembles filtered, sorted and visibility-checked post pages.
type FeedService struct {
	*Core
}

func NewFeedService(c *Core) *FeedService {
	return &FeedService{Core: c}
}

func (s *FeedService) candidates(q FeedQuery) func(*gorm.DB) *gorm.DB {
	now := s.Now()
	return func(db *gorm.DB) *gorm.DB {
		db = db.Model(&models.Post{}).Where("deleted = ?", false)
		if q.TopLevelOnly {
			db = db.Where("parent_id = ?", 0)
		}
		if !q.Filter.IncludeHidden {
			db = db.Where("hidden = ?", false)
		}
		if len(q.Filter.OwnerIDs) > 0 {
			db = db.Where("user_id IN ?", q.Filter.OwnerIDs)
		}
		if q.Filter.ParentID != nil {
			db = db.Where("parent_id = ?", *q.Filter.ParentID)
		}
		if q.Filter.ThreadID != 0 {
			db = db.Where("thread_id = ?", q.Filter.ThreadID)
		}
		if q.Filter.Type != "" {
			db = db.Where("type = ?", q.Filter.Type)
		}
		if !q.Filter.CreatedAfter.IsZero() {
			db = db.Where("created_at > ?", q.Filter.CreatedAfter)
		}
		if q.Since != 0 {
			db = db.Where("id > ?", q.Since)
		}
		if q.Before != 0 {
			db = db.Where("id < ?", q.Before)
		}
		if tags := normalizeTags(q.Tags); len(tags) > 0 {
			db = db.Where("id IN (?)", db.Session(&gorm.Session{NewDB: true}).
				Table("post_tags").
				Select("post_tags.post_id").
				Joins("JOIN tags ON tags.id = post_tags.tag_id").
				Where("tags.name IN ?", tags))
		}
		if cond, args := typeAgeCondition(s.Settings.PostTypeMaxAge, now); cond != "" {
			db = db.Where(cond, args...)
		}
		return db
	}
}

// typeAgeCondition ORs one age bound per configured type with a pass-through
// for every type that has none.
func typeAgeCondition(maxAge map[string]time.Duration, now time.Time) (string, []any) {
	if len(maxAge) == 0 {
		return "", nil
	}
	types := lo.Keys(maxAge)
	sort.Strings(types)
	parts := []string{"type NOT IN ?"}
	args := []any{types}
	for _, t := range types {
		parts = append(parts, "(type = ? AND created_at > ?)")
		args = append(args, t, now.Add(-maxAge[t]))
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func normalizeTags(tags []string) []string {
	out := lo.Map(tags, func(t string, _ int) string {
		return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
	})
	return lo.Uniq(lo.Filter(out, func(t string, _ int) bool { return t != "" }))
}

// BuildFeed runs the shared feed algorithm for actor.
func (s *FeedService) BuildFeed(ctx context.Context, actor access.Actor, q FeedQuery) (*FeedPage, error) {
	db := s.DB.WithContext(ctx)
	scope := s.candidates(q)

	var total int64
	if err := db.Scopes(scope).Count(&total).Error; err != nil {
		return nil, err
	}

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	var posts []models.Post
	err := q.Sort.apply(db.Scopes(scope)).
		Preload("Tags").
		Offset(offset).
		Limit(s.Settings.clampLimit(q.Limit)).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	visible := lo.Filter(posts, func(p models.Post, _ int) bool {
		return s.Access.CanView(ctx, actor, &p)
	})

	var (
		members []models.MemberView
		markers map[uint]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = s.owners(gctx, visible)
		return err
	})
	if s.Settings.SingleVote && !actor.IsAnonymous() && len(visible) > 0 {
		g.Go(func() error {
			var err error
			markers, err = s.voteMarkers(gctx, actor.ID, visible)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &FeedPage{
		Posts:     make([]models.PostView, 0, len(visible)),
		Remaining: total,
		Members:   members,
	}
	for i := range visible {
		v := visible[i].Public()
		if d, ok := markers[v.ID]; ok {
			v.Vote = models.Marker(d)
		}
		page.Posts = append(page.Posts, v)
	}
	feedPageSize.Observe(float64(len(page.Posts)))

	s.recordActivity(ctx, actor, ActionViewing)
	return page, nil
}

func (s *FeedService) owners(ctx context.Context, posts []models.Post) ([]models.MemberView, error) {
	ids := lo.Uniq(lo.FilterMap(posts, func(p models.Post, _ int) (uint, bool) {
		return p.UserID, p.UserID != 0
	}))
	if len(ids) == 0 {
		return []models.MemberView{}, nil
	}
	var found []models.Member
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&found).Error; err != nil {
		return nil, err
	}
	return lo.Map(found, func(m models.Member, _ int) models.MemberView { return m.Public() }), nil
}

func (s *FeedService) voteMarkers(ctx context.Context, voter uint, posts []models.Post) (map[uint]int, error) {
	ids := lo.Map(posts, func(p models.Post, _ int) uint { return p.ID })
	var votes []models.Vote
	if err := s.DB.WithContext(ctx).Where("user_id = ? AND post_id IN ?", voter, ids).Find(&votes).Error; err != nil {
		return nil, err
	}
	return lo.Associate(votes, func(v models.Vote) (uint, int) { return v.PostID, v.Direction }), nil
}

// Posts is the global feed of top-level posts.
func (s *FeedService) Posts(ctx context.Context, actor access.Actor, q FeedQuery) (*FeedPage, error) {
	q.TopLevelOnly = true
	return s.BuildFeed(ctx, actor, q)
}

// Unread is the global feed restricted to posts created since the actor last
// viewed a feed.
func (s *FeedService) Unread(ctx context.Context, actor access.Actor, q FeedQuery) (*FeedPage, error) {
	if actor.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	last, ok, err := s.Tracker.LastSeen(ctx, actor.ID, ActionViewing)
	if err != nil {
		return nil, err
	}
	if ok {
		q.Filter.CreatedAfter = last
	}
	return s.Posts(ctx, actor, q)
}

// Following returns the members memberID follows.
func (s *FeedService) Following(ctx context.Context, memberID uint) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&models.Friendship{}).
		Where("initiator_id = ?", memberID).
		Pluck("other_id", &ids).Error
	return ids, err
}

// Timeline is the feed of posts by memberID and everyone memberID follows.
func (s *FeedService) Timeline(ctx context.Context, actor access.Actor, memberID uint, q FeedQuery) (*FeedPage, error) {
	following, err := s.Following(ctx, memberID)
	if err != nil {
		return nil, err
	}
	q.Filter.OwnerIDs = lo.Uniq(append(following, memberID))
	return s.BuildFeed(ctx, actor, q)
}

// Replies is the feed of direct replies to a visible post.
func (s *FeedService) Replies(ctx context.Context, actor access.Actor, postID uint, q FeedQuery) (*FeedPage, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !s.Access.CanView(ctx, actor, post) {
		return nil, ErrNotFound
	}
	q.Filter.ParentID = &post.ID
	q.TopLevelOnly = false
	return s.BuildFeed(ctx, actor, q)
}

// Thread is the feed of every post in the thread that contains postID.
func (s *FeedService) Thread(ctx context.Context, actor access.Actor, postID uint, q FeedQuery) (*FeedPage, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !s.Access.CanView(ctx, actor, post) {
		return nil, ErrNotFound
	}
	q.Filter.ThreadID = post.ThreadID
	if q.Filter.ThreadID == 0 {
		q.Filter.ThreadID = post.ID
	}
	q.TopLevelOnly = false
	return s.BuildFeed(ctx, actor, q)
}
