package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

// Core bundles the store, policies and collaborators shared by all services.
type Core struct {
	DB         *gorm.DB
	Settings   Settings
	Access     *access.Checker
	Elevator   *Elevator
	Log        *zap.SugaredLogger
	Groups     GroupProjector
	Analyzer   ContentAnalyzer
	Moderation ModerationQueue
	Notifier   Notifier
	Tracker    ActivityTracker
	Profiles   ProfileCache
	Now        func() time.Time
}

// Option customizes a Core.
type Option func(*Core)

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Core) { c.Log = l } }

func WithGroups(g GroupProjector) Option { return func(c *Core) { c.Groups = g } }

func WithAnalyzer(a ContentAnalyzer) Option { return func(c *Core) { c.Analyzer = a } }

func WithModerationQueue(q ModerationQueue) Option { return func(c *Core) { c.Moderation = q } }

func WithNotifier(n Notifier) Option { return func(c *Core) { c.Notifier = n } }

func WithTracker(t ActivityTracker) Option { return func(c *Core) { c.Tracker = t } }

func WithProfileCache(p ProfileCache) Option { return func(c *Core) { c.Profiles = p } }

func WithClock(now func() time.Time) Option { return func(c *Core) { c.Now = now } }

// NewCore wires the engine around db. Collaborators default to in-database
// groups, inline tag analysis, in-memory activity and no-op queues.
func NewCore(db *gorm.DB, settings Settings, opts ...Option) *Core {
	checker := access.NewChecker(grantStore{db: db})
	c := &Core{
		DB:         db,
		Settings:   settings,
		Access:     checker,
		Elevator:   NewElevator(db, checker),
		Log:        zap.NewNop().Sugar(),
		Groups:     NewDBGroups(db),
		Analyzer:   TagAnalyzer{},
		Moderation: NullModeration{},
		Notifier:   NullNotifier{},
		Tracker:    NewMemoryTracker(),
		Profiles:   NullProfileCache{},
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Core) system() access.Actor {
	return access.System(c.Settings.SystemAdminID)
}

// ownerOf resolves the member owning an entity, falling back to the system
// administrator when the owner is unset or no longer exists.
func (c *Core) ownerOf(tx *gorm.DB, ownerID uint) (access.Actor, *models.Member, error) {
	if ownerID != 0 {
		var m models.Member
		err := tx.First(&m, ownerID).Error
		if err == nil {
			return access.Actor{ID: m.ID, Username: m.Username}, &m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return access.Actor{}, nil, err
		}
	}
	var admin models.Member
	err := tx.First(&admin, c.Settings.SystemAdminID).Error
	switch {
	case err == nil:
		return c.system(), &admin, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.system(), nil, nil
	default:
		return access.Actor{}, nil, err
	}
}

// Reward adds amount (possibly negative) to a member's vote balance as the
// system administrator and returns the resulting balance.
func (c *Core) Reward(ctx context.Context, tx *gorm.DB, memberID uint, amount int64) (int64, error) {
	member := &models.Member{ID: memberID}
	if err := c.Elevator.RunAs(ctx, tx, c.system(), func(s *Scope) error {
		if err := s.Increment(member, "votes_to_give", amount); err != nil {
			return err
		}
		return s.DB().Select("votes_to_give").First(member, memberID).Error
	}); err != nil {
		return 0, err
	}
	return member.VotesToGive, nil
}

// recordActivity marks an action in the request activity cache, or writes it
// through to the tracker when the context carries none.
func (c *Core) recordActivity(ctx context.Context, actor access.Actor, action string) {
	if actor.IsAnonymous() {
		return
	}
	now := c.Now()
	if a := ActivityFrom(ctx); a != nil {
		a.Mark(actor.ID, action, now)
		return
	}
	if err := c.Tracker.Touch(ctx, actor.ID, action, now); err != nil {
		c.Log.Warnf("activity touch failed member=%d action=%s err=%v", actor.ID, action, err)
	}
}

// notifyPostCreated dispatches without blocking the request.
func (c *Core) notifyPostCreated(post models.Post) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.Log.Errorf("notifier panic post=%d: %v", post.ID, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.Notifier.PostCreated(ctx, post); err != nil {
			c.Log.Warnf("post notification failed post=%d err=%v", post.ID, err)
		}
	}()
}

func (c *Core) loadMember(tx *gorm.DB, id uint) (*models.Member, error) {
	var m models.Member
	if err := tx.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (c *Core) loadPost(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := c.DB.WithContext(ctx).Preload("Tags").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
