package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

// FriendshipService manages follow edges and their projection onto groups.
type FriendshipService struct {
	*Core
}

func NewFriendshipService(c *Core) *FriendshipService {
	return &FriendshipService{Core: c}
}

// Find returns the edge from initiator to other.
func (s *FriendshipService) Find(ctx context.Context, initiator, other uint) (*models.Friendship, error) {
	return findEdge(s.DB.WithContext(ctx), initiator, other)
}

func findEdge(tx *gorm.DB, initiator, other uint) (*models.Friendship, error) {
	var f models.Friendship
	if err := tx.Where("initiator_id = ? AND other_id = ?", initiator, other).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// Get loads an edge visible to actor.
func (s *FriendshipService) Get(ctx context.Context, actor access.Actor, id uint) (*models.Friendship, error) {
	var f models.Friendship
	if err := s.DB.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !s.Access.CanView(ctx, actor, &f) {
		return nil, ErrNotFound
	}
	return &f, nil
}

// Follow creates the edge initiator→target for actor, who must be the
// initiator. An existing edge is returned unchanged. When target already
// follows the initiator both edges become Approved. The edge and the group
// projection are written in one transaction.
func (s *FriendshipService) Follow(ctx context.Context, actor access.Actor, initiator, target uint) (*models.Friendship, error) {
	if actor.IsAnonymous() || !actor.Is(initiator) {
		return nil, ErrUnauthorized
	}
	if target == 0 || target == initiator {
		return nil, fmt.Errorf("cannot follow member %d: %w", target, ErrInvalidInput)
	}

	var (
		edge    *models.Friendship
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, initiator, target); err != nil {
			return err
		}
		existing, err := findEdge(tx, initiator, target)
		if err == nil {
			edge = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		edge = &models.Friendship{InitiatorID: initiator, OtherID: target, Status: models.FriendshipPending}
		if err := tx.Create(edge).Error; err != nil {
			return err
		}
		created = true
		if err := s.Groups.Add(ctx, tx, target, GroupFollowers, initiator); err != nil {
			return fmt.Errorf("project follower %d of %d: %w", initiator, target, err)
		}

		reciprocal, err := findEdge(tx, target, initiator)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		edge.Status = models.FriendshipApproved
		if err := tx.Model(&models.Friendship{}).
			Where("id IN ?", []uint{edge.ID, reciprocal.ID}).
			Update("status", models.FriendshipApproved).Error; err != nil {
			return err
		}
		if err := s.Groups.Add(ctx, tx, target, GroupFriends, initiator); err != nil {
			return fmt.Errorf("project friend %d of %d: %w", initiator, target, err)
		}
		if err := s.Groups.Add(ctx, tx, initiator, GroupFriends, target); err != nil {
			return fmt.Errorf("project friend %d of %d: %w", target, initiator, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		friendshipChanges.WithLabelValues("follow").Inc()
		if edge.Approved() {
			friendshipChanges.WithLabelValues("approve").Inc()
		}
	}
	return edge, nil
}

// lockPair locks both member rows in id order, so concurrent follows between
// the same two members see each other's edge.
func lockPair(tx *gorm.DB, a, b uint) error {
	var ids []uint
	if err := tx.Model(&models.Member{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []uint{a, b}).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if !lo.Contains(ids, b) {
		return fmt.Errorf("member %d: %w", b, ErrNotFound)
	}
	return nil
}

// Unfollow removes an edge. A missing edge is a no-op. Removing an approved
// edge demotes its reciprocal to Pending and dissolves the mutual friendship.
func (s *FriendshipService) Unfollow(ctx context.Context, actor access.Actor, id uint) error {
	var edge models.Friendship
	if err := s.DB.WithContext(ctx).First(&edge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !s.Access.CanDelete(ctx, actor, &edge) {
		return ErrUnauthorized
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, edge.InitiatorID, edge.OtherID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if edge.Approved() {
			if err := tx.Model(&models.Friendship{}).
				Where("initiator_id = ? AND other_id = ?", edge.OtherID, edge.InitiatorID).
				Update("status", models.FriendshipPending).Error; err != nil {
				return err
			}
			if err := s.Groups.Remove(ctx, tx, edge.OtherID, GroupFriends, edge.InitiatorID); err != nil {
				return err
			}
			if err := s.Groups.Remove(ctx, tx, edge.InitiatorID, GroupFriends, edge.OtherID); err != nil {
				return err
			}
		}
		if err := s.Groups.Remove(ctx, tx, edge.OtherID, GroupFollowers, edge.InitiatorID); err != nil {
			return err
		}
		return tx.Delete(&edge).Error
	})
	if err != nil {
		return err
	}
	friendshipChanges.WithLabelValues("unfollow").Inc()
	return nil
}

// List returns the edges initiated by or pointing at a member.
func (s *FriendshipService) List(ctx context.Context, memberID uint, outgoing bool) ([]models.Friendship, error) {
	column := "other_id"
	if outgoing {
		column = "initiator_id"
	}
	var edges []models.Friendship
	err := s.DB.WithContext(ctx).Where(column+" = ?", memberID).Order("id").Find(&edges).Error
	return edges, err
}
