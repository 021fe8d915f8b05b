package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

// VoteService records votes within the vote economy.
type VoteService struct {
	*Core
}

func NewVoteService(c *Core) *VoteService {
	return &VoteService{Core: c}
}

// Vote casts a vote by actor on a post. A voter without votes to give gets
// the post back with zero remaining votes and nothing is recorded.
func (s *VoteService) Vote(ctx context.Context, actor access.Actor, postID uint, direction int) (*models.PostView, error) {
	if actor.IsAnonymous() {
		return nil, ErrUnauthorized
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Deleted || !s.Access.CanView(ctx, actor, post) {
		return nil, ErrNotFound
	}

	direction = models.NormalizeDirection(direction)
	var (
		remaining int64
		recorded  bool
		author    *models.Member
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		voter, err := s.loadMember(tx, actor.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if s.Settings.RequireVoteBalance && voter.VotesToGive <= 0 {
			return nil
		}

		if err := s.writeVote(tx, actor.ID, post.ID, direction); err != nil {
			return err
		}
		recorded = true

		up, down, err := tally(tx, post.ID)
		if err != nil {
			return err
		}
		postOwner, ownerMember, err := s.ownerOf(tx, post.UserID)
		if err != nil {
			return err
		}
		if err := s.Elevator.RunAs(ctx, tx, postOwner, func(es *Scope) error {
			return es.Update(post, map[string]any{"up": up, "down": down})
		}); err != nil {
			return fmt.Errorf("recount post %d: %w", post.ID, err)
		}
		post.Up, post.Down = up, down

		if ownerMember != nil && ownerMember.ID != actor.ID {
			column := "up"
			if direction == models.VoteDown {
				column = "down"
			}
			if err := s.Elevator.RunAs(ctx, tx, postOwner, func(es *Scope) error {
				return es.Increment(ownerMember, column, 1)
			}); err != nil {
				return fmt.Errorf("author aggregate of %d: %w", ownerMember.ID, err)
			}
			author = ownerMember
		}

		remaining, err = s.Reward(ctx, tx, actor.ID, -s.Settings.VoteCost)
		return err
	})
	if err != nil {
		return nil, err
	}
	if author != nil {
		s.Profiles.ForgetMember(ctx, *author)
	}

	view := post.Public()
	view.RemainingVotes = &remaining
	if recorded {
		view.Vote = models.Marker(direction)
		votesCast.WithLabelValues(models.Marker(direction)).Inc()
	} else {
		votesRefused.Inc()
	}
	return &view, nil
}

// writeVote overwrites the voter's existing vote under the single-vote
// policy and appends a new one otherwise.
func (s *VoteService) writeVote(tx *gorm.DB, voter, postID uint, direction int) error {
	if s.Settings.SingleVote {
		var existing models.Vote
		err := tx.Where("user_id = ? AND post_id = ?", voter, postID).Order("id").First(&existing).Error
		if err == nil {
			return tx.Model(&existing).Update("direction", direction).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return tx.Create(&models.Vote{UserID: voter, PostID: postID, Direction: direction}).Error
}

// tally recounts the votes of a post by direction.
func tally(tx *gorm.DB, postID uint) (up, down int64, err error) {
	var rows []struct {
		Direction int
		N         int64
	}
	err = tx.Model(&models.Vote{}).
		Select("direction, COUNT(*) AS n").
		Where("post_id = ?", postID).
		Group("direction").
		Scan(&rows).Error
	for _, r := range rows {
		if r.Direction > 0 {
			up += r.N
		} else {
			down += r.N
		}
	}
	return up, down, err
}

// Votes lists the votes a member cast on a post.
func (s *VoteService) Votes(ctx context.Context, voter, postID uint) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.DB.WithContext(ctx).Where("user_id = ? AND post_id = ?", voter, postID).Order("id").Find(&votes).Error
	return votes, err
}
