package services

import "time"

// Settings are the deployment-wide engine policies.
type Settings struct {
	// AnonymousPosting allows posts from requests without a member identity.
	AnonymousPosting bool
	// TrustedPosterBalance is the balance at which content analysis runs inline
	// instead of handing the post to the moderation queue.
	TrustedPosterBalance int64
	// SingleVote keeps at most one vote per (member, post) pair.
	SingleVote bool
	// RequireVoteBalance refuses votes from members with no votes to give.
	RequireVoteBalance bool
	PostReward         int64
	VoteCost           int64
	FeedMaxLimit       int
	FeedDefaultLimit   int
	// PostTypeMaxAge bounds the age of posts of the listed types in feeds.
	// Types without an entry are never filtered by age.
	PostTypeMaxAge map[string]time.Duration
	// SystemAdminID is the member that owns maintenance writes and stands in
	// for posts without a valid owner.
	SystemAdminID uint
}

// DefaultSettings returns the policies used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		TrustedPosterBalance: 10,
		SingleVote:           true,
		RequireVoteBalance:   true,
		PostReward:           2,
		VoteCost:             1,
		FeedMaxLimit:         50,
		FeedDefaultLimit:     20,
		SystemAdminID:        1,
	}
}

func (s Settings) clampLimit(limit int) int {
	max := s.FeedMaxLimit
	if max <= 0 {
		max = 50
	}
	if limit <= 0 {
		limit = s.FeedDefaultLimit
	}
	if limit <= 0 || limit > max {
		limit = max
	}
	return limit
}
