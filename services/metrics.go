package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialbbs_posts_created_total",
		Help: "The total number of created posts",
	}, []string{"kind"})

	votesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialbbs_votes_cast_total",
		Help: "The total number of recorded votes",
	}, []string{"direction"})

	votesRefused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialbbs_votes_refused_total",
		Help: "Votes not recorded because the voter had no votes to give",
	})

	friendshipChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialbbs_friendship_changes_total",
		Help: "Follow graph changes",
	}, []string{"op"})

	feedPageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "socialbbs_feed_page_items",
		Help:    "Number of visible posts returned per feed page",
		Buckets: []float64{0, 1, 5, 10, 20, 30, 40, 50},
	})
)
