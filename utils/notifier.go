package utils

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/socialbbs/models"
)

// PostEvent is published on the notification channel for each new post.
type PostEvent struct {
	Event string          `json:"event"`
	Post  models.PostView `json:"post"`
}

// RedisNotifier fans new posts out over Redis pub/sub.
type RedisNotifier struct {
	rc      *redis.Client
	channel string
}

func NewRedisNotifier(rc *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rc: rc, channel: channel}
}

func (n *RedisNotifier) PostCreated(ctx context.Context, post models.Post) error {
	b, err := json.Marshal(PostEvent{Event: "post.created", Post: post.Public()})
	if err != nil {
		return err
	}
	return n.rc.Publish(ctx, n.channel, b).Err()
}
