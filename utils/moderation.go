package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cppla/socialbbs/models"
)

// ModerationMessage is the payload published for posts awaiting analysis.
type ModerationMessage struct {
	PostID   uint      `json:"post_id"`
	OwnerID  uint      `json:"owner_id"`
	ThreadID uint      `json:"thread_id"`
	Queued   time.Time `json:"queued_at"`
}

// NatsModerationQueue publishes posts of untrusted authors to a NATS subject.
type NatsModerationQueue struct {
	conn    *nats.Conn
	subject string
}

// ConnectNats dials url, falling back to the default local server.
func ConnectNats(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url, nats.Name("socialbbs"), nats.MaxReconnects(-1))
}

func NewNatsModerationQueue(conn *nats.Conn, subject string) *NatsModerationQueue {
	return &NatsModerationQueue{conn: conn, subject: subject}
}

// Enqueue publishes post to the moderation subject.
func (q *NatsModerationQueue) Enqueue(_ context.Context, post models.Post) error {
	msg, err := ModerationMsg(q.subject, post, time.Now())
	if err != nil {
		return err
	}
	return q.conn.PublishMsg(msg)
}

// ModerationMsg builds the NATS message for post. The message id makes
// redeliveries of the same post idempotent for JetStream consumers.
func ModerationMsg(subject string, post models.Post, now time.Time) (*nats.Msg, error) {
	data, err := json.Marshal(ModerationMessage{
		PostID:   post.ID,
		OwnerID:  post.UserID,
		ThreadID: post.ThreadID,
		Queued:   now.UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr: []string{fmt.Sprintf("post-%d", post.ID)},
		},
	}, nil
}

// ConsumeModeration subscribes to subject with a queue group and hands every
// decoded message to handle until ctx is done.
func ConsumeModeration(ctx context.Context, conn *nats.Conn, subject string, handle func(context.Context, ModerationMessage) error) error {
	ch := make(chan *nats.Msg, 256)
	sub, err := conn.ChanQueueSubscribe(subject, "socialbbs-moderation", ch)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			var m ModerationMessage
			if err := json.Unmarshal(msg.Data, &m); err != nil {
				Sugar.Warnf("dropping malformed moderation message: %v", err)
				continue
			}
			if err := handle(ctx, m); err != nil {
				Sugar.Errorf("moderation of post %d failed: %v", m.PostID, err)
			}
		}
	}
}
