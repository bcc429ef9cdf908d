package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := &RedisNotifier{client: pub, channel: DefaultChannel, timeout: time.Second}
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	err := n.Notify(context.Background(),
		Event{Kind: ContributionDue, GroupID: "g1", MembershipID: "m1", UserID: "u1", ReferenceID: "c1", At: at},
		Event{Kind: PayoutScheduled, GroupID: "g1", MembershipID: "m2", UserID: "u2", ReferenceID: "p1", At: at},
	)
	require.NoError(t, err)
	assert.Equal(t, "susu:events", pub.channel)
	require.Len(t, pub.messages, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0], &got))
	assert.Equal(t, "contribution_due", got["kind"])
	assert.Equal(t, "m1", got["membership_id"])
	assert.Equal(t, "c1", got["reference_id"])
	assert.Equal(t, "2026-03-02T08:00:00Z", got["at"])
}

func TestRedisNotifierError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := &RedisNotifier{client: pub, channel: DefaultChannel, timeout: time.Second}

	err := n.Notify(context.Background(), Event{Kind: GraceExpiring})
	assert.ErrorContains(t, err, "grace_expiring")
}

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, events ...Event) error {
	r.events = append(r.events, events...)
	return r.err
}

func TestMulti(t *testing.T) {
	failing := &recorder{err: errors.New("down")}
	ok := &recorder{}
	m := Multi{failing, ok, NewLogNotifier(nil), Discard{}}

	err := m.Notify(context.Background(), Event{Kind: ContributionDue, UserID: "u1"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1, "later notifiers still receive the event")
}
