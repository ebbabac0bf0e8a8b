// Package channel is the push channel between the store service and
// discussion viewers: one redis pub/sub topic per discussion id.
package channel

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/orbitlearn/discussions/src/shared/discussion"
)

const topicPrefix = "discussion:"

// Topic returns the pub/sub topic for a discussion id.
func Topic(discussionID uint64) string {
	return fmt.Sprintf("%s%d", topicPrefix, discussionID)
}

// TopicPattern matches every discussion topic (used by fan-out consumers).
func TopicPattern() string { return topicPrefix + "*" }

// MustRedis connects a redis client or dies.
func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// Bus hands out per-discussion subscriptions and publishes events.
type Bus struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Emit publishes an event on a discussion topic without a subscription.
// The store service uses this after each accepted write.
func (b *Bus) Emit(ctx context.Context, discussionID uint64, ev discussion.Event) error {
	raw, err := discussion.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Topic(discussionID), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.EventName(), err)
	}
	return nil
}

// Join subscribes to a discussion topic. The returned subscription delivers
// decoded events until Leave is called or the context that created it ends.
func (b *Bus) Join(ctx context.Context, discussionID uint64) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, Topic(discussionID))
	// Force the SUBSCRIBE round trip so a dead redis fails Join, not the
	// first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("join %s: %w", Topic(discussionID), err)
	}

	sub := &Subscription{
		bus:          b,
		discussionID: discussionID,
		pubsub:       pubsub,
		events:       make(chan discussion.Event, 64),
		done:         make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

// Subscription is one viewer's membership of a discussion topic.
type Subscription struct {
	bus          *Bus
	discussionID uint64
	pubsub       *redis.PubSub
	events       chan discussion.Event
	done         chan struct{}
	leaveOnce    sync.Once
}

func (s *Subscription) pump() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		ev, err := discussion.DecodeEvent([]byte(msg.Payload))
		if err != nil {
			// Malformed payloads are dropped; they must never kill the pump.
			log.Printf("channel: drop event on %s: %v", msg.Channel, err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Events delivers decoded topic events. The channel closes after Leave.
func (s *Subscription) Events() <-chan discussion.Event {
	return s.events
}

// Emit publishes an event on this subscription's topic.
func (s *Subscription) Emit(ctx context.Context, ev discussion.Event) error {
	return s.bus.Emit(ctx, s.discussionID, ev)
}

// Leave unsubscribes. Safe to call from any exit path; only the first call
// does work.
func (s *Subscription) Leave() error {
	var err error
	s.leaveOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
