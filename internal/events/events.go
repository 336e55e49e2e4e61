// Package events publishes swipe-service notifications on Redis pub/sub and
// lets listeners react to them. A feed is never pushed: listeners receive
// EVENT_FEED_STALE and pull a fresh feed.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel names. Each event is published on the channel named after its type.
const (
	JobDecided         = "EVENT_JOB_DECIDED"
	FeedStale          = "EVENT_FEED_STALE"
	JobModerated       = "EVENT_JOB_MODERATED"
	ApplicationCreated = "EVENT_APPLICATION_CREATED"
	ApplicationMoved   = "EVENT_APPLICATION_MOVED"
	JobsExpired        = "EVENT_JOBS_EXPIRED"
)

// Event is the flat JSON payload shared by every channel.
type Event struct {
	Type          string   `json:"type"`
	SeekerID      string   `json:"seekerId,omitempty"`
	EmployerID    string   `json:"employerId,omitempty"`
	JobID         string   `json:"jobId,omitempty"`
	JobIDs        []string `json:"jobIds,omitempty"`
	ApplicationID string   `json:"applicationId,omitempty"`
	Action        string   `json:"action,omitempty"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// Publisher sends events. Publishing is best-effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event. Used when no Redis URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Redis publishes on a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// NewRedis returns a Publisher backed by rdb.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (p *Redis) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	if err := p.rdb.Publish(ctx, e.Type, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Recorder keeps published events in memory. Handy in tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}

// Handler reacts to one event.
type Handler func(ctx context.Context, e Event)

// Subscribe listens on channels until ctx is done and calls h for every
// decodable message. Undecodable payloads are logged and skipped.
func Subscribe(ctx context.Context, rdb *redis.Client, log *zap.Logger, h Handler, channels ...string) error {
	sub := rdb.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %v: %w", channels, err)
	}
	log.Info("subscribed", zap.Strings("channels", channels))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			dispatch(ctx, log, h, m.Channel, m.Payload)
		}
	}
}

func dispatch(ctx context.Context, log *zap.Logger, h Handler, channel, payload string) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		log.Warn("undecodable event", zap.String("channel", channel), zap.Error(err))
		return
	}
	if e.Type == "" {
		e.Type = channel
	}
	h(ctx, e)
}
