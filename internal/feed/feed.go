// Package feed pushes accepted draft actions onto a Redis list for
// downstream consumers such as stats collectors or stream overlays.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
)

// DefaultKey is the Redis list actions are appended to.
const DefaultKey = "banpick_actions"

// Action is the minimal record a consumer needs to replay a room.
type Action struct {
	RoomID    string `json:"room_id"`
	Version   int    `json:"version"`
	Kind      string `json:"kind"`
	Item      string `json:"item,omitempty"`
	Player    string `json:"player"`
	Side      string `json:"side"`
	Round     int    `json:"round"`
	Phase     string `json:"phase"`
	Timestamp int64  `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, a Action) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Action) error { return nil }

type RedisPublisher struct {
	rdb *redis.Client
	key string
}

// Connect dials Redis and checks it answers before returning.
func Connect(ctx context.Context, addr string, db int, key string) (*RedisPublisher, error) {
	if key == "" {
		key = DefaultKey
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisPublisher{rdb: rdb, key: key}, nil
}

func NewRedisPublisher(rdb *redis.Client, key string) *RedisPublisher {
	if key == "" {
		key = DefaultKey
	}
	return &RedisPublisher{rdb: rdb, key: key}
}

func (p *RedisPublisher) Publish(ctx context.Context, a Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.key, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.key, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// FromOutcome builds the record for one accepted action.
func FromOutcome(kind string, item string, out lobby.Outcome, at time.Time) Action {
	round := out.Snapshot.CurrentRound
	if len(out.Events) > 0 {
		round = out.Events[0].Round
	}
	return Action{
		RoomID:    out.Snapshot.RoomID,
		Version:   out.Snapshot.Version,
		Kind:      kind,
		Item:      item,
		Player:    out.Actor.Name,
		Side:      string(out.Actor.Side),
		Round:     round,
		Phase:     string(out.Snapshot.Phase),
		Timestamp: at.Unix(),
	}
}
