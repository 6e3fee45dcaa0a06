package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptiq/model-gateway/internal/domain"
)

const defaultConversationTTL = 30 * 24 * time.Hour

// Redis stores each conversation as a list of JSON-encoded turns, shared
// across gateway instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: defaultConversationTTL}, nil
}

func redisKey(userID, conversationID string) string {
	return "conversation:" + userID + ":" + conversationID
}

func (r *Redis) Turns(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	raw, err := r.client.LRange(ctx, redisKey(userID, conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			slog.Warn("skipping undecodable conversation turn",
				"conversation_id", conversationID,
				"error", err,
			)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *Redis) Append(ctx context.Context, userID, conversationID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	key := redisKey(userID, conversationID)
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation turns: %w", err)
	}
	return nil
}

// Ping reports whether the backing redis is reachable. The readiness
// endpoint uses it.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
