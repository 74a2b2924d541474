package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kra-assist/internal/models"
)

// RedisStore keeps one JSON list per user so several API replicas share
// history. Redis expires the key after ttl without a write.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl}
}

func historyKey(userID string) string {
	return redisKeyPrefix + userID
}

func (s *RedisStore) GetHistory(ctx context.Context, userID string) ([]models.Turn, error) {
	raw, err := s.client.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]models.Turn, 0, len(raw))
	for i, item := range raw {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, userID string, turn models.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	key := historyKey(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}
