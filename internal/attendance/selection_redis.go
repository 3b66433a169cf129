package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSelection keeps the selected subject under a single Redis key, so a
// select is one SET and concurrent selects simply last-write-win.
type RedisSelection struct {
	client *redis.Client
	key    string
}

// NewRedisSelection stores the slot at key.
func NewRedisSelection(client *redis.Client, key string) *RedisSelection {
	if key == "" {
		key = "attendance:selected-subject"
	}
	return &RedisSelection{client: client, key: key}
}

func (s *RedisSelection) GetSelection(ctx context.Context) (*SelectedSubject, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var sel SelectedSubject
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("decode selected subject: %w", err)
	}
	return &sel, nil
}

func (s *RedisSelection) ReplaceSelection(ctx context.Context, sel SelectedSubject) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, 0).Err()
}

func (s *RedisSelection) ClearSelection(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
