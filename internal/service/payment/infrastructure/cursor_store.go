package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCursorStore 把事件流游标持久化到 Redis，进程重启后可以
// 从上次位置继续轮询。
type RedisCursorStore struct {
	client *redis.Client
	key    string
}

func NewRedisCursorStore(client *redis.Client, key string) *RedisCursorStore {
	return &RedisCursorStore{client: client, key: key}
}

func (s *RedisCursorStore) Load(ctx context.Context) (string, error) {
	cursor, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load event cursor")
	}
	return cursor, nil
}

func (s *RedisCursorStore) Store(ctx context.Context, cursor string) error {
	// 游标不设 TTL：它就是轮询进度本身
	if err := s.client.Set(ctx, s.key, cursor, 0).Err(); err != nil {
		return errors.Wrap(err, "store event cursor")
	}
	return nil
}

// MemoryCursorStore 是游标的进程内兜底实现。
// 重启后游标丢失，轮询退化为网关默认窗口重拉——已在设计里声明的
// 可接受退化，而非缺陷。
type MemoryCursorStore struct {
	mu     sync.Mutex
	cursor string
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{}
}

func (s *MemoryCursorStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

func (s *MemoryCursorStore) Store(ctx context.Context, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	return nil
}
