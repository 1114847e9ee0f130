package Presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TTL 进程异常退出后残留的在线记录在该时间后过期，连接保活会不断续期
const TTL = 3 * time.Minute

// Store 每篇笔记的在线用户集合，同一用户的多个连接计数一次
type Store interface {
	Add(ctx context.Context, noteID, userID uint) error
	Remove(ctx context.Context, noteID, userID uint) error
	Members(ctx context.Context, noteID uint) ([]uint, error)
	Touch(ctx context.Context, noteID uint) error
}

// NewStore client 为 nil 时使用内存实现
func NewStore(client *redis.Client) Store {
	if client == nil {
		return NewMemoryStore()
	}
	return newRedisStore(client)
}

func newRedisStore(client redis.Cmdable) *redisStore {
	return &redisStore{client: client, ttl: TTL}
}

func presenceKey(noteID uint) string {
	return fmt.Sprintf("presence:note:%d", noteID)
}

// redisStore hash 的 field 是用户ID，value 是连接数
type redisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func (s *redisStore) Add(ctx context.Context, noteID, userID uint) error {
	key := presenceKey(noteID)
	if err := s.client.HIncrBy(ctx, key, strconv.FormatUint(uint64(userID), 10), 1).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *redisStore) Touch(ctx context.Context, noteID uint) error {
	return s.client.Expire(ctx, presenceKey(noteID), s.ttl).Err()
}

func (s *redisStore) Remove(ctx context.Context, noteID, userID uint) error {
	key := presenceKey(noteID)
	field := strconv.FormatUint(uint64(userID), 10)
	n, err := s.client.HIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return s.client.HDel(ctx, key, field).Err()
	}
	return nil
}

func (s *redisStore) Members(ctx context.Context, noteID uint) ([]uint, error) {
	fields, err := s.client.HKeys(ctx, presenceKey(noteID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	sortIDs(ids)
	return ids, nil
}

type MemoryStore struct {
	mu    sync.Mutex
	notes map[uint]map[uint]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[uint]map[uint]int)}
}

func (s *MemoryStore) Add(ctx context.Context, noteID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.notes[noteID]
	if !ok {
		users = make(map[uint]int)
		s.notes[noteID] = users
	}
	users[userID]++
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, noteID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.notes[noteID]
	if !ok {
		return nil
	}
	if users[userID]--; users[userID] <= 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(s.notes, noteID)
	}
	return nil
}

func (s *MemoryStore) Members(ctx context.Context, noteID uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.notes[noteID]))
	for id := range s.notes[noteID] {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

func (s *MemoryStore) Touch(ctx context.Context, noteID uint) error {
	return nil
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
