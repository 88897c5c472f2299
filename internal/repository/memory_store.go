package repository

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	drepo "MoodTreasury/internal/domain/repository"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

type historyEntry struct {
	at   time.Time
	data []byte
}

// MemoryStore implements DurableStore in process memory. It backs tests and
// local runs without a Redis; production deployments use RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	history map[string][]historyEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]memoryItem),
		history: make(map[string][]historyEntry),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *MemoryStore) SetNowFunc(now func() time.Time) { s.now = now }

func (s *MemoryStore) GetJSON(_ context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || item.expired(s.now()) {
		return drepo.ErrNotFound
	}
	return json.Unmarshal(item.data, dest)
}

func (s *MemoryStore) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expireAt time.Time
	if ttl > 0 {
		expireAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = memoryItem{data: data, expireAt: expireAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IncrByFloat(_ context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := 0.0
	if item, ok := s.items[key]; ok && !item.expired(s.now()) {
		if v, err := strconv.ParseFloat(string(item.data), 64); err == nil {
			cur = v
		}
	}
	cur += delta

	var expireAt time.Time
	if ttl > 0 {
		expireAt = s.now().Add(ttl)
	}
	s.items[key] = memoryItem{data: []byte(strconv.FormatFloat(cur, 'f', -1, 64)), expireAt: expireAt}
	return cur, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
		delete(s.history, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, key string, at time.Time, value interface{}, retention time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.history[key], historyEntry{at: at, data: data})
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	if retention > 0 {
		cutoff := s.now().Add(-retention)
		trimmed := entries[:0]
		for _, e := range entries {
			if !e.at.Before(cutoff) {
				trimmed = append(trimmed, e)
			}
		}
		entries = trimmed
	}
	s.history[key] = entries
	return nil
}

func (s *MemoryStore) RangeHistory(_ context.Context, key string, from, to time.Time, limit int) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [][]byte
	for _, e := range s.history[key] {
		if e.at.Before(from) || e.at.After(to) {
			continue
		}
		out = append(out, e.data)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
