package offline

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage はプロセス内メモリに保持するCacheStorage。
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
	order  []string
}

// NewMemoryStorage は空のMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open は指定名のコレクションを返す。存在しない場合は作成する。
func (s *MemoryStorage) Open(ctx context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := &memoryCache{entries: make(map[string]*Response)}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

// Has は指定名のコレクションが存在するかを返す。
func (s *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.caches[name]
	return ok, nil
}

// Keys は全コレクション名を作成順に返す。
func (s *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// Delete はコレクションを削除する。存在した場合はtrueを返す。
func (s *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true, nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Response
}

func (c *memoryCache) Match(ctx context.Context, key string) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return resp.Clone(), nil
}

func (c *memoryCache) Put(ctx context.Context, key string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp.Clone()
	return nil
}

func (c *memoryCache) AddAll(ctx context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.Key] = e.Response.Clone()
	}
	return nil
}

// compile-time interface check
var _ CacheStorage = (*MemoryStorage)(nil)
