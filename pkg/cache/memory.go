package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is the single-instance store: LRU bounded, entries expire
// lazily on access and in bulk on each sweep.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front = most recently used
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      7 * 24 * time.Hour,
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		stop:       make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go mc.cleanupLoop(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, data, ttl)
	return nil
}

func (mc *MemoryCache) SetIfAbsent(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(value)
	if err != nil {
		return false, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.liveLocked(key); ok {
		return false, nil
	}
	mc.setLocked(key, data, ttl)
	return true, nil
}

func (mc *MemoryCache) setLocked(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	expireAt := mc.now().Add(ttl)

	if el, ok := mc.items[key]; ok {
		item := el.Value.(*memoryItem)
		item.value = data
		item.expireAt = expireAt
		mc.lru.MoveToFront(el)
		return
	}

	if mc.maxEntries > 0 && len(mc.items) >= mc.maxEntries {
		mc.evictOldest()
	}
	mc.items[key] = mc.lru.PushFront(&memoryItem{key: key, value: data, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.liveLocked(key)
	var data []byte
	if ok {
		mc.lru.MoveToFront(mc.items[key])
		data = item.value
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

// Len returns the number of stored entries, expired ones included until swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

// liveLocked returns the item for key, dropping it if expired.
func (mc *MemoryCache) liveLocked(key string) (*memoryItem, bool) {
	el, ok := mc.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*memoryItem)
	if mc.now().After(item.expireAt) {
		mc.removeLocked(key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) removeLocked(key string) {
	if el, ok := mc.items[key]; ok {
		mc.lru.Remove(el)
		delete(mc.items, key)
	}
}

func (mc *MemoryCache) evictOldest() {
	if el := mc.lru.Back(); el != nil {
		mc.removeLocked(el.Value.(*memoryItem).key)
	}
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.sweep()
		case <-mc.stop:
			return
		}
	}
}

func (mc *MemoryCache) sweep() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for key, el := range mc.items {
		if now.After(el.Value.(*memoryItem).expireAt) {
			mc.removeLocked(key)
		}
	}
}

// Close stops the sweeper. The cache stays usable.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}
