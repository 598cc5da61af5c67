package content

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	value     json.RawMessage
	tags      []string
	expiresAt time.Time
}

// Cache хранит опубликованные ответы с TTL и индексом по тегам ревалидации.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	entries    map[string]cacheEntry
	byTag      map[string]map[string]struct{}
	generation uint64
	now        func() time.Time
}

// NewCache создаёт кэш. ttl <= 0 заменяется значением по умолчанию.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		byTag:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Get возвращает непросроченное значение.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return append(json.RawMessage(nil), entry.value...), true
}

// Set сохраняет значение с тегами.
func (c *Cache) Set(key string, value json.RawMessage, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, tags)
}

// Generation возвращает номер поколения; он растёт при каждой ревалидации.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfGeneration сохраняет значение, только если с момента generation не было ревалидаций.
// Так ответ, полученный до ревалидации, не попадает в кэш после неё.
func (c *Cache) SetIfGeneration(generation uint64, key string, value json.RawMessage, tags []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.setLocked(key, value, tags)
	return true
}

// Revalidate удаляет все записи с любым из тегов и возвращает число удалённых.
func (c *Cache) Revalidate(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	evicted := 0
	for _, tag := range tags {
		for key := range c.byTag[tag] {
			if c.removeLocked(key) {
				evicted++
			}
		}
	}
	return evicted
}

// Purge очищает кэш.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.entries = make(map[string]cacheEntry)
	c.byTag = make(map[string]map[string]struct{})
}

// Len возвращает число записей, включая ещё не удалённые просроченные.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) setLocked(key string, value json.RawMessage, tags []string) {
	c.removeLocked(key)

	entry := cacheEntry{
		value:     append(json.RawMessage(nil), value...),
		tags:      append([]string(nil), tags...),
		expiresAt: c.now().Add(c.ttl),
	}
	c.entries[key] = entry
	for _, tag := range entry.tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *Cache) removeLocked(key string) bool {
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	for _, tag := range entry.tags {
		keys := c.byTag[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byTag, tag)
		}
	}
	return true
}

// CachedSource кэширует опубликованные чтения источника. Чтения черновиков идут мимо кэша.
type CachedSource struct {
	source  Source
	cache   *Cache
	metrics Metrics
}

// NewCachedSource оборачивает источник кэшем.
func NewCachedSource(source Source, cache *Cache, metrics Metrics) *CachedSource {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CachedSource{source: source, cache: cache, metrics: metrics}
}

// Fetch реализует Source.
func (s *CachedSource) Fetch(ctx context.Context, q Query, access Access) (json.RawMessage, error) {
	if access.IsPreview() || s.cache == nil {
		return s.source.Fetch(ctx, q, access)
	}

	key, err := q.CacheKey()
	if err != nil {
		return nil, err
	}
	if value, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		return value, nil
	}
	s.metrics.RecordCacheMiss()

	generation := s.cache.Generation()
	value, err := s.source.Fetch(ctx, q, access)
	if err != nil {
		return nil, err
	}
	s.cache.SetIfGeneration(generation, key, value, q.Tags)
	return value, nil
}

var _ Source = (*CachedSource)(nil)
