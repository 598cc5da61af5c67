package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// Имена запросов каталога.
const (
	QueryArtwork      = "artwork"
	QueryArtworks     = "artworks"
	QueryArtworkCount = "artwork_count"
)

const artworkCountQuery = `count(*[_type == "artwork"])`

// Теги ревалидации каталога.
const (
	TagArtwork = "artwork"
)

// ArtworkTag возвращает тег конкретной работы.
func ArtworkTag(id string) string {
	return TagArtwork + ":" + id
}

// TagsFor возвращает теги ревалидации для именованного запроса каталога.
func TagsFor(name string, params map[string]any) []string {
	switch name {
	case QueryArtwork:
		if id, ok := params["id"].(string); ok && strings.TrimSpace(id) != "" {
			return []string{TagArtwork, ArtworkTag(strings.TrimSpace(id))}
		}
		return []string{TagArtwork}
	case QueryArtworks, QueryArtworkCount:
		return []string{TagArtwork}
	default:
		return nil
	}
}

// Query — вызов именованного запроса с параметрами.
type Query struct {
	Name   string
	Params map[string]any
	Tags   []string
}

// CacheKey возвращает ключ кэша: имя запроса и параметры в каноническом JSON.
func (q Query) CacheKey() (string, error) {
	if len(q.Params) == 0 {
		return q.Name, nil
	}
	// encoding/json сортирует ключи map, поэтому порядок параметров не влияет на ключ.
	params, err := json.Marshal(q.Params)
	if err != nil {
		return "", fmt.Errorf("encode query params: %w", err)
	}
	return q.Name + "?" + string(params), nil
}

// Definition — зарегистрированный текст запроса.
type Definition struct {
	Name string
	Text string
}

// QuerySet хранит именованные запросы; регистрация выполняется один раз при старте.
type QuerySet struct {
	mu      sync.RWMutex
	queries map[string]Definition
}

// NewQuerySet создаёт пустой набор.
func NewQuerySet() *QuerySet {
	return &QuerySet{queries: make(map[string]Definition)}
}

// Register добавляет запрос. Повторная регистрация имени возвращает ошибку.
func (s *QuerySet) Register(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("query name and text are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.queries[name]; exists {
		return fmt.Errorf("query %q is already registered", name)
	}
	s.queries[name] = Definition{Name: name, Text: text}
	return nil
}

// Lookup возвращает определение запроса или domain.ErrUnknownQuery.
func (s *QuerySet) Lookup(name string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.queries[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", domain.ErrUnknownQuery, name)
	}
	return def, nil
}

// DefaultQueries возвращает запросы каталога работ.
func DefaultQueries() *QuerySet {
	set := NewQuerySet()
	_ = set.Register(QueryArtworks, `*[_type == "artwork" && defined(price)] | order(year desc, title asc) {
  "id": _id, title, "slug": slug.current, price, currency, "image": {"url": image.asset->url, "alt": image.alt},
  category, medium, dimensions, year, description
}`)
	_ = set.Register(QueryArtwork, `*[_type == "artwork" && (_id == $id || slug.current == $id)][0] {
  "id": _id, title, "slug": slug.current, price, currency, "image": {"url": image.asset->url, "alt": image.alt},
  category, medium, dimensions, year, description
}`)
	_ = set.Register(QueryArtworkCount, artworkCountQuery)
	return set
}

// Source — граница внешнего контент-хранилища. Документы возвращаются только для чтения.
type Source interface {
	Fetch(ctx context.Context, q Query, access Access) (json.RawMessage, error)
}

// Metrics описывает метрики слоя контента.
type Metrics interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordFetch(perspective string, duration time.Duration, err error)
	RecordRevalidation()
	RecordFallbackRead()
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheHit()                          {}
func (nopMetrics) RecordCacheMiss()                         {}
func (nopMetrics) RecordFetch(string, time.Duration, error) {}
func (nopMetrics) RecordRevalidation()                      {}
func (nopMetrics) RecordFallbackRead()                      {}
