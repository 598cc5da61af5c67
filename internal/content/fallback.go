package content

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

//go:embed fallback_catalog.yaml
var defaultFallbackCatalog []byte

type fallbackFile struct {
	Currency string            `yaml:"currency"`
	Artworks []fallbackArtwork `yaml:"artworks"`
}

type fallbackArtwork struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency"`
	ImageURL    string `yaml:"image_url"`
	ImageAlt    string `yaml:"image_alt"`
	Category    string `yaml:"category"`
	Medium      string `yaml:"medium"`
	Dimensions  string `yaml:"dimensions"`
	Year        int    `yaml:"year"`
	Description string `yaml:"description"`
}

// FallbackSource отдаёт каталог из локального YAML-файла, когда удалённое хранилище не настроено.
// Черновиков у локального каталога нет, обе перспективы видят одни и те же документы.
type FallbackSource struct {
	docs    []artworkDocument
	metrics Metrics
}

// LoadFallbackSource читает каталог из файла. Пустой путь загружает встроенный каталог.
func LoadFallbackSource(path string, metrics Metrics) (*FallbackSource, error) {
	data := defaultFallbackCatalog
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fallback catalog: %w", err)
		}
		data = raw
	}
	return ParseFallbackSource(data, metrics)
}

// ParseFallbackSource разбирает YAML каталога и рендерит markdown описаний в HTML.
func ParseFallbackSource(data []byte, metrics Metrics) (*FallbackSource, error) {
	var file fallbackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fallback catalog: %w", err)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	markdown := goldmark.New(goldmark.WithExtensions(extension.GFM))
	seen := make(map[string]bool, len(file.Artworks))
	docs := make([]artworkDocument, 0, len(file.Artworks))
	for i, item := range file.Artworks {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("fallback artwork #%d: %w", i+1, domain.ErrArtworkIDRequired)
		}
		if seen[id] {
			return nil, fmt.Errorf("fallback artwork %s is duplicated", id)
		}
		seen[id] = true

		price, err := decimal.NewFromString(strings.TrimSpace(item.Price))
		if err != nil {
			return nil, fmt.Errorf("fallback artwork %s price: %w", id, err)
		}

		var description bytes.Buffer
		if err := markdown.Convert([]byte(item.Description), &description); err != nil {
			return nil, fmt.Errorf("render fallback artwork %s description: %w", id, err)
		}

		currency := item.Currency
		if currency == "" {
			currency = file.Currency
		}
		docs = append(docs, artworkDocument{
			ID:          id,
			Title:       item.Title,
			Slug:        item.Slug,
			Price:       &price,
			Currency:    currency,
			Image:       domain.ImageRef{URL: item.ImageURL, Alt: item.ImageAlt},
			Category:    item.Category,
			Medium:      item.Medium,
			Dimensions:  item.Dimensions,
			Year:        item.Year,
			Description: description.String(),
		})
	}

	return &FallbackSource{docs: docs, metrics: metrics}, nil
}

// Fetch реализует Source для запросов каталога.
func (s *FallbackSource) Fetch(_ context.Context, q Query, _ Access) (json.RawMessage, error) {
	s.metrics.RecordFallbackRead()

	switch q.Name {
	case QueryArtworks:
		return json.Marshal(s.docs)
	case QueryArtworkCount:
		return json.Marshal(len(s.docs))
	case QueryArtwork:
		id, _ := q.Params["id"].(string)
		for _, doc := range s.docs {
			if doc.ID == id || (doc.Slug != "" && doc.Slug == id) {
				return json.Marshal(doc)
			}
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrContentNotFound, id)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownQuery, q.Name)
	}
}

// Len возвращает число работ в каталоге.
func (s *FallbackSource) Len() int {
	return len(s.docs)
}

var _ Source = (*FallbackSource)(nil)
