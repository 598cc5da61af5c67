package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// artworkDocument — форма документа работы, которую возвращают запросы каталога.
type artworkDocument struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency"`
	Image       domain.ImageRef  `json:"image"`
	Category    string           `json:"category"`
	Medium      string           `json:"medium"`
	Dimensions  string           `json:"dimensions"`
	Year        int              `json:"year"`
	Description string           `json:"description"`
}

// Catalog превращает документы хранилища в снимки работ для корзины.
type Catalog struct {
	source   Source
	currency string
	policy   *bluemonday.Policy
}

// NewCatalog создаёт каталог. currency используется для документов без валюты.
func NewCatalog(source Source, currency string) *Catalog {
	return &Catalog{
		source:   source,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		policy:   newDescriptionPolicy(),
	}
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Artwork возвращает работу по id или slug; отсутствие даёт domain.ErrArtworkNotFound.
func (c *Catalog) Artwork(ctx context.Context, id string, access Access) (domain.Artwork, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Artwork{}, domain.ErrArtworkIDRequired
	}

	raw, err := c.source.Fetch(ctx, Query{
		Name:   QueryArtwork,
		Params: map[string]any{"id": id},
		Tags:   []string{TagArtwork, ArtworkTag(id)},
	}, access)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			return domain.Artwork{}, fmt.Errorf("%w: %s", domain.ErrArtworkNotFound, id)
		}
		return domain.Artwork{}, err
	}

	var doc artworkDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Artwork{}, fmt.Errorf("decode artwork %s: %w", id, err)
	}
	return c.toArtwork(doc)
}

// Artworks возвращает все продаваемые работы. Документы без id или цены пропускаются.
func (c *Catalog) Artworks(ctx context.Context, access Access) ([]domain.Artwork, error) {
	raw, err := c.source.Fetch(ctx, Query{Name: QueryArtworks, Tags: []string{TagArtwork}}, access)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			return []domain.Artwork{}, nil
		}
		return nil, err
	}

	var docs []artworkDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode artworks: %w", err)
	}

	artworks := make([]domain.Artwork, 0, len(docs))
	for _, doc := range docs {
		artwork, err := c.toArtwork(doc)
		if err != nil {
			continue
		}
		artworks = append(artworks, artwork)
	}
	return artworks, nil
}

func (c *Catalog) toArtwork(doc artworkDocument) (domain.Artwork, error) {
	if doc.Price == nil {
		return domain.Artwork{}, fmt.Errorf("%w: %s", domain.ErrArtworkPriceRequired, doc.ID)
	}
	currency := doc.Currency
	if strings.TrimSpace(currency) == "" {
		currency = c.currency
	}

	artwork := domain.Artwork{
		ID:          doc.ID,
		Title:       doc.Title,
		Slug:        doc.Slug,
		Price:       domain.FromDecimal(*doc.Price, currency),
		Image:       doc.Image,
		Category:    doc.Category,
		Medium:      doc.Medium,
		Dimensions:  doc.Dimensions,
		Year:        doc.Year,
		Description: c.policy.Sanitize(doc.Description),
	}
	if err := artwork.Validate(); err != nil {
		return domain.Artwork{}, err
	}
	return artwork, nil
}
