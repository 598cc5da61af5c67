package httpapi

import (
	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

type moneyResponse struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

func newMoneyResponse(m domain.Money) moneyResponse {
	return moneyResponse{
		Amount:      m.Decimal().StringFixed(2),
		AmountMinor: m.AmountMinor,
		Currency:    m.Currency,
	}
}

type totalsResponse struct {
	Subtotal  moneyResponse `json:"subtotal"`
	Tax       moneyResponse `json:"tax"`
	Shipping  moneyResponse `json:"shipping"`
	Total     moneyResponse `json:"total"`
	ItemCount int           `json:"item_count"`
}

func newTotalsResponse(t domain.Totals) totalsResponse {
	return totalsResponse{
		Subtotal:  newMoneyResponse(t.Subtotal),
		Tax:       newMoneyResponse(t.Tax),
		Shipping:  newMoneyResponse(t.Shipping),
		Total:     newMoneyResponse(t.Total),
		ItemCount: t.ItemCount,
	}
}

type artworkResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug,omitempty"`
	Price       moneyResponse   `json:"price"`
	Image       domain.ImageRef `json:"image"`
	Category    string          `json:"category,omitempty"`
	Medium      string          `json:"medium,omitempty"`
	Dimensions  string          `json:"dimensions,omitempty"`
	Year        int             `json:"year,omitempty"`
	Description string          `json:"description,omitempty"`
}

func newArtworkResponse(a domain.Artwork) artworkResponse {
	return artworkResponse{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Price:       newMoneyResponse(a.Price),
		Image:       a.Image,
		Category:    a.Category,
		Medium:      a.Medium,
		Dimensions:  a.Dimensions,
		Year:        a.Year,
		Description: a.Description,
	}
}

type lineItemResponse struct {
	Artwork   artworkResponse `json:"artwork"`
	Quantity  int             `json:"quantity"`
	LineTotal moneyResponse   `json:"line_total"`
}

type cartResponse struct {
	Items   []lineItemResponse `json:"items"`
	Totals  totalsResponse     `json:"totals"`
	Version uint64             `json:"version"`
}

func newCartResponse(snapshot cart.Snapshot) cartResponse {
	items := make([]lineItemResponse, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		artwork := newArtworkResponse(item.Artwork)
		artwork.Description = ""
		items = append(items, lineItemResponse{
			Artwork:   artwork,
			Quantity:  item.Quantity,
			LineTotal: newMoneyResponse(domain.NewMoney(item.Extended(), item.Artwork.Price.Currency)),
		})
	}
	return cartResponse{
		Items:   items,
		Totals:  newTotalsResponse(snapshot.Totals),
		Version: snapshot.Version,
	}
}

type checkoutResponse struct {
	Status string         `json:"status"`
	Totals totalsResponse `json:"totals"`
}
