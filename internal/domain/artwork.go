package domain

// ImageRef ссылается на основное изображение работы в CDN контент-хранилища.
type ImageRef struct {
	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// Artwork — неизменяемый снимок работы на момент добавления в корзину.
type Artwork struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug,omitempty"`
	Price      Money    `json:"price"`
	Image      ImageRef `json:"image"`
	Category   string   `json:"category,omitempty"`
	Medium     string   `json:"medium,omitempty"`
	Dimensions string   `json:"dimensions,omitempty"`
	Year       int      `json:"year,omitempty"`
	// Description хранит уже очищенный HTML и в корзину не попадает.
	Description string `json:"-"`
}

// Validate проверяет, что снимок пригоден для корзины: есть id и корректная цена.
func (a Artwork) Validate() error {
	switch {
	case a.ID == "":
		return ErrArtworkIDRequired
	case a.Price.Currency == "":
		return ErrArtworkPriceRequired
	case a.Price.AmountMinor < 0:
		return ErrArtworkPriceInvalid
	}
	return nil
}

// LineItem — одна работа и её количество в корзине.
type LineItem struct {
	Artwork  Artwork `json:"artwork"`
	Quantity int     `json:"quantity"`
}

// Extended возвращает стоимость позиции (цена × количество) в минимальных единицах.
func (li LineItem) Extended() int64 {
	return li.Artwork.Price.AmountMinor * int64(li.Quantity)
}
