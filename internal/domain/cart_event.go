package domain

import "time"

// CartEventType перечисляет изменения корзины, которые уходят в outbox.
type CartEventType string

const (
	CartEventItemAdded         CartEventType = "item_added"
	CartEventItemRemoved       CartEventType = "item_removed"
	CartEventQuantityUpdated   CartEventType = "quantity_updated"
	CartEventCleared           CartEventType = "cart_cleared"
	CartEventCheckoutRequested CartEventType = "checkout_requested"
)

// CartAggregateType — тип агрегата для записей outbox.
const CartAggregateType = "cart"

// CartEvent описывает одно изменение корзины сессии.
// Version растёт монотонно в пределах загруженной сессии и задаёт порядок событий.
type CartEvent struct {
	SessionID  string        `json:"session_id"`
	Type       CartEventType `json:"type"`
	Version    uint64        `json:"version"`
	ArtworkID  string        `json:"artwork_id,omitempty"`
	Quantity   int           `json:"quantity,omitempty"`
	Totals     Totals        `json:"totals"`
	OccurredAt time.Time     `json:"occurred_at"`
}
