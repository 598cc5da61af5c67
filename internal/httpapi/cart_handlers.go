package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gwatkins2090/portfolio/internal/cart"
)

// MaxQuantity — верхняя граница количества в одном запросе.
const MaxQuantity = 9999

type addItemRequest struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (a *api) store(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	store, err := a.carts.Get(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	return store, true
}

func (a *api) getCart(w http.ResponseWriter, r *http.Request) {
	store, ok := a.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

func (a *api) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	artworkID := strings.TrimSpace(req.ArtworkID)
	if artworkID == "" {
		a.writeError(w, r, errorf(http.StatusBadRequest, "invalid_request", "artwork_id is required"))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity > MaxQuantity {
		a.writeError(w, r, errorf(http.StatusBadRequest, "invalid_quantity", "quantity must not exceed %d", MaxQuantity))
		return
	}

	// Снимок берётся из каталога с доступом текущего запроса, цену клиент не передаёт.
	artwork, err := a.catalog.Artwork(r.Context(), artworkID, a.draft.AccessFromRequest(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	store, ok := a.store(w, r)
	if !ok {
		return
	}
	if err := store.AddItem(artwork, quantity); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

func (a *api) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		a.writeError(w, r, errorf(http.StatusBadRequest, "invalid_quantity", "quantity is required"))
		return
	}
	if *req.Quantity > MaxQuantity {
		a.writeError(w, r, errorf(http.StatusBadRequest, "invalid_quantity", "quantity must not exceed %d", MaxQuantity))
		return
	}

	store, ok := a.store(w, r)
	if !ok {
		return
	}
	store.UpdateQuantity(chi.URLParam(r, "artworkID"), *req.Quantity)
	writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

func (a *api) removeItem(w http.ResponseWriter, r *http.Request) {
	store, ok := a.store(w, r)
	if !ok {
		return
	}
	store.RemoveItem(chi.URLParam(r, "artworkID"))
	writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

func (a *api) clearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := a.store(w, r)
	if !ok {
		return
	}
	store.Clear()
	writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

func (a *api) checkout(w http.ResponseWriter, r *http.Request) {
	totals, err := a.carts.Checkout(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, checkoutResponse{
		Status: "checkout_requested",
		Totals: newTotalsResponse(totals),
	})
}
