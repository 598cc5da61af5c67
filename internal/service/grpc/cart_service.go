package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/content"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	// SessionMetadataKey — ключ metadata с идентификатором сессии корзины.
	SessionMetadataKey = "cart-session"
	// DraftTokenMetadataKey — ключ metadata со значением draft-cookie.
	DraftTokenMetadataKey = "draft-token"

	// MaxQuantity — верхняя граница количества в одном вызове.
	MaxQuantity = 9999

	cartServiceName = "portfolio.cart.v1.CartService"

	grpcMethodGetCart        = "/" + cartServiceName + "/GetCart"
	grpcMethodAddItem        = "/" + cartServiceName + "/AddItem"
	grpcMethodUpdateQuantity = "/" + cartServiceName + "/UpdateQuantity"
	grpcMethodRemoveItem     = "/" + cartServiceName + "/RemoveItem"
	grpcMethodClearCart      = "/" + cartServiceName + "/ClearCart"
	grpcMethodCheckout       = "/" + cartServiceName + "/Checkout"
)

// Carts выдаёт корзину сессии и оформляет заказ.
type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Store, error)
	Checkout(ctx context.Context, sessionID string) (domain.Totals, error)
}

// Catalog разрешает снимок работы по id.
type Catalog interface {
	Artwork(ctx context.Context, id string, access content.Access) (domain.Artwork, error)
}

// AccessResolver проверяет draft-токен из metadata.
type AccessResolver interface {
	AccessFromToken(raw string) content.Access
}

// GetCartRequest пуст: корзина определяется сессией из metadata.
type GetCartRequest struct{}

// AddItemRequest добавляет работу; quantity меньше 1 поднимается до 1.
type AddItemRequest struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// UpdateQuantityRequest задаёт точное количество; 0 и меньше удаляет позицию.
type UpdateQuantityRequest struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  int    `json:"quantity"`
}

// RemoveItemRequest удаляет позицию целиком.
type RemoveItemRequest struct {
	ArtworkID string `json:"artwork_id"`
}

// ClearCartRequest очищает корзину сессии.
type ClearCartRequest struct{}

// CheckoutRequest оформляет корзину сессии.
type CheckoutRequest struct{}

// Money передаёт сумму строкой и в минимальных единицах.
type Money struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// Totals повторяет domain.Totals на проводе.
type Totals struct {
	Subtotal  Money `json:"subtotal"`
	Tax       Money `json:"tax"`
	Shipping  Money `json:"shipping"`
	Total     Money `json:"total"`
	ItemCount int   `json:"item_count"`
}

// LineItem описывает позицию корзины вместе с её стоимостью.
type LineItem struct {
	ArtworkID string `json:"artwork_id"`
	Title     string `json:"title"`
	Slug      string `json:"slug,omitempty"`
	Price     Money  `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal Money  `json:"line_total"`
}

// CartReply — состояние корзины после вызова.
type CartReply struct {
	Items   []LineItem `json:"items"`
	Totals  Totals     `json:"totals"`
	Version uint64     `json:"version"`
}

// CheckoutReply возвращает итог оформления. Status всегда checkout_requested.
type CheckoutReply struct {
	Status string `json:"status"`
	Totals Totals `json:"totals"`
}

// CartServer — серверная часть portfolio.cart.v1.CartService.
type CartServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartReply, error)
	AddItem(context.Context, *AddItemRequest) (*CartReply, error)
	UpdateQuantity(context.Context, *UpdateQuantityRequest) (*CartReply, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartReply, error)
	ClearCart(context.Context, *ClearCartRequest) (*CartReply, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutReply, error)
}

// CartService реализует gRPC API корзины поверх реестра сессий.
type CartService struct {
	carts   Carts
	catalog Catalog
	access  AccessResolver
	logger  *log.Entry
}

// NewCartService конструирует сервис с зависимостями.
func NewCartService(carts Carts, catalog Catalog, access AccessResolver, logger *log.Entry) *CartService {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-cart-service")
	}
	return &CartService{carts: carts, catalog: catalog, access: access, logger: logger}
}

// RegisterCartService регистрирует сервис на gRPC-сервере.
func RegisterCartService(registrar grpc.ServiceRegistrar, srv CartServer) {
	registrar.RegisterService(&cartServiceDesc, srv)
}

func (s *CartService) GetCart(ctx context.Context, _ *GetCartRequest) (*CartReply, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return newCartReply(store.Snapshot()), nil
}

// AddItem разрешает снимок работы через каталог с доступом запроса и кладёт его в корзину.
func (s *CartService) AddItem(ctx context.Context, req *AddItemRequest) (*CartReply, error) {
	artworkID := strings.TrimSpace(req.ArtworkID)
	if artworkID == "" {
		return nil, status.Error(codes.InvalidArgument, "artwork_id is required")
	}
	if req.Quantity > MaxQuantity {
		return nil, status.Errorf(codes.InvalidArgument, "quantity must not exceed %d", MaxQuantity)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	// Цена берётся из каталога с доступом вызова, клиент её не передаёт.
	artwork, err := s.catalog.Artwork(ctx, artworkID, s.accessFromContext(ctx))
	if err != nil {
		return nil, toStatus(err, contentError)
	}
	if err := store.AddItem(artwork, quantity); err != nil {
		return nil, toStatus(err, cartError)
	}

	s.logger.WithFields(log.Fields{"artwork_id": artworkID, "quantity": quantity}).Debug("item added via grpc")
	return newCartReply(store.Snapshot()), nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, req *UpdateQuantityRequest) (*CartReply, error) {
	artworkID := strings.TrimSpace(req.ArtworkID)
	if artworkID == "" {
		return nil, status.Error(codes.InvalidArgument, "artwork_id is required")
	}
	if req.Quantity > MaxQuantity {
		return nil, status.Errorf(codes.InvalidArgument, "quantity must not exceed %d", MaxQuantity)
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	store.UpdateQuantity(artworkID, req.Quantity)
	return newCartReply(store.Snapshot()), nil
}

func (s *CartService) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartReply, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	store.RemoveItem(strings.TrimSpace(req.ArtworkID))
	return newCartReply(store.Snapshot()), nil
}

func (s *CartService) ClearCart(ctx context.Context, _ *ClearCartRequest) (*CartReply, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	store.Clear()
	return newCartReply(store.Snapshot()), nil
}

func (s *CartService) Checkout(ctx context.Context, _ *CheckoutRequest) (*CheckoutReply, error) {
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.carts.Checkout(ctx, sessionID)
	if err != nil {
		return nil, toStatus(err, cartError)
	}
	s.logger.WithFields(log.Fields{"session_id": sessionID, "total_minor": totals.Total.AmountMinor}).Info("checkout requested via grpc")
	return &CheckoutReply{Status: "checkout_requested", Totals: newTotals(totals)}, nil
}

func (s *CartService) store(ctx context.Context) (*cart.Store, error) {
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, toStatus(err, cartError)
	}
	return store, nil
}

func (s *CartService) accessFromContext(ctx context.Context) content.Access {
	if s.access == nil {
		return content.Published()
	}
	return s.access.AccessFromToken(readMetadata(ctx, DraftTokenMetadataKey))
}

func readSessionID(ctx context.Context) (string, error) {
	sessionID := readMetadata(ctx, SessionMetadataKey)
	if sessionID == "" {
		return "", status.Error(codes.InvalidArgument, SessionMetadataKey+" metadata is required")
	}
	return sessionID, nil
}

func readMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func newMoney(m domain.Money) Money {
	return Money{Amount: m.Decimal().StringFixed(2), AmountMinor: m.AmountMinor, Currency: m.Currency}
}

func newTotals(t domain.Totals) Totals {
	return Totals{
		Subtotal:  newMoney(t.Subtotal),
		Tax:       newMoney(t.Tax),
		Shipping:  newMoney(t.Shipping),
		Total:     newMoney(t.Total),
		ItemCount: t.ItemCount,
	}
}

func newCartReply(snapshot cart.Snapshot) *CartReply {
	items := make([]LineItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, LineItem{
			ArtworkID: item.Artwork.ID,
			Title:     item.Artwork.Title,
			Slug:      item.Artwork.Slug,
			Price:     newMoney(item.Artwork.Price),
			Quantity:  item.Quantity,
			LineTotal: newMoney(domain.NewMoney(item.Extended(), item.Artwork.Price.Currency)),
		})
	}
	return &CartReply{Items: items, Totals: newTotals(snapshot.Totals), Version: snapshot.Version}
}

var cartServiceDesc = grpc.ServiceDesc{
	ServiceName: cartServiceName,
	HandlerType: (*CartServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unaryHandler(grpcMethodGetCart, CartServer.GetCart)},
		{MethodName: "AddItem", Handler: unaryHandler(grpcMethodAddItem, CartServer.AddItem)},
		{MethodName: "UpdateQuantity", Handler: unaryHandler(grpcMethodUpdateQuantity, CartServer.UpdateQuantity)},
		{MethodName: "RemoveItem", Handler: unaryHandler(grpcMethodRemoveItem, CartServer.RemoveItem)},
		{MethodName: "ClearCart", Handler: unaryHandler(grpcMethodClearCart, CartServer.ClearCart)},
		{MethodName: "Checkout", Handler: unaryHandler(grpcMethodCheckout, CartServer.Checkout)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portfolio/cart/v1/cart.proto",
}

// unaryHandler строит grpc.MethodHandler для метода сервера S.
func unaryHandler[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
