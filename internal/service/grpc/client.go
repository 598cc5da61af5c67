package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CartClient вызывает portfolio.cart.v1.CartService через JSON-кодек.
type CartClient struct {
	cc grpc.ClientConnInterface
}

// NewCartClient оборачивает соединение клиентом корзины.
func NewCartClient(cc grpc.ClientConnInterface) *CartClient {
	return &CartClient{cc: cc}
}

func (c *CartClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	return invoke[CartReply](ctx, c.cc, grpcMethodGetCart, in, opts)
}

func (c *CartClient) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*CartReply, error) {
	return invoke[CartReply](ctx, c.cc, grpcMethodAddItem, in, opts)
}

func (c *CartClient) UpdateQuantity(ctx context.Context, in *UpdateQuantityRequest, opts ...grpc.CallOption) (*CartReply, error) {
	return invoke[CartReply](ctx, c.cc, grpcMethodUpdateQuantity, in, opts)
}

func (c *CartClient) RemoveItem(ctx context.Context, in *RemoveItemRequest, opts ...grpc.CallOption) (*CartReply, error) {
	return invoke[CartReply](ctx, c.cc, grpcMethodRemoveItem, in, opts)
}

func (c *CartClient) ClearCart(ctx context.Context, in *ClearCartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	return invoke[CartReply](ctx, c.cc, grpcMethodClearCart, in, opts)
}

func (c *CartClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutReply, error) {
	return invoke[CheckoutReply](ctx, c.cc, grpcMethodCheckout, in, opts)
}

// ContentClient вызывает portfolio.content.v1.ContentService.
type ContentClient struct {
	cc grpc.ClientConnInterface
}

// NewContentClient оборачивает соединение клиентом контента.
func NewContentClient(cc grpc.ClientConnInterface) *ContentClient {
	return &ContentClient{cc: cc}
}

// Query выполняет именованный запрос: {"name": ..., "params": {...}}.
func (c *ContentClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, grpcMethodQuery, in, opts)
}

// invoke добавляет JSON content-subtype к каждому вызову.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
