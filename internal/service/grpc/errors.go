package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

type errorKind int

const (
	cartError errorKind = iota
	contentError
)

// toStatus переводит доменную ошибку в gRPC status.
// Прочие ошибки контента считаются недоступностью источника, прочие ошибки корзины внутренними.
func toStatus(err error, kind errorKind) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case domain.IsPrecondition(err),
		errors.Is(err, cart.ErrSessionRequired),
		errors.Is(err, domain.ErrUnknownQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrArtworkNotFound), errors.Is(err, domain.ErrContentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrCartEmpty), errors.Is(err, domain.ErrPreviewTokenRequired):
		return status.Error(codes.FailedPrecondition, err.Error())
	}

	if kind == contentError {
		return status.Error(codes.Unavailable, "content source is unavailable")
	}
	return status.Error(codes.Internal, "internal error")
}
