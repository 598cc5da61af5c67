package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsPrecondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "missing id", err: ErrArtworkIDRequired, want: true},
		{name: "missing price", err: ErrArtworkPriceRequired, want: true},
		{name: "wrapped negative price", err: fmt.Errorf("add item: %w", ErrArtworkPriceInvalid), want: true},
		{name: "currency mismatch joined", err: errors.Join(ErrCurrencyMismatch, errors.New("extra")), want: true},
		{name: "storage error", err: ErrCartNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPrecondition(tt.err); got != tt.want {
				t.Errorf("IsPrecondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArtworkValidate(t *testing.T) {
	valid := Artwork{ID: "w1", Price: NewMoney(100, "USD")}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid artwork, got %v", err)
	}

	tests := []struct {
		name string
		art  Artwork
		want error
	}{
		{name: "no id", art: Artwork{Price: NewMoney(100, "USD")}, want: ErrArtworkIDRequired},
		{name: "no price", art: Artwork{ID: "w1"}, want: ErrArtworkPriceRequired},
		{name: "negative price", art: Artwork{ID: "w1", Price: NewMoney(-1, "USD")}, want: ErrArtworkPriceInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.art.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLineItemExtended(t *testing.T) {
	item := LineItem{Artwork: Artwork{ID: "w1", Price: NewMoney(12000, "USD")}, Quantity: 2}
	if got := item.Extended(); got != 24000 {
		t.Fatalf("expected 24000, got %d", got)
	}
}
