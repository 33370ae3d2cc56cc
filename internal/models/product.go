package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item on the menu
type Product struct {
	ID          uint                `gorm:"primary_key" json:"id"`
	Name        string              `gorm:"unique_index;not null" json:"name"`
	Category    string              `json:"category"`
	Keywords    string              `json:"keywords"`
	Price       decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock       int                 `gorm:"not null" json:"stock"`
	OnPromotion bool                `json:"on_promotion"`
	PromoPrice  decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"promo_price"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// EffectivePrice returns the price a new order line is charged.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.OnPromotion && p.PromoPrice.Valid {
		return p.PromoPrice.Decimal
	}
	return p.Price
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// KeywordList returns the lowercase match phrases for the product, name included.
func (p *Product) KeywordList() []string {
	seen := map[string]bool{}
	var out []string
	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			return
		}
		seen[kw] = true
		out = append(out, kw)
	}
	add(p.Name)
	for _, kw := range strings.Split(p.Keywords, ",") {
		add(kw)
	}
	return out
}

// SetPromotion toggles the promotion. A promotional price above zero is
// required when enabling; disabling clears it.
func (p *Product) SetPromotion(on bool, promoPrice *decimal.Decimal) error {
	if !on {
		p.OnPromotion = false
		p.PromoPrice = decimal.NullDecimal{}
		return nil
	}
	if promoPrice == nil {
		return fmt.Errorf("%w: promotional price is required when the promotion is on", ErrInvalidInput)
	}
	if !promoPrice.IsPositive() {
		return fmt.Errorf("%w: promotional price must be greater than zero", ErrInvalidInput)
	}
	p.OnPromotion = true
	p.PromoPrice = decimal.NewNullDecimal(*promoPrice)
	return nil
}

// PriceUpdate is the body of a catalog price change.
type PriceUpdate struct {
	Price decimal.Decimal `json:"price"`
}

// PromotionUpdate is the body of a promotion toggle.
type PromotionUpdate struct {
	OnPromotion bool             `json:"on_promotion"`
	PromoPrice  *decimal.Decimal `json:"promo_price,omitempty"`
}
