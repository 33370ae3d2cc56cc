package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Intent is the assistant's classification of a chat turn.
type Intent string

const (
	IntentSuggest        Intent = "suggest"
	IntentConfirm        Intent = "confirm"
	IntentClarifyGeneral Intent = "clarify_general"
	IntentClarifyStock   Intent = "clarify_stock"
	IntentClarifyProduct Intent = "clarify_product"
)

// IsClarify reports whether the assistant needs more input from the customer.
func (i Intent) IsClarify() bool {
	return strings.HasPrefix(string(i), "clarify")
}

// CartLine is a priced candidate line shown to the customer before submission.
type CartLine struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	IsPromo   bool            `json:"is_promo"`
}

// Subtotal returns quantity times unit price.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Request strips the line down to what an order submission may carry.
func (l CartLine) Request() LineRequest {
	return LineRequest{ProductID: l.ProductID, Quantity: l.Quantity}
}

// ChatRequest is one customer utterance plus the cart built so far.
type ChatRequest struct {
	Text         string        `json:"text"`
	CurrentItems []LineRequest `json:"current_items"`
}

// ChatReply is the assistant's answer to a ChatRequest.
type ChatReply struct {
	Recommendation string     `json:"recommendation"`
	ParsedItems    []CartLine `json:"parsed_items"`
	Intent         Intent     `json:"intent"`
	SuggestedItem  *CartLine  `json:"suggested_item,omitempty"`
}
