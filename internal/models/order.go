package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer order. Orders are never deleted; cancelled
// orders keep their row with a terminal status.
type Order struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	CustomerID uint            `gorm:"index;not null" json:"customer_id"`
	Status     OrderStatus     `gorm:"index;not null" json:"status"`
	Total      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Items      []OrderItem     `gorm:"foreignkey:OrderID" json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderItem is one line of an order. Name and unit price are captured when
// the order is placed and never recomputed from the catalog.
type OrderItem struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	OrderID     uint            `gorm:"index;not null" json:"order_id"`
	ProductID   uint            `gorm:"not null" json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
}

// Subtotal returns quantity times the captured unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal sums the line subtotals.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// IsRecentlyTerminal reports whether the order reached a terminal status
// within window of now.
func (o *Order) IsRecentlyTerminal(now time.Time, window time.Duration) bool {
	return o.Status.IsTerminal() && now.Sub(o.UpdatedAt) <= window
}

// LineRequest asks for a quantity of one product. Prices are never sent by clients.
type LineRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

// CreateOrderRequest is the body of an order submission.
type CreateOrderRequest struct {
	Items []LineRequest `json:"items" binding:"required"`
}

// StatusChangeRequest is the body of a status change; it carries only the target.
type StatusChangeRequest struct {
	Status *OrderStatus `json:"status" binding:"required"`
}

// MergeLines sums quantities of repeated products, keeping first-seen order.
func MergeLines(lines []LineRequest) []LineRequest {
	index := make(map[uint]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
