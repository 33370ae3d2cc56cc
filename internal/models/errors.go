package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a status change is not an allowed edge,
	// including when a concurrent change got there first.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStockConflict is returned when an order asks for more than is in stock.
	ErrStockConflict = errors.New("insufficient stock")
	// ErrChannelDisconnected is reported by push streams when the connection is lost.
	ErrChannelDisconnected = errors.New("push channel disconnected")
	// ErrUnauthorized is returned when the identity lacks the role for an operation.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrEmptyOrder   = errors.New("order has no items")
	ErrInvalidInput = errors.New("invalid input")
)

// TransitionError carries the order and statuses involved in a rejected transition.
type TransitionError struct {
	OrderID uint
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StockShortage describes one line that could not be satisfied.
type StockShortage struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockError lists every product whose stock could not cover an order.
type StockError struct {
	Shortages []StockShortage
}

func (e *StockError) Error() string {
	names := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		names = append(names, fmt.Sprintf("%s (requested %d, available %d)", s.Name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(names, ", ")
}

func (e *StockError) Unwrap() error { return ErrStockConflict }
