package models

import (
	"fmt"
	"strconv"
	"strings"
)

// OrderStatus represents the possible states of an order.
// The numeric values are part of the push wire format and must not change.
type OrderStatus int

const (
	StatusReceived     OrderStatus = 0
	StatusInProduction OrderStatus = 1
	StatusCancelled    OrderStatus = 2
	StatusReady        OrderStatus = 3
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []OrderStatus{StatusReceived, StatusInProduction, StatusReady, StatusCancelled}

var statusNames = map[OrderStatus]string{
	StatusReceived:     "received",
	StatusInProduction: "in_production",
	StatusCancelled:    "cancelled",
	StatusReady:        "ready",
}

var statusLabels = map[OrderStatus]string{
	StatusReceived:     "Recebido",
	StatusInProduction: "Em Produção",
	StatusCancelled:    "Cancelado",
	StatusReady:        "Pronto",
}

// transitions holds the allowed next states for every non-terminal status.
var transitions = map[OrderStatus][]OrderStatus{
	StatusReceived:     {StatusInProduction, StatusCancelled},
	StatusInProduction: {StatusReady, StatusCancelled},
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Label returns the human readable label shown on cards and status messages.
func (s OrderStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return s.String()
}

// Valid reports whether s is one of the four known statuses.
func (s OrderStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is an allowed edge.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus accepts either the numeric wire value or the status name.
func ParseStatus(raw string) (OrderStatus, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		s := OrderStatus(n)
		if !s.Valid() {
			return 0, fmt.Errorf("unknown status %d", n)
		}
		return s, nil
	}
	for s, name := range statusNames {
		if strings.EqualFold(name, raw) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", raw)
}

// CardAction is an operator action offered on a kitchen card.
type CardAction struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Target OrderStatus `json:"target"`
}

var (
	ActionStartProduction = CardAction{Name: "start_production", Label: "Iniciar Produção", Target: StatusInProduction}
	ActionMarkReady       = CardAction{Name: "mark_ready", Label: "Marcar como Pronto", Target: StatusReady}
	ActionCancel          = CardAction{Name: "cancel", Label: "Cancelar", Target: StatusCancelled}
)

// ActionsFor returns the card actions available for an order in status s.
// Terminal orders have none.
func ActionsFor(s OrderStatus) []CardAction {
	switch s {
	case StatusReceived:
		return []CardAction{ActionStartProduction, ActionCancel}
	case StatusInProduction:
		return []CardAction{ActionMarkReady, ActionCancel}
	default:
		return nil
	}
}
