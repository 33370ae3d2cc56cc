// Package push carries server-initiated order state to connected viewers
// over websockets. The server side fans messages out per identity; the
// client side yields decoded envelopes until the connection drops.
package push

import (
	"encoding/json"
	"fmt"

	"coffeenet/internal/models"
)

// MessageType names the payload carried by an Envelope.
type MessageType string

const (
	TypeMenu         MessageType = "menu"
	TypeActiveOrders MessageType = "active_orders"
	TypeInitialState MessageType = "initial_state"
	TypeNewOrder     MessageType = "new_order"
	TypeStatusUpdate MessageType = "status_update"
)

// Envelope is the single frame format of the push channel.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under the given type.
func NewEnvelope(t MessageType, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: raw}, nil
}

// Encode returns the frame bytes.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Order decodes a new_order or status_update payload.
func (e Envelope) Order() (models.Order, error) {
	var order models.Order
	if err := json.Unmarshal(e.Data, &order); err != nil {
		return order, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return order, nil
}

// Orders decodes an initial_state or active_orders payload.
func (e Envelope) Orders() ([]models.Order, error) {
	var orders []models.Order
	if err := json.Unmarshal(e.Data, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return orders, nil
}

// Products decodes a menu payload.
func (e Envelope) Products() ([]models.Product, error) {
	var products []models.Product
	if err := json.Unmarshal(e.Data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return products, nil
}

func encode(t MessageType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(t, data)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
