package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_WireValues(t *testing.T) {
	assert.Equal(t, 0, int(StatusReceived))
	assert.Equal(t, 1, int(StatusInProduction))
	assert.Equal(t, 2, int(StatusCancelled))
	assert.Equal(t, 3, int(StatusReady))
}

func TestOrderStatus_Transitions(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{StatusReceived, StatusInProduction}: true,
		{StatusReceived, StatusCancelled}:    true,
		{StatusInProduction, StatusReady}:    true,
		{StatusInProduction, StatusCancelled}: true,
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				assert.Equal(t, allowed[[2]OrderStatus{from, to}], from.CanTransitionTo(to))
			})
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, StatusReceived.IsTerminal())
	assert.False(t, StatusInProduction.IsTerminal())
	assert.True(t, StatusReady.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	// Terminal states offer no actions and allow no transitions.
	for _, s := range []OrderStatus{StatusReady, StatusCancelled} {
		assert.Empty(t, ActionsFor(s))
		for _, to := range AllStatuses {
			assert.False(t, s.CanTransitionTo(to))
		}
	}
}

func TestActionsFor(t *testing.T) {
	assert.Equal(t, []CardAction{ActionStartProduction, ActionCancel}, ActionsFor(StatusReceived))
	assert.Equal(t, []CardAction{ActionMarkReady, ActionCancel}, ActionsFor(StatusInProduction))

	// Every offered action must be an allowed edge.
	for _, s := range AllStatuses {
		for _, a := range ActionsFor(s) {
			assert.True(t, s.CanTransitionTo(a.Target), "%s offers %s", s, a.Name)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProduction, s)

	s, err = ParseStatus("Ready")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, s)

	_, err = ParseStatus("7")
	assert.Error(t, err)
	_, err = ParseStatus("plating")
	assert.Error(t, err)
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	var err error = &TransitionError{OrderID: 4, From: StatusReady, To: StatusCancelled}
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "ready")

	err = fmt.Errorf("placing order: %w", &StockError{Shortages: []StockShortage{{ProductID: 1, Name: "Latte", Requested: 3, Available: 1}}})
	assert.True(t, errors.Is(err, ErrStockConflict))
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1, stockErr.Shortages[0].Available)
}

func TestOrder_ComputeTotal(t *testing.T) {
	order := Order{Items: []OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("8.50")},
	}}
	assert.True(t, decimal.RequireFromString("18.50").Equal(order.ComputeTotal()))
}

func TestOrder_IsRecentlyTerminal(t *testing.T) {
	now := time.Now()
	order := Order{Status: StatusReady, UpdatedAt: now.Add(-5 * time.Second)}
	assert.True(t, order.IsRecentlyTerminal(now, 10*time.Second))

	order.UpdatedAt = now.Add(-11 * time.Second)
	assert.False(t, order.IsRecentlyTerminal(now, 10*time.Second))

	order.Status = StatusInProduction
	order.UpdatedAt = now
	assert.False(t, order.IsRecentlyTerminal(now, 10*time.Second))
}

func TestMergeLines(t *testing.T) {
	merged := MergeLines([]LineRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 2}})
	assert.Equal(t, []LineRequest{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 1}}, merged)
}

func TestProduct_Promotion(t *testing.T) {
	p := Product{Name: "Pão de Queijo", Price: decimal.RequireFromString("4.00")}
	assert.True(t, p.Price.Equal(p.EffectivePrice()))

	err := p.SetPromotion(true, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	zero := decimal.Zero
	assert.ErrorIs(t, p.SetPromotion(true, &zero), ErrInvalidInput)

	promo := decimal.RequireFromString("2.00")
	require.NoError(t, p.SetPromotion(true, &promo))
	assert.True(t, promo.Equal(p.EffectivePrice()))

	require.NoError(t, p.SetPromotion(false, &promo))
	assert.False(t, p.PromoPrice.Valid)
	assert.True(t, p.Price.Equal(p.EffectivePrice()))
}

func TestProduct_KeywordList(t *testing.T) {
	p := Product{Name: "Cappuccino", Keywords: "cappuccino, Caputino,,"}
	assert.Equal(t, []string{"cappuccino", "caputino"}, p.KeywordList())
}
