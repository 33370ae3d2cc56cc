// Package tracker is the customer's projection of their own orders. Cards
// of finished orders linger for a short display interval and are then
// evicted by a timer the runtime owns.
package tracker

import (
	"fmt"
	"time"

	"coffeenet/internal/models"
)

// DefaultEvictAfter is how long a ready or cancelled card stays visible.
const DefaultEvictAfter = 10 * time.Second

// Card is one order on the customer's screen.
type Card struct {
	Order models.Order
	// Token identifies the pending eviction timer; zero when none is scheduled.
	Token uint64
}

// Tracker holds the cards in arrival order.
type Tracker struct {
	Cards      []Card
	EvictAfter time.Duration
	Stale      bool
	lastToken  uint64
}

// New creates an empty tracker.
func New(evictAfter time.Duration) Tracker {
	return Tracker{EvictAfter: evictAfter}
}

// Find returns the card for an order.
func (t Tracker) Find(id uint) (Card, bool) {
	for _, c := range t.Cards {
		if c.Order.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

type (
	// Snapshot replaces the projection with the server's list. At is when
	// it was received; terminal cards then linger only for what is left of
	// their window since UpdatedAt.
	Snapshot struct {
		Orders []models.Order
		At     time.Time
	}
	// OrderPushed carries a status_update for one of the customer's orders.
	OrderPushed struct{ Order models.Order }
	// EvictionDue fires when an eviction timer expires.
	EvictionDue struct {
		OrderID uint
		Token   uint64
	}
	// Disconnected reports the push channel went down.
	Disconnected struct{ Err error }
)

func (Snapshot) isEvent()     {}
func (OrderPushed) isEvent()  {}
func (EvictionDue) isEvent()  {}
func (Disconnected) isEvent() {}

// Effect is work Reduce asks the runtime to do.
type Effect interface{ isEffect() }

type (
	ScheduleEviction struct {
		OrderID uint
		Token   uint64
		After   time.Duration
	}
	CancelEviction struct {
		OrderID uint
		Token   uint64
	}
	// Notice is a status message for the chat.
	Notice          struct{ Text string }
	RequestSnapshot struct{}
)

func (ScheduleEviction) isEffect() {}
func (CancelEviction) isEffect()   {}
func (Notice) isEffect()           {}
func (RequestSnapshot) isEffect()  {}

// Reduce applies one event without modifying t.
func Reduce(t Tracker, e Event) (Tracker, []Effect) {
	switch e := e.(type) {
	case Snapshot:
		return onSnapshot(t, e.Orders, e.At)
	case OrderPushed:
		return onPush(t, e.Order)
	case EvictionDue:
		next := t
		next.Cards = make([]Card, 0, len(t.Cards))
		for _, c := range t.Cards {
			if c.Order.ID == e.OrderID && c.Token == e.Token {
				continue
			}
			next.Cards = append(next.Cards, c)
		}
		return next, nil
	case Disconnected:
		if t.Stale {
			return t, nil
		}
		next := t
		next.Stale = true
		return next, []Effect{RequestSnapshot{}}
	}
	return t, nil
}

func onSnapshot(t Tracker, orders []models.Order, at time.Time) (Tracker, []Effect) {
	next := t
	next.Stale = false
	next.Cards = make([]Card, 0, len(orders))
	kept := map[uint64]bool{}
	var effects []Effect

	for _, o := range orders {
		card := Card{Order: o}
		if o.Status.IsTerminal() {
			if prev, ok := t.Find(o.ID); ok && prev.Token != 0 && prev.Order.Status == o.Status {
				card.Token = prev.Token
				kept[prev.Token] = true
			} else {
				next.lastToken++
				card.Token = next.lastToken
				effects = append(effects, ScheduleEviction{OrderID: o.ID, Token: card.Token, After: t.remaining(o, at)})
			}
		}
		next.Cards = append(next.Cards, card)
	}

	for _, c := range t.Cards {
		if c.Token != 0 && !kept[c.Token] {
			effects = append(effects, CancelEviction{OrderID: c.Order.ID, Token: c.Token})
		}
	}
	return next, effects
}

// remaining is what is left of the display window of a terminal order seen
// at the given time.
func (t Tracker) remaining(o models.Order, at time.Time) time.Duration {
	if at.IsZero() || o.UpdatedAt.IsZero() {
		return t.EvictAfter
	}
	left := t.EvictAfter - at.Sub(o.UpdatedAt)
	switch {
	case left < 0:
		return 0
	case left > t.EvictAfter:
		return t.EvictAfter
	}
	return left
}

func onPush(t Tracker, order models.Order) (Tracker, []Effect) {
	next := t
	next.Cards = append([]Card{}, t.Cards...)
	var effects []Effect

	idx := -1
	for i, c := range next.Cards {
		if c.Order.ID == order.ID {
			idx = i
		}
	}
	if idx == -1 {
		next.Cards = append(next.Cards, Card{Order: order})
		idx = len(next.Cards) - 1
	} else if next.Cards[idx].Order.Status == order.Status {
		next.Cards[idx].Order = order
		return next, nil
	}

	card := &next.Cards[idx]
	card.Order = order
	if order.Status != models.StatusReceived {
		effects = append(effects, Notice{Text: fmt.Sprintf("Status do pedido #%d: %s", order.ID, order.Status.Label())})
	}
	if order.Status.IsTerminal() {
		if card.Token != 0 {
			effects = append(effects, CancelEviction{OrderID: order.ID, Token: card.Token})
		}
		next.lastToken++
		card.Token = next.lastToken
		effects = append(effects, ScheduleEviction{OrderID: order.ID, Token: card.Token, After: t.EvictAfter})
	}
	return next, effects
}
