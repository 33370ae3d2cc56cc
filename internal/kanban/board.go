// Package kanban projects pushed order states onto the kitchen board. The
// board has one bucket per non-terminal status; terminal orders leave it.
package kanban

import (
	"errors"
	"fmt"

	"coffeenet/internal/models"
)

// Buckets lists the board columns in display order.
var Buckets = []models.OrderStatus{models.StatusReceived, models.StatusInProduction}

// Board is the kitchen projection. The zero value is an empty board.
type Board struct {
	buckets map[models.OrderStatus][]models.Order
	// Stale is set while the push channel is down and cleared by the next snapshot.
	Stale bool
}

// Cards returns the orders in a bucket, in arrival order.
func (b Board) Cards(status models.OrderStatus) []models.Order {
	return b.buckets[status]
}

// Count returns the live number of cards in a bucket.
func (b Board) Count(status models.OrderStatus) int {
	return len(b.buckets[status])
}

// Title is the column heading, e.g. "Recebidos (2)".
func Title(status models.OrderStatus, count int) string {
	switch status {
	case models.StatusReceived:
		return fmt.Sprintf("Recebidos (%d)", count)
	case models.StatusInProduction:
		return fmt.Sprintf("Em Produção (%d)", count)
	}
	return fmt.Sprintf("%s (%d)", status.Label(), count)
}

// Find locates a card by order id.
func (b Board) Find(id uint) (models.Order, bool) {
	for _, status := range Buckets {
		for _, o := range b.buckets[status] {
			if o.ID == id {
				return o, true
			}
		}
	}
	return models.Order{}, false
}

// Len is the number of cards on the board.
func (b Board) Len() int {
	n := 0
	for _, status := range Buckets {
		n += len(b.buckets[status])
	}
	return n
}

// clone copies the buckets so the caller's board is never modified.
func (b Board) clone() Board {
	next := Board{buckets: make(map[models.OrderStatus][]models.Order, len(Buckets)), Stale: b.Stale}
	for _, status := range Buckets {
		next.buckets[status] = append([]models.Order{}, b.buckets[status]...)
	}
	return next
}

// without returns a copy of b with order id removed from every bucket.
func (b Board) without(id uint) Board {
	next := b.clone()
	for _, status := range Buckets {
		cards := next.buckets[status][:0]
		for _, o := range next.buckets[status] {
			if o.ID != id {
				cards = append(cards, o)
			}
		}
		next.buckets[status] = cards
	}
	return next
}

// upsert places order in the bucket of its status. A card already in that
// bucket is updated in place; one in another bucket moves to the end of
// the new one. Terminal orders are removed.
func (b Board) upsert(order models.Order) Board {
	if current, ok := b.Find(order.ID); ok && current.Status == order.Status && !order.Status.IsTerminal() {
		next := b.clone()
		cards := next.buckets[order.Status]
		for i := range cards {
			if cards[i].ID == order.ID {
				cards[i] = order
			}
		}
		return next
	}
	next := b.without(order.ID)
	if order.Status.IsTerminal() || !order.Status.Valid() {
		return next
	}
	next.buckets[order.Status] = append(next.buckets[order.Status], order)
	return next
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

type (
	// Snapshot replaces the board with the server's active orders.
	Snapshot struct{ Orders []models.Order }
	// OrderPushed carries a new_order or status_update payload.
	OrderPushed struct{ Order models.Order }
	// Disconnected reports the push channel went down.
	Disconnected struct{ Err error }
	// ActionClicked is an operator pressing a card button.
	ActionClicked struct {
		OrderID uint
		Target  models.OrderStatus
	}
	// ActionFailed reports the server refused a status change.
	ActionFailed struct {
		OrderID uint
		Target  models.OrderStatus
		Err     error
	}
)

func (Snapshot) isEvent()      {}
func (OrderPushed) isEvent()   {}
func (Disconnected) isEvent()  {}
func (ActionClicked) isEvent() {}
func (ActionFailed) isEvent()  {}

// Effect is work Reduce asks the runtime to do.
type Effect interface{ isEffect() }

type (
	// ChangeStatus asks the server to move an order.
	ChangeStatus struct {
		OrderID uint
		Target  models.OrderStatus
	}
	// Notice is a transient message for the operator.
	Notice struct{ Text string }
	// RequestSnapshot asks the runtime to reconnect and resynchronize.
	RequestSnapshot struct{}
)

func (ChangeStatus) isEffect()    {}
func (Notice) isEffect()          {}
func (RequestSnapshot) isEffect() {}

// Reduce applies one event. The board only changes in response to server
// state; clicks produce requests, never local moves.
func Reduce(b Board, e Event) (Board, []Effect) {
	switch e := e.(type) {
	case Snapshot:
		next := Board{}.clone()
		for _, o := range e.Orders {
			next = next.upsert(o)
		}
		return next, nil
	case OrderPushed:
		return b.upsert(e.Order), nil
	case Disconnected:
		if b.Stale {
			return b, nil
		}
		next := b.clone()
		next.Stale = true
		return next, []Effect{Notice{Text: "Conexão perdida. Reconectando..."}, RequestSnapshot{}}
	case ActionClicked:
		order, ok := b.Find(e.OrderID)
		if !ok {
			return b, []Effect{Notice{Text: fmt.Sprintf("Pedido #%d não está mais no quadro.", e.OrderID)}}
		}
		if !offered(order.Status, e.Target) {
			return b, []Effect{Notice{Text: fmt.Sprintf("Pedido #%d está %s; não pode ir para %s.", e.OrderID, order.Status.Label(), e.Target.Label())}}
		}
		return b, []Effect{ChangeStatus{OrderID: e.OrderID, Target: e.Target}}
	case ActionFailed:
		if errors.Is(e.Err, models.ErrInvalidTransition) {
			return b, []Effect{Notice{Text: fmt.Sprintf("Pedido #%d já foi atualizado por outra estação.", e.OrderID)}}
		}
		return b, []Effect{Notice{Text: fmt.Sprintf("Falha ao atualizar pedido #%d: %v", e.OrderID, e.Err)}}
	}
	return b, nil
}

func offered(status, target models.OrderStatus) bool {
	for _, a := range models.ActionsFor(status) {
		if a.Target == target {
			return true
		}
	}
	return false
}
