// Package lifecycle owns the authoritative order state machine: placing
// orders, changing their status and publishing every accepted change.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coffeenet/internal/models"
)

// Repository is the persistence the service needs.
type Repository interface {
	CreateOrder(ctx context.Context, customerID uint, lines []models.LineRequest) (*models.Order, error)
	Order(ctx context.Context, id uint) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, id uint, from, to models.OrderStatus) (*models.Order, error)
}

// Notifier fans accepted changes out to connected viewers. Calls must not
// block on slow viewers.
type Notifier interface {
	// OrderCreated tells kitchens about a new order and its owner about its
	// first status.
	OrderCreated(order models.Order)
	// StatusChanged tells the owner and every kitchen about a transition.
	StatusChanged(order models.Order)
}

// Recorder receives lifecycle metrics.
type Recorder interface {
	OrderCreated()
	Transition(from, to models.OrderStatus, lifetime time.Duration)
	Rejected(reason string)
}

// Service serializes mutations per order and publishes each accepted one
// before returning to the caller.
type Service struct {
	repo     Repository
	notifier Notifier
	recorder Recorder
	log      *slog.Logger

	locks *keyedMutex
	// gate keeps a status change from reaching a new order between its
	// commit and its creation broadcast.
	gate sync.RWMutex
}

// NewService creates a lifecycle service.
func NewService(repo Repository, notifier Notifier, recorder Recorder, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		recorder: recorder,
		log:      log,
		locks:    newKeyedMutex(),
	}
}

// PlaceOrder creates an order in status received for a customer.
func (s *Service) PlaceOrder(ctx context.Context, identity models.Identity, lines []models.LineRequest) (*models.Order, error) {
	if !identity.IsCustomer() {
		s.recorder.Rejected("unauthorized")
		return nil, fmt.Errorf("placing order as %s: %w", identity.Role, models.ErrUnauthorized)
	}
	if len(lines) == 0 {
		s.recorder.Rejected("empty_order")
		return nil, models.ErrEmptyOrder
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			s.recorder.Rejected("invalid_request")
			return nil, fmt.Errorf("%w: quantity of product %d must be at least 1", models.ErrInvalidInput, line.ProductID)
		}
	}

	s.gate.Lock()
	order, err := s.repo.CreateOrder(ctx, identity.UserID, models.MergeLines(lines))
	if err != nil {
		s.gate.Unlock()
		if errors.Is(err, models.ErrStockConflict) {
			s.recorder.Rejected("stock_conflict")
			s.log.Info("order rejected", "customer_id", identity.UserID, "reason", err.Error())
		}
		return nil, err
	}
	unlock := s.locks.Lock(order.ID)
	s.gate.Unlock()
	defer unlock()

	s.notifier.OrderCreated(*order)
	s.recorder.OrderCreated()
	s.log.Info("order created", "order_id", order.ID, "customer_id", identity.UserID, "total", order.Total.StringFixed(2))
	return order, nil
}

// ChangeStatus moves an order to target. Only kitchen identities may do so.
// Of two concurrent requests leaving the same status, exactly one wins; the
// other gets models.ErrInvalidTransition.
func (s *Service) ChangeStatus(ctx context.Context, identity models.Identity, orderID uint, target models.OrderStatus) (*models.Order, error) {
	if !identity.IsKitchen() {
		s.recorder.Rejected("unauthorized")
		return nil, fmt.Errorf("changing order %d as %s: %w", orderID, identity.Role, models.ErrUnauthorized)
	}
	if !target.Valid() {
		s.recorder.Rejected("invalid_request")
		return nil, fmt.Errorf("%w: unknown status %d", models.ErrInvalidInput, int(target))
	}

	// The read under the gate sees either no order or one whose creation
	// has already been published.
	s.gate.RLock()
	unlock := s.locks.Lock(orderID)
	current, err := s.repo.Order(ctx, orderID)
	s.gate.RUnlock()
	defer unlock()
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(target) {
		s.recorder.Rejected("invalid_transition")
		s.log.Info("transition rejected", "order_id", orderID, "from", current.Status.String(), "to", target.String())
		return nil, &models.TransitionError{OrderID: orderID, From: current.Status, To: target}
	}

	updated, err := s.repo.CompareAndSetStatus(ctx, orderID, current.Status, target)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			s.recorder.Rejected("invalid_transition")
		}
		return nil, err
	}

	s.notifier.StatusChanged(*updated)
	s.recorder.Transition(current.Status, target, updated.UpdatedAt.Sub(updated.CreatedAt))
	s.log.Info("order status changed", "order_id", orderID, "from", current.Status.String(), "to", target.String(), "by", identity.UserID)
	return updated, nil
}
