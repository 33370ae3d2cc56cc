package viewer

import (
	"context"

	"coffeenet/internal/kanban"
	"coffeenet/internal/models"
	"coffeenet/internal/push"
)

// KitchenAPI is what a kitchen session needs from the server.
type KitchenAPI interface {
	ChangeStatus(ctx context.Context, orderID uint, target models.OrderStatus) (models.Order, error)
	PushURL() (string, error)
}

// KitchenView is a rendering snapshot of the board.
type KitchenView struct {
	Board   kanban.Board
	Notices []string
}

// KitchenSession is one kitchen station.
type KitchenSession struct {
	runtime
	api      KitchenAPI
	onChange func(KitchenView)

	board   kanban.Board
	notices []string
}

// NewKitchenSession creates a session. onChange receives every new view on
// the session goroutine and must not block.
func NewKitchenSession(api KitchenAPI, opts Options, onChange func(KitchenView)) *KitchenSession {
	if onChange == nil {
		onChange = func(KitchenView) {}
	}
	return &KitchenSession{
		runtime:  newRuntime(opts, api.PushURL),
		api:      api,
		onChange: onChange,
	}
}

// Run blocks until ctx is cancelled or the server rejects the session.
func (s *KitchenSession) Run(ctx context.Context) error {
	return s.run(ctx, func(ev any) error {
		s.handle(ctx, ev)
		return nil
	})
}

// Click requests a transition for a card. Nothing changes locally until the
// server broadcasts the result.
func (s *KitchenSession) Click(orderID uint, target models.OrderStatus) {
	s.post(kanban.ActionClicked{OrderID: orderID, Target: target})
}

func (s *KitchenSession) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case pushed:
		if e, ok := s.decode(ev.env); ok {
			s.apply(ctx, e)
		}
	case lost:
		s.apply(ctx, kanban.Disconnected{Err: ev.err})
		s.requestSnapshot()
	case kanban.Event:
		s.apply(ctx, ev)
	}
}

func (s *KitchenSession) decode(env push.Envelope) (kanban.Event, bool) {
	switch env.Type {
	case push.TypeInitialState:
		orders, err := env.Orders()
		if err != nil {
			s.opts.Log.Warn("malformed initial_state", "error", err)
			return nil, false
		}
		return kanban.Snapshot{Orders: orders}, true
	case push.TypeNewOrder, push.TypeStatusUpdate:
		order, err := env.Order()
		if err != nil {
			s.opts.Log.Warn("malformed order frame", "type", env.Type, "error", err)
			return nil, false
		}
		return kanban.OrderPushed{Order: order}, true
	}
	return nil, false
}

func (s *KitchenSession) apply(ctx context.Context, e kanban.Event) {
	next, effects := kanban.Reduce(s.board, e)
	s.board = next
	for _, eff := range effects {
		switch eff := eff.(type) {
		case kanban.ChangeStatus:
			go s.changeStatus(ctx, eff)
		case kanban.Notice:
			s.notices = appendNotice(s.notices, eff.Text)
		case kanban.RequestSnapshot:
			s.requestSnapshot()
		}
	}
	s.onChange(KitchenView{Board: s.board, Notices: append([]string(nil), s.notices...)})
}

func (s *KitchenSession) changeStatus(ctx context.Context, req kanban.ChangeStatus) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	if _, err := s.api.ChangeStatus(ctx, req.OrderID, req.Target); err != nil {
		s.opts.Log.Info("status change rejected", "order_id", req.OrderID, "target", req.Target, "error", err)
		s.post(kanban.ActionFailed{OrderID: req.OrderID, Target: req.Target, Err: err})
	}
}
