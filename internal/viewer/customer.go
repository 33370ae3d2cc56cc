package viewer

import (
	"context"
	"strings"
	"time"

	"coffeenet/internal/cart"
	"coffeenet/internal/models"
	"coffeenet/internal/push"
	"coffeenet/internal/tracker"
)

const maxMessages = 200

// CustomerAPI is what a customer session needs from the server.
type CustomerAPI interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatReply, error)
	CreateOrder(ctx context.Context, lines []models.LineRequest) (models.Order, error)
	PushURL() (string, error)
}

// Speaker identifies who wrote a chat message.
type Speaker string

const (
	SpeakerCustomer  Speaker = "customer"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Message is one chat line.
type Message struct {
	From Speaker
	Text string
}

// CustomerView is a rendering snapshot of the chat, cart and order cards.
type CustomerView struct {
	Messages     []Message
	Cart         cart.State
	Actions      []cart.Action
	InputEnabled bool
	Orders       []tracker.Card
	Stale        bool
}

// CustomerSession is one customer's terminal.
type CustomerSession struct {
	runtime
	api      CustomerAPI
	onChange func(CustomerView)

	cart     cart.State
	tracker  tracker.Tracker
	messages []Message
	timers   map[uint64]Timer
}

// NewCustomerSession creates a session whose finished order cards stay
// visible for evictAfter.
func NewCustomerSession(api CustomerAPI, opts Options, evictAfter time.Duration, onChange func(CustomerView)) *CustomerSession {
	if onChange == nil {
		onChange = func(CustomerView) {}
	}
	if evictAfter <= 0 {
		evictAfter = tracker.DefaultEvictAfter
	}
	return &CustomerSession{
		runtime:  newRuntime(opts, api.PushURL),
		api:      api,
		onChange: onChange,
		tracker:  tracker.New(evictAfter),
		timers:   make(map[uint64]Timer),
	}
}

// Run blocks until ctx is cancelled or the server rejects the session.
func (s *CustomerSession) Run(ctx context.Context) error {
	defer s.stopTimers()
	return s.run(ctx, func(ev any) error {
		s.handle(ctx, ev)
		return nil
	})
}

// Send submits a line of text typed by the customer.
func (s *CustomerSession) Send(text string) {
	s.post(typed{text: text})
}

// Choose picks one of the offered cart actions.
func (s *CustomerSession) Choose(action cart.Action) {
	s.post(cart.ActionChosen{Action: action})
}

type typed struct{ text string }

func (s *CustomerSession) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case typed:
		if cart.InputEnabled(s.cart) && strings.TrimSpace(ev.text) != "" {
			s.say(SpeakerCustomer, ev.text)
		}
		s.applyCart(ctx, cart.TextInput{Text: ev.text})
	case pushed:
		s.onPush(ctx, ev.env)
	case lost:
		s.applyTracker(tracker.Disconnected{Err: ev.err})
		s.requestSnapshot()
	case cart.Event:
		s.applyCart(ctx, ev)
	case tracker.Event:
		s.applyTracker(ev)
	}
	s.publish()
}

func (s *CustomerSession) onPush(ctx context.Context, env push.Envelope) {
	switch env.Type {
	case push.TypeMenu:
		products, err := env.Products()
		if err != nil {
			s.opts.Log.Warn("malformed menu frame", "error", err)
			return
		}
		s.applyCart(ctx, cart.MenuReceived{Products: products})
	case push.TypeActiveOrders:
		orders, err := env.Orders()
		if err != nil {
			s.opts.Log.Warn("malformed active_orders frame", "error", err)
			return
		}
		s.applyTracker(tracker.Snapshot{Orders: orders, At: time.Now()})
	case push.TypeStatusUpdate:
		order, err := env.Order()
		if err != nil {
			s.opts.Log.Warn("malformed status_update frame", "error", err)
			return
		}
		s.applyTracker(tracker.OrderPushed{Order: order})
	}
}

func (s *CustomerSession) applyCart(ctx context.Context, e cart.Event) {
	next, effects := cart.Reduce(s.cart, e)
	s.cart = next
	for _, eff := range effects {
		switch eff := eff.(type) {
		case cart.Say:
			s.say(SpeakerAssistant, eff.Text)
		case cart.AskAssistant:
			go s.ask(ctx, eff)
		case cart.SubmitOrder:
			go s.submit(ctx, eff)
		}
	}
}

func (s *CustomerSession) applyTracker(e tracker.Event) {
	if due, ok := e.(tracker.EvictionDue); ok {
		delete(s.timers, due.Token)
	}
	next, effects := tracker.Reduce(s.tracker, e)
	s.tracker = next
	for _, eff := range effects {
		switch eff := eff.(type) {
		case tracker.ScheduleEviction:
			due := tracker.EvictionDue{OrderID: eff.OrderID, Token: eff.Token}
			s.timers[eff.Token] = s.opts.Scheduler.AfterFunc(eff.After, func() { s.post(due) })
		case tracker.CancelEviction:
			if t, ok := s.timers[eff.Token]; ok {
				t.Stop()
				delete(s.timers, eff.Token)
			}
		case tracker.Notice:
			s.say(SpeakerSystem, eff.Text)
		case tracker.RequestSnapshot:
			s.requestSnapshot()
		}
	}
}

func (s *CustomerSession) ask(ctx context.Context, eff cart.AskAssistant) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	reply, err := s.api.Chat(ctx, eff.Request)
	if err != nil {
		s.post(cart.AssistantFailed{Seq: eff.Seq, Err: err})
		return
	}
	s.post(cart.AssistantReplied{Seq: eff.Seq, Reply: reply})
}

func (s *CustomerSession) submit(ctx context.Context, eff cart.SubmitOrder) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	order, err := s.api.CreateOrder(ctx, eff.Lines)
	if err != nil {
		s.opts.Log.Info("order submission failed", "error", err)
		s.post(cart.SubmitFailed{Seq: eff.Seq, Err: err})
		return
	}
	s.opts.Log.Info("order submitted", "order_id", order.ID)
	s.post(cart.SubmitSucceeded{Seq: eff.Seq, Order: order})
}

func (s *CustomerSession) say(from Speaker, text string) {
	s.messages = append(s.messages, Message{From: from, Text: text})
	if len(s.messages) > maxMessages {
		s.messages = s.messages[len(s.messages)-maxMessages:]
	}
}

func (s *CustomerSession) publish() {
	s.onChange(CustomerView{
		Messages:     append([]Message(nil), s.messages...),
		Cart:         s.cart,
		Actions:      cart.AvailableActions(s.cart),
		InputEnabled: cart.InputEnabled(s.cart),
		Orders:       append([]tracker.Card(nil), s.tracker.Cards...),
		Stale:        s.tracker.Stale,
	})
}

func (s *CustomerSession) stopTimers() {
	for token, t := range s.timers {
		t.Stop()
		delete(s.timers, token)
	}
}
