package viewer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coffeenet/internal/cart"
	"coffeenet/internal/models"
	"coffeenet/internal/push"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type fakeStream struct {
	frames chan push.Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan push.Envelope, 16), closed: make(chan struct{})}
}

func (f *fakeStream) Next() (push.Envelope, error) {
	select {
	case env, ok := <-f.frames:
		if !ok {
			return push.Envelope{}, models.ErrChannelDisconnected
		}
		return env, nil
	case <-f.closed:
		return push.Envelope{}, models.ErrChannelDisconnected
	}
}

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) send(t *testing.T, typ push.MessageType, data any) {
	t.Helper()
	env, err := push.NewEnvelope(typ, data)
	require.NoError(t, err)
	f.frames <- env
}

type fakeDialer struct {
	streams chan *fakeStream
	dials   atomic.Int32
	err     error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{streams: make(chan *fakeStream, 4)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Stream, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	select {
	case s := <-d.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type manualTimer struct {
	after   time.Duration
	f       func()
	stopped bool
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{after: d, f: f}
	m.timers = append(m.timers, t)
	return stopper{m: m, t: t}
}

type stopper struct {
	m *manualScheduler
	t *manualTimer
}

func (s stopper) Stop() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	was := !s.t.stopped
	s.t.stopped = true
	return was
}

func (m *manualScheduler) pending() []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTimer
	for _, t := range m.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (m *manualScheduler) fireAll() {
	for _, t := range m.pending() {
		m.mu.Lock()
		t.stopped = true
		m.mu.Unlock()
		t.f()
	}
}

func waitFor[V any](t *testing.T, views <-chan V, ok func(V) bool) V {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v := <-views:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
		}
	}
}

func start(t *testing.T, run func(context.Context) error) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return errc
}

func order(id uint, status models.OrderStatus) models.Order {
	return models.Order{ID: id, CustomerID: 10, Status: status, Total: decimal.RequireFromString("9.50")}
}

type fakeKitchenAPI struct {
	mu      sync.Mutex
	changes []models.OrderStatus
	err     error
}

func (f *fakeKitchenAPI) ChangeStatus(ctx context.Context, id uint, target models.OrderStatus) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, target)
	if f.err != nil {
		return models.Order{}, f.err
	}
	return order(id, target), nil
}

func (f *fakeKitchenAPI) PushURL() (string, error) { return "ws://test/ws/tok", nil }

func TestKitchenSessionScenario(t *testing.T) {
	api := &fakeKitchenAPI{}
	dialer := newFakeDialer()
	views := make(chan KitchenView, 100)
	s := NewKitchenSession(api, Options{Dial: dialer.Dial}, func(v KitchenView) { views <- v })

	stream := newFakeStream()
	dialer.streams <- stream
	start(t, s.Run)

	stream.send(t, push.TypeInitialState, []models.Order{})
	stream.send(t, push.TypeNewOrder, order(1, models.StatusReceived))
	v := waitFor(t, views, func(v KitchenView) bool { return v.Board.Count(models.StatusReceived) == 1 })
	assert.Equal(t, 0, v.Board.Count(models.StatusInProduction))

	s.Click(1, models.StatusInProduction)
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.changes) == 1
	}, waitTimeout, 5*time.Millisecond)

	// The card only moves when the server's broadcast arrives.
	stream.send(t, push.TypeStatusUpdate, order(1, models.StatusInProduction))
	v = waitFor(t, views, func(v KitchenView) bool { return v.Board.Count(models.StatusInProduction) == 1 })
	assert.Equal(t, 0, v.Board.Count(models.StatusReceived))

	stream.send(t, push.TypeStatusUpdate, order(1, models.StatusCancelled))
	waitFor(t, views, func(v KitchenView) bool { return v.Board.Len() == 0 })
}

func TestKitchenRejectedChangeShowsNotice(t *testing.T) {
	api := &fakeKitchenAPI{err: &models.TransitionError{OrderID: 1, From: models.StatusReady, To: models.StatusInProduction}}
	dialer := newFakeDialer()
	views := make(chan KitchenView, 100)
	s := NewKitchenSession(api, Options{Dial: dialer.Dial}, func(v KitchenView) { views <- v })

	stream := newFakeStream()
	dialer.streams <- stream
	start(t, s.Run)
	stream.send(t, push.TypeInitialState, []models.Order{order(1, models.StatusReceived)})
	waitFor(t, views, func(v KitchenView) bool { return v.Board.Len() == 1 })

	s.Click(1, models.StatusInProduction)
	v := waitFor(t, views, func(v KitchenView) bool { return len(v.Notices) > 0 })
	assert.Equal(t, 1, v.Board.Count(models.StatusReceived), "a failed change leaves the board alone")
}

func TestKitchenResnapshotsAfterDisconnect(t *testing.T) {
	dialer := newFakeDialer()
	views := make(chan KitchenView, 100)
	s := NewKitchenSession(&fakeKitchenAPI{}, Options{Dial: dialer.Dial}, func(v KitchenView) { views <- v })

	first := newFakeStream()
	dialer.streams <- first
	start(t, s.Run)
	first.send(t, push.TypeInitialState, []models.Order{order(1, models.StatusReceived), order(2, models.StatusReceived)})
	waitFor(t, views, func(v KitchenView) bool { return v.Board.Len() == 2 })

	second := newFakeStream()
	dialer.streams <- second
	first.Close()
	waitFor(t, views, func(v KitchenView) bool { return v.Board.Stale })

	// Order 2 was cancelled while we were away.
	second.send(t, push.TypeInitialState, []models.Order{order(1, models.StatusInProduction)})
	v := waitFor(t, views, func(v KitchenView) bool { return !v.Board.Stale })
	assert.Equal(t, 1, v.Board.Len())
	assert.Equal(t, 1, v.Board.Count(models.StatusInProduction))
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestUnauthorizedDialEndsSession(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = models.ErrUnauthorized
	s := NewKitchenSession(&fakeKitchenAPI{}, Options{Dial: dialer.Dial}, nil)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

type fakeCustomerAPI struct {
	reply   models.ChatReply
	created chan []models.LineRequest
	order   models.Order
}

func (f *fakeCustomerAPI) Chat(ctx context.Context, req models.ChatRequest) (models.ChatReply, error) {
	return f.reply, nil
}

func (f *fakeCustomerAPI) CreateOrder(ctx context.Context, lines []models.LineRequest) (models.Order, error) {
	f.created <- lines
	return f.order, nil
}

func (f *fakeCustomerAPI) PushURL() (string, error) { return "ws://test/ws/tok", nil }

func TestCustomerSessionScenario(t *testing.T) {
	latte := models.CartLine{ProductID: 3, Name: "Latte", Quantity: 1, UnitPrice: decimal.RequireFromString("9.50")}
	api := &fakeCustomerAPI{
		reply:   models.ChatReply{Recommendation: "Anotado: 1x Latte.", ParsedItems: []models.CartLine{latte}, Intent: models.IntentConfirm},
		created: make(chan []models.LineRequest, 1),
		order:   order(42, models.StatusReceived),
	}
	dialer := newFakeDialer()
	sched := &manualScheduler{}
	views := make(chan CustomerView, 200)
	s := NewCustomerSession(api, Options{Dial: dialer.Dial, Scheduler: sched}, 10*time.Second, func(v CustomerView) { views <- v })

	stream := newFakeStream()
	dialer.streams <- stream
	start(t, s.Run)

	stream.send(t, push.TypeMenu, []models.Product{{ID: 3, Name: "Latte", Price: decimal.RequireFromString("9.50"), Stock: 5}})
	stream.send(t, push.TypeActiveOrders, []models.Order{})
	waitFor(t, views, func(v CustomerView) bool { return len(v.Messages) == 1 && !v.Stale })

	s.Send("um latte")
	v := waitFor(t, views, func(v CustomerView) bool { return v.Cart.Phase == cart.ConfirmPending })
	assert.Equal(t, []models.CartLine{latte}, v.Cart.Lines)
	assert.Equal(t, Message{From: SpeakerCustomer, Text: "um latte"}, v.Messages[1])

	s.Choose(cart.ActionFinalize)
	select {
	case lines := <-api.created:
		assert.Equal(t, []models.LineRequest{{ProductID: 3, Quantity: 1}}, lines)
	case <-time.After(waitTimeout):
		t.Fatal("order was not submitted")
	}
	v = waitFor(t, views, func(v CustomerView) bool { return v.Cart.Phase == cart.Idle && len(v.Cart.Lines) == 0 })
	assert.Contains(t, v.Messages[len(v.Messages)-1].Text, "#42")

	// The server pushes the order's lifecycle.
	stream.send(t, push.TypeStatusUpdate, order(42, models.StatusReceived))
	stream.send(t, push.TypeStatusUpdate, order(42, models.StatusCancelled))
	v = waitFor(t, views, func(v CustomerView) bool {
		return len(v.Orders) == 1 && v.Orders[0].Order.Status == models.StatusCancelled
	})
	assert.Equal(t, SpeakerSystem, v.Messages[len(v.Messages)-1].From)

	pending := sched.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 10*time.Second, pending[0].after)

	sched.fireAll()
	waitFor(t, views, func(v CustomerView) bool { return len(v.Orders) == 0 })
}

func TestBackoffIsCapped(t *testing.T) {
	d := time.Duration(0)
	var seen []time.Duration
	for i := 0; i < 8; i++ {
		d = nextBackoff(d, 5*time.Second)
		seen = append(seen, d)
	}
	assert.Equal(t, initialBackoff, seen[0])
	assert.Equal(t, 2*initialBackoff, seen[1])
	assert.Equal(t, 5*time.Second, seen[len(seen)-1])
}
