package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coffeenet/internal/assistant"
	"coffeenet/internal/auth"
	"coffeenet/internal/client"
	"coffeenet/internal/database"
	"coffeenet/internal/idempotency"
	"coffeenet/internal/lifecycle"
	"coffeenet/internal/logging"
	"coffeenet/internal/metrics"
	"coffeenet/internal/models"
	"coffeenet/internal/monitoring"
	"coffeenet/internal/push"
	"coffeenet/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	srv   *httptest.Server
	store *store.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Seed(db))

	log := logging.Discard()
	st := store.New(db)
	monitor := monitoring.NewMonitor()
	rec := monitoring.NewRecorder(metrics.NewCollector(), monitor)
	hub := push.NewHub(st, rec, log, 10*time.Second)
	t.Cleanup(hub.Close)

	server := NewServer(Deps{
		Store:       st,
		Lifecycle:   lifecycle.NewService(st, hub, rec, log),
		Hub:         hub,
		Issuer:      auth.NewIssuer("test-secret", time.Hour),
		Interpreter: assistant.NewInterpreter(st, nil, nil, log),
		Idempotency: idempotency.NewMemoryStore(time.Hour),
		Monitor:     monitor,
		Log:         log,
	})
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &testAPI{srv: ts, store: st}
}

func (a *testAPI) login(t *testing.T, email string) *client.Client {
	t.Helper()
	c := client.New(a.srv.URL, 5*time.Second)
	_, err := c.Login(context.Background(), email, database.DefaultPassword)
	require.NoError(t, err)
	return c
}

func (a *testAPI) connect(t *testing.T, c *client.Client) *push.Stream {
	t.Helper()
	url, err := c.PushURL()
	require.NoError(t, err)
	s, err := push.Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (a *testAPI) product(t *testing.T, name string) models.Product {
	t.Helper()
	products, err := a.store.Products(context.Background())
	require.NoError(t, err)
	for _, p := range products {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("product %s not seeded", name)
	return models.Product{}
}

type frame struct {
	env push.Envelope
	err error
}

func recv(t *testing.T, s *push.Stream) push.Envelope {
	t.Helper()
	ch := make(chan frame, 1)
	go func() {
		env, err := s.Next()
		ch <- frame{env, err}
	}()
	select {
	case f := <-ch:
		require.NoError(t, f.err)
		return f.env
	case <-time.After(3 * time.Second):
		t.Fatal("no push frame received")
		return push.Envelope{}
	}
}

// assertSilent checks nothing arrives for a while. It consumes the stream,
// so it must be the last read in a test.
func assertSilent(t *testing.T, s *push.Stream) {
	t.Helper()
	ch := make(chan frame, 1)
	go func() {
		env, err := s.Next()
		ch <- frame{env, err}
	}()
	select {
	case f := <-ch:
		if f.err == nil {
			t.Fatalf("unexpected push frame %s", f.env.Type)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLatteRoundTrip(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	ctx := context.Background()

	kitchenStream := a.connect(t, kitchen)
	env := recv(t, kitchenStream)
	require.Equal(t, push.TypeInitialState, env.Type)
	assert.JSONEq(t, `[]`, string(env.Data))

	customerStream := a.connect(t, customer)
	env = recv(t, customerStream)
	require.Equal(t, push.TypeMenu, env.Type)
	menu, err := env.Products()
	require.NoError(t, err)
	assert.Len(t, menu, 5, "out-of-stock juice is not on the menu")
	assert.Equal(t, push.TypeActiveOrders, recv(t, customerStream).Type)

	reply, err := customer.Chat(ctx, models.ChatRequest{Text: "quero um latte"})
	require.NoError(t, err)
	require.Equal(t, models.IntentConfirm, reply.Intent)
	require.Len(t, reply.ParsedItems, 1)

	order, err := customer.CreateOrder(ctx, []models.LineRequest{reply.ParsedItems[0].Request()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("9.50")))

	env = recv(t, kitchenStream)
	require.Equal(t, push.TypeNewOrder, env.Type)
	pushed, err := env.Order()
	require.NoError(t, err)
	assert.Equal(t, order.ID, pushed.ID)

	env = recv(t, customerStream)
	require.Equal(t, push.TypeStatusUpdate, env.Type)

	active, err := kitchen.ActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = kitchen.ChangeStatus(ctx, order.ID, models.StatusInProduction)
	require.NoError(t, err)
	for _, s := range []*push.Stream{kitchenStream, customerStream} {
		env := recv(t, s)
		require.Equal(t, push.TypeStatusUpdate, env.Type)
		got, err := env.Order()
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProduction, got.Status)
	}

	// A later price change does not touch the placed order.
	latte := a.product(t, "Latte")
	_, err = kitchen.SetPrice(ctx, latte.ID, decimal.RequireFromString("12.00"))
	require.NoError(t, err)
	stored, err := a.store.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("9.50")))
}

func TestStockConflictIsLocal(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	kitchenStream := a.connect(t, kitchen)
	recv(t, kitchenStream)

	latte := a.product(t, "Latte")
	_, err := customer.CreateOrder(context.Background(), []models.LineRequest{{ProductID: latte.ID, Quantity: latte.Stock + 1}})
	assert.ErrorIs(t, err, models.ErrStockConflict)

	assert.Equal(t, latte.Stock, a.product(t, "Latte").Stock)
	assertSilent(t, kitchenStream)
}

func TestCancelInProduction(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	ctx := context.Background()

	order, err := customer.CreateOrder(ctx, []models.LineRequest{{ProductID: a.product(t, "Cappuccino").ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = kitchen.ChangeStatus(ctx, order.ID, models.StatusInProduction)
	require.NoError(t, err)

	customerStream := a.connect(t, customer)
	recv(t, customerStream)
	env := recv(t, customerStream)
	mine, err := env.Orders()
	require.NoError(t, err)
	require.Len(t, mine, 1)

	cancelled, err := kitchen.ChangeStatus(ctx, order.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	env = recv(t, customerStream)
	got, err := env.Order()
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	active, err := kitchen.ActiveOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Terminal is final.
	_, err = kitchen.ChangeStatus(ctx, order.ID, models.StatusReady)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestIdempotentReplayBroadcastsOnce(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	kitchenStream := a.connect(t, kitchen)
	recv(t, kitchenStream)

	body, _ := json.Marshal(models.CreateOrderRequest{Items: []models.LineRequest{{ProductID: a.product(t, "Latte").ID, Quantity: 1}}})
	post := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/orders/confirm", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+customer.Token())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(idempotency.Header, "retry-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	first := post()
	require.Equal(t, http.StatusCreated, first.StatusCode)
	var created models.Order
	require.NoError(t, json.NewDecoder(first.Body).Decode(&created))

	second := post()
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(idempotency.ReplayedHeader))
	var replayed models.Order
	require.NoError(t, json.NewDecoder(second.Body).Decode(&replayed))
	assert.Equal(t, created.ID, replayed.ID)

	assert.Equal(t, push.TypeNewOrder, recv(t, kitchenStream).Type)
	assertSilent(t, kitchenStream)
}

func TestPromotionPriceIsCaptured(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	ctx := context.Background()
	latte := a.product(t, "Latte")

	promo := decimal.RequireFromString("7.00")
	updated, err := kitchen.SetPromotion(ctx, latte.ID, true, &promo)
	require.NoError(t, err)
	assert.True(t, updated.OnPromotion)

	order, err := customer.CreateOrder(ctx, []models.LineRequest{{ProductID: latte.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("14.00")))

	_, err = kitchen.SetPromotion(ctx, latte.ID, true, nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRoleChecks(t *testing.T) {
	a := newTestAPI(t)
	customer := a.login(t, "cliente@teste.com")
	kitchen := a.login(t, "cozinha@teste.com")
	ctx := context.Background()

	_, err := customer.ChangeStatus(ctx, 1, models.StatusInProduction)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = customer.Products(ctx)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = kitchen.CreateOrder(ctx, []models.LineRequest{{ProductID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = kitchen.ChangeStatus(ctx, 999, models.StatusInProduction)
	assert.ErrorIs(t, err, models.ErrNotFound)

	anonymous := client.New(a.srv.URL, time.Second)
	_, err = anonymous.ActiveOrders(ctx)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = anonymous.Login(ctx, "cliente@teste.com", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	anonymous.SetToken("not-a-token")
	url, err := anonymous.PushURL()
	require.NoError(t, err)
	_, err = push.Dial(ctx, url)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestInvalidRequests(t *testing.T) {
	a := newTestAPI(t)
	kitchen := a.login(t, "cozinha@teste.com")

	cases := []struct {
		name, method, path, body string
	}{
		{"bad id", http.MethodPut, "/orders/abc/status", `{"status":1}`},
		{"missing status", http.MethodPut, "/orders/1/status", `{}`},
		{"unknown status", http.MethodPut, "/orders/1/status", `{"status":9}`},
		{"zero price", http.MethodPut, "/products/1/price", `{"price":"0"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Authorization", "Bearer "+kitchen.Token())
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			a.srv.Config.Handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"invalid_request"`)
		})
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	resp, err := http.Get(a.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string         `json:"status"`
		Push   map[string]int `json:"push"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.Push, "kitchen_connections")
}
