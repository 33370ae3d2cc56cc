package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coffeenet/internal/database"
	"coffeenet/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func addProduct(t *testing.T, s *Store, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, s.DB().Create(&p).Error)
	return p
}

func TestCreateOrder_CapturesPricesAndDecrementsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 5)
	bolo := addProduct(t, s, "Bolo de Fubá", "7.00", 3)

	order, err := s.CreateOrder(ctx, 1, []models.LineRequest{
		{ProductID: latte.ID, Quantity: 2},
		{ProductID: bolo.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, order.Status)
	assert.True(t, decimal.RequireFromString("26.00").Equal(order.Total), "total %s", order.Total)

	// A later price change must not touch the stored order.
	_, err = s.UpdatePrice(ctx, latte.ID, decimal.RequireFromString("12.00"))
	require.NoError(t, err)

	stored, err := s.Order(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.True(t, decimal.RequireFromString("26.00").Equal(stored.Total))
	assert.True(t, decimal.RequireFromString("26.00").Equal(stored.ComputeTotal()))
	assert.Equal(t, "Latte", stored.Items[0].ProductName)

	reloaded, err := s.Product(ctx, latte.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Stock)
}

func TestCreateOrder_UsesPromotionalPrice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pdq := addProduct(t, s, "Pão de Queijo", "4.00", 10)
	promo := decimal.RequireFromString("2.00")
	_, err := s.SetPromotion(ctx, pdq.ID, true, &promo)
	require.NoError(t, err)

	order, err := s.CreateOrder(ctx, 1, []models.LineRequest{{ProductID: pdq.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("6.00").Equal(order.Total))
}

func TestCreateOrder_StockConflictWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 5)
	suco := addProduct(t, s, "Suco de Laranja", "9.00", 1)

	_, err := s.CreateOrder(ctx, 1, []models.LineRequest{
		{ProductID: latte.ID, Quantity: 1},
		{ProductID: suco.ID, Quantity: 2},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStockConflict))
	var stockErr *models.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []models.StockShortage{{ProductID: suco.ID, Name: "Suco de Laranja", Requested: 2, Available: 1}}, stockErr.Shortages)

	reloaded, err := s.Product(ctx, latte.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Stock)

	active, err := s.ActiveOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateOrder(context.Background(), 1, []models.LineRequest{{ProductID: 999, Quantity: 1}})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var placed, conflicts int
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(customer uint) {
			defer wg.Done()
			_, err := s.CreateOrder(ctx, customer, []models.LineRequest{{ProductID: latte.ID, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
			} else if errors.Is(err, models.ErrStockConflict) {
				conflicts++
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, 3, conflicts)
}

func TestCompareAndSetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 5)
	order, err := s.CreateOrder(ctx, 1, []models.LineRequest{{ProductID: latte.ID, Quantity: 1}})
	require.NoError(t, err)

	updated, err := s.CompareAndSetStatus(ctx, order.ID, models.StatusReceived, models.StatusInProduction)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProduction, updated.Status)

	// A second writer still expecting received loses.
	_, err = s.CompareAndSetStatus(ctx, order.ID, models.StatusReceived, models.StatusCancelled)
	var transitionErr *models.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, models.StatusInProduction, transitionErr.From)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = s.CompareAndSetStatus(ctx, 12345, models.StatusReceived, models.StatusCancelled)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCustomerOrders_IncludesRecentlyTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 10)

	var ids []uint
	for i := 0; i < 3; i++ {
		order, err := s.CreateOrder(ctx, 7, []models.LineRequest{{ProductID: latte.ID, Quantity: 1}})
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}
	other, err := s.CreateOrder(ctx, 8, []models.LineRequest{{ProductID: latte.ID, Quantity: 1}})
	require.NoError(t, err)

	// ids[1] cancelled a minute ago, ids[2] cancelled just now.
	s.now = func() time.Time { return time.Now().Add(-time.Minute) }
	_, err = s.CompareAndSetStatus(ctx, ids[1], models.StatusReceived, models.StatusCancelled)
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.CompareAndSetStatus(ctx, ids[2], models.StatusReceived, models.StatusCancelled)
	require.NoError(t, err)

	orders, err := s.CustomerOrders(ctx, 7, 10*time.Second)
	require.NoError(t, err)
	var got []uint
	for _, o := range orders {
		got = append(got, o.ID)
	}
	assert.Equal(t, []uint{ids[0], ids[2]}, got)

	active, err := s.ActiveOrders(ctx)
	require.NoError(t, err)
	got = nil
	for _, o := range active {
		got = append(got, o.ID)
	}
	assert.Equal(t, []uint{ids[0], other.ID}, got)
}

func TestFavoriteProducts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	latte := addProduct(t, s, "Latte", "9.50", 50)
	bolo := addProduct(t, s, "Bolo de Fubá", "7.00", 50)
	pdq := addProduct(t, s, "Pão de Queijo", "4.00", 50)

	for _, lines := range [][]models.LineRequest{
		{{ProductID: latte.ID, Quantity: 1}, {ProductID: bolo.ID, Quantity: 1}},
		{{ProductID: bolo.ID, Quantity: 2}},
		{{ProductID: pdq.ID, Quantity: 1}},
	} {
		_, err := s.CreateOrder(ctx, 3, lines)
		require.NoError(t, err)
	}

	favorites, err := s.FavoriteProducts(ctx, 3, 5)
	require.NoError(t, err)
	require.NotEmpty(t, favorites)
	assert.Equal(t, bolo.ID, favorites[0])
	assert.Len(t, favorites, 3)
}

func TestMenuSkipsOutOfStock(t *testing.T) {
	s := newTestStore(t)
	addProduct(t, s, "Latte", "9.50", 1)
	addProduct(t, s, "Suco de Laranja", "9.00", 0)

	menu, err := s.Menu(context.Background())
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, "Latte", menu[0].Name)
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, database.Seed(s.DB()))
	// Seeding twice is a no-op.
	require.NoError(t, database.Seed(s.DB()))

	kitchen, err := s.UserByEmail(context.Background(), "cozinha@teste.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleKitchen, kitchen.Role)

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 6)
}
