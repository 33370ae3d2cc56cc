// Package store is the gorm-backed repository for users, the catalog and orders.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"coffeenet/internal/models"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// Store wraps a gorm handle. It is safe for concurrent use.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a store over an already migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle for seeding and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error, what string, id interface{}) error {
	if gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("%s %v: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}

// UserByEmail looks up an account for login.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err, "user", email)
	}
	return &user, nil
}

// UserByID looks up an account by id.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// CreateUser stores a new account.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	return nil
}

// Products returns the whole catalog ordered by name.
func (s *Store) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Order("name asc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Menu returns the products a customer can currently order.
func (s *Store) Menu(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Where("stock > 0").Order("name asc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	return products, nil
}

// Product returns one catalog entry.
func (s *Store) Product(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := s.db.First(&product, id).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// UpdatePrice changes the regular price. Existing orders keep their captured prices.
func (s *Store) UpdatePrice(ctx context.Context, id uint, price decimal.Decimal) (*models.Product, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be greater than zero", models.ErrInvalidInput)
	}
	product, err := s.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Price = price
	if err := s.db.Save(product).Error; err != nil {
		return nil, fmt.Errorf("failed to update price of product %d: %w", id, err)
	}
	return product, nil
}

// SetPromotion toggles the promotion of a product.
func (s *Store) SetPromotion(ctx context.Context, id uint, on bool, promoPrice *decimal.Decimal) (*models.Product, error) {
	product, err := s.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := product.SetPromotion(on, promoPrice); err != nil {
		return nil, err
	}
	if err := s.db.Save(product).Error; err != nil {
		return nil, fmt.Errorf("failed to update promotion of product %d: %w", id, err)
	}
	return product, nil
}

// CreateOrder stores a new order in status received. Stock is checked and
// decremented in the same transaction; if any line is short nothing is
// written and a *models.StockError is returned. Lines must already be merged.
func (s *Store) CreateOrder(ctx context.Context, customerID uint, lines []models.LineRequest) (*models.Order, error) {
	ids := make([]uint, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	tx := s.db.BeginTx(ctx, nil)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := tx
	if s.db.Dialect().GetName() == "postgres" {
		query = tx.Set("gorm:query_option", "FOR UPDATE")
	}
	var products []models.Product
	if err := query.Where("id IN (?)", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	order := &models.Order{CustomerID: customerID, Status: models.StatusReceived}
	var shortages []models.StockShortage
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, models.ErrNotFound)
		}
		if product.Stock < line.Quantity {
			shortages = append(shortages, models.StockShortage{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: line.Quantity,
				Available: product.Stock,
			})
			continue
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.EffectivePrice(),
		})
	}
	if len(shortages) > 0 {
		return nil, &models.StockError{Shortages: shortages}
	}

	for _, item := range order.Items {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to decrement stock of product %d: %w", item.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, &models.StockError{Shortages: []models.StockShortage{{
				ProductID: item.ProductID,
				Name:      item.ProductName,
				Requested: item.Quantity,
			}}}
		}
	}

	order.Total = order.ComputeTotal()
	if err := tx.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	committed = true
	return order, nil
}

// Order loads one order with its items.
func (s *Store) Order(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Items").First(&order, id).Error; err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// CompareAndSetStatus moves an order from one status to another only if it
// is still in the expected status. When another writer changed it first a
// *models.TransitionError with the current status is returned.
func (s *Store) CompareAndSetStatus(ctx context.Context, id uint, from, to models.OrderStatus) (*models.Order, error) {
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]interface{}{"status": to, "updated_at": s.now()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order %d: %w", id, res.Error)
	}

	order, err := s.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, &models.TransitionError{OrderID: id, From: order.Status, To: to}
	}
	return order, nil
}

// ActiveOrders returns every non-terminal order, oldest first.
func (s *Store) ActiveOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.Preload("Items").
		Where("status IN (?)", []models.OrderStatus{models.StatusReceived, models.StatusInProduction}).
		Order("created_at asc, id asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return orders, nil
}

// CustomerOrders returns the customer's non-terminal orders plus terminal
// ones updated within window, oldest first.
func (s *Store) CustomerOrders(ctx context.Context, customerID uint, window time.Duration) ([]models.Order, error) {
	var orders []models.Order
	since := s.now().Add(-window)
	err := s.db.Preload("Items").
		Where("customer_id = ?", customerID).
		Where("status IN (?) OR updated_at >= ?",
			[]models.OrderStatus{models.StatusReceived, models.StatusInProduction}, since).
		Order("created_at asc, id asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of customer %d: %w", customerID, err)
	}
	return orders, nil
}

// RecentOrders returns the customer's last limit orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, customerID uint, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders of customer %d: %w", customerID, err)
	}
	return orders, nil
}

// FavoriteProducts ranks the products in the customer's last limit orders by
// how often they were ordered, most frequent first. Ties keep the most
// recently ordered product first.
func (s *Store) FavoriteProducts(ctx context.Context, customerID uint, limit int) ([]uint, error) {
	orders, err := s.RecentOrders(ctx, customerID, limit)
	if err != nil {
		return nil, err
	}
	counts := map[uint]int{}
	firstSeen := map[uint]int{}
	var ids []uint
	for _, order := range orders {
		for _, item := range order.Items {
			if _, ok := counts[item.ProductID]; !ok {
				firstSeen[item.ProductID] = len(ids)
				ids = append(ids, item.ProductID)
			}
			counts[item.ProductID] += item.Quantity
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return firstSeen[ids[i]] < firstSeen[ids[j]]
	})
	return ids, nil
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
