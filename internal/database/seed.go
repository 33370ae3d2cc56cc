package database

import (
	"fmt"

	"coffeenet/internal/auth"
	"coffeenet/internal/models"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

// DefaultPassword is the password of the seeded demo accounts.
const DefaultPassword = "123"

// Seed inserts demo users and the starting menu when the tables are empty.
func Seed(db *gorm.DB) error {
	var userCount int
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount == 0 {
		hash, err := auth.HashPassword(DefaultPassword)
		if err != nil {
			return err
		}
		users := []models.User{
			{Email: "cliente@teste.com", PasswordHash: hash, Role: models.RoleCustomer},
			{Email: "cozinha@teste.com", PasswordHash: hash, Role: models.RoleKitchen},
		}
		for i := range users {
			if err := db.Create(&users[i]).Error; err != nil {
				return fmt.Errorf("failed to seed user %s: %w", users[i].Email, err)
			}
		}
	}

	var productCount int
	if err := db.Model(&models.Product{}).Count(&productCount).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if productCount == 0 {
		for _, p := range defaultMenu() {
			p := p
			if err := db.Create(&p).Error; err != nil {
				return fmt.Errorf("failed to seed product %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

func defaultMenu() []models.Product {
	price := decimal.RequireFromString
	return []models.Product{
		{Name: "Café Espresso", Price: price("5.00"), Category: "Bebidas", Keywords: "espresso,expresso,cafe,café", Stock: 100},
		{Name: "Cappuccino", Price: price("8.50"), Category: "Bebidas", Keywords: "cappuccino,caputino", Stock: 50},
		{Name: "Latte", Price: price("9.50"), Category: "Bebidas", Keywords: "latte,café com leite,cafe com leite", Stock: 40},
		{
			Name: "Pão de Queijo", Price: price("4.00"), Category: "Salgados", Keywords: "pão de queijo,pao de queijo,pao,queijo", Stock: 50,
			OnPromotion: true, PromoPrice: decimal.NewNullDecimal(price("2.00")),
		},
		{Name: "Bolo de Fubá", Price: price("7.00"), Category: "Doces", Keywords: "bolo,fubá,bolo de fubá", Stock: 30},
		{Name: "Suco de Laranja", Price: price("9.00"), Category: "Bebidas", Keywords: "suco,laranja,suco de laranja", Stock: 0},
	}
}
