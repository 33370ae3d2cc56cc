package models

import "time"

// Role is the kind of viewer a user connects as.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleKitchen  Role = "kitchen"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleKitchen
}

// User is an account that can authenticate against the API.
type User struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	Email        string    `gorm:"unique_index;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (i Identity) IsKitchen() bool  { return i.Role == RoleKitchen }
func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }

// Credentials is the body of a token request.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Token is returned after a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        Role   `json:"role"`
}
