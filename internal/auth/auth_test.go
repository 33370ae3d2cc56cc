package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coffeenet/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue(&models.User{ID: 42, Email: "cozinha@teste.com", Role: models.RoleKitchen})
	require.NoError(t, err)

	identity, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: 42, Email: "cozinha@teste.com", Role: models.RoleKitchen}, identity)
}

func TestIssuer_RejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	other := NewIssuer("other-secret", time.Hour)

	token, err := other.Issue(&models.User{ID: 1, Role: models.RoleCustomer})
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err = issuer.Issue(&models.User{ID: 1, Role: models.RoleCustomer})
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "123"))
	assert.False(t, CheckPassword(hash, "1234"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := NewIssuer("secret", time.Hour)

	router := gin.New()
	router.GET("/kitchen", RequireAuth(issuer), RequireRole(models.RoleKitchen), func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, identity)
	})

	customerToken, _ := issuer.Issue(&models.User{ID: 1, Role: models.RoleCustomer})
	kitchenToken, _ := issuer.Issue(&models.User{ID: 2, Role: models.RoleKitchen})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + customerToken, http.StatusForbidden},
		{"kitchen", "Bearer " + kitchenToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/kitchen", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
