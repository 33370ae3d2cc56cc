package api

import (
	"net/http"

	"coffeenet/internal/auth"
	"coffeenet/internal/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) login(c *gin.Context) {
	var creds models.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		badRequest(c, err)
		return
	}

	user, err := s.deps.Store.UserByEmail(c.Request.Context(), creds.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, creds.Password) {
		s.deps.Log.Info("login failed", "email", creds.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect email or password", "code": "unauthorized"})
		return
	}

	token, err := s.deps.Issuer.Issue(user)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, models.Token{AccessToken: token, TokenType: "bearer", Role: user.Role})
}

func (s *Server) me(c *gin.Context) {
	identity, _ := auth.IdentityFrom(c)
	c.JSON(http.StatusOK, identity)
}
