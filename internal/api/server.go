// Package api exposes the CoffeeNet HTTP and websocket endpoints.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"coffeenet/internal/assistant"
	"coffeenet/internal/auth"
	"coffeenet/internal/idempotency"
	"coffeenet/internal/lifecycle"
	"coffeenet/internal/models"
	"coffeenet/internal/monitoring"
	"coffeenet/internal/push"
	"coffeenet/internal/store"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	Store       *store.Store
	Lifecycle   *lifecycle.Service
	Hub         *push.Hub
	Issuer      *auth.Issuer
	Interpreter *assistant.Interpreter
	Idempotency idempotency.Store
	Monitor     *monitoring.Monitor
	Log         *slog.Logger
}

// Server is the HTTP front of the order lifecycle.
type Server struct {
	Router  *gin.Engine
	deps    Deps
	started time.Time
}

// NewServer builds the router. Call gin.SetMode before it to pick the mode.
func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))

	s := &Server{Router: router, deps: deps, started: time.Now()}
	s.setupRoutes()
	return s
}

// ServeHTTP lets the server be mounted directly on an http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws/:token", s.websocket)

	users := s.Router.Group("/users")
	{
		users.POST("/token", s.login)
		users.GET("/me", auth.RequireAuth(s.deps.Issuer), s.me)
	}

	authed := auth.RequireAuth(s.deps.Issuer)
	customer := auth.RequireRole(models.RoleCustomer)
	kitchen := auth.RequireRole(models.RoleKitchen)

	orders := s.Router.Group("/orders", authed)
	{
		orders.POST("/chat", customer, s.chat)
		orders.POST("/confirm", customer, idempotency.Middleware(s.deps.Idempotency, s.deps.Log), s.confirmOrder)
		orders.GET("/active", kitchen, s.activeOrders)
		orders.PUT("/:id/status", kitchen, s.changeStatus)
	}

	products := s.Router.Group("/products", authed, kitchen)
	{
		products.GET("", s.listProducts)
		products.PUT("/:id/price", s.updatePrice)
		products.PUT("/:id/promotion", s.updatePromotion)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"stats":          s.deps.Monitor.GetMetrics(),
		"push":           s.deps.Hub.Stats(),
	})
}

// websocket authenticates the token in the path before upgrading, so a bad
// token gets a plain 401 the client can tell apart from a network failure.
func (s *Server) websocket(c *gin.Context) {
	identity, err := s.deps.Issuer.Verify(c.Param("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "code": "unauthorized"})
		return
	}
	s.deps.Hub.Serve(c.Writer, c.Request, identity)
}
