package api

import (
	"fmt"
	"net/http"
	"strconv"

	"coffeenet/internal/auth"
	"coffeenet/internal/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	identity, _ := auth.IdentityFrom(c)

	reply, err := s.deps.Interpreter.Interpret(c.Request.Context(), identity.UserID, req)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) confirmOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	identity, _ := auth.IdentityFrom(c)

	order, err := s.deps.Lifecycle.PlaceOrder(c.Request.Context(), identity, req.Items)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) activeOrders(c *gin.Context) {
	orders, err := s.deps.Store.ActiveOrders(c.Request.Context())
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) changeStatus(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req models.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Status.Valid() {
		badRequest(c, fmt.Errorf("unknown status %d", *req.Status))
		return
	}
	identity, _ := auth.IdentityFrom(c)

	order, err := s.deps.Lifecycle.ChangeStatus(c.Request.Context(), identity, id, *req.Status)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return uint(id), nil
}
