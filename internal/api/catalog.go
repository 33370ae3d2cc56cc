package api

import (
	"net/http"

	"coffeenet/internal/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) listProducts(c *gin.Context) {
	products, err := s.deps.Store.Products(c.Request.Context())
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// updatePrice changes the price of future orders; placed orders keep theirs.
func (s *Server) updatePrice(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req models.PriceUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := s.deps.Store.UpdatePrice(c.Request.Context(), id, req.Price)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	s.deps.Log.Info("price updated", "product_id", id, "price", product.Price.StringFixed(2))
	c.JSON(http.StatusOK, product)
}

func (s *Server) updatePromotion(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req models.PromotionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := s.deps.Store.SetPromotion(c.Request.Context(), id, req.OnPromotion, req.PromoPrice)
	if err != nil {
		respondError(c, s.deps.Log, err)
		return
	}
	s.deps.Log.Info("promotion updated", "product_id", id, "on_promotion", product.OnPromotion)
	c.JSON(http.StatusOK, product)
}
