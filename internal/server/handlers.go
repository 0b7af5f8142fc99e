package server

import (
	"errors"
	"net/http"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/Houeta/pricewatch/internal/services/tracker"
	"github.com/gin-gonic/gin"
)

type cronResponse struct {
	Message string                  `json:"message"`
	RunID   string                  `json:"run_id"`
	Data    []models.TrackedProduct `json:"data"`
	Skipped int                     `json:"skipped"`
}

type trackRequest struct {
	URL string `json:"url" binding:"required"`
}

type subscribeRequest struct {
	URL   string `json:"url"   binding:"required"`
	Email string `json:"email" binding:"required"`
}

// RunCycle runs one refresh cycle and returns the updated products.
func (s *Server) RunCycle(c *gin.Context) {
	const opn = "server.RunCycle"
	ctx := c.Request.Context()

	outcome, err := s.runner.Run(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Refresh cycle failed", "op", opn, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh cycle failed"})
		return
	}

	c.JSON(http.StatusOK, cronResponse{
		Message: outcome.Status,
		RunID:   outcome.RunID,
		Data:    outcome.Updated,
		Skipped: len(outcome.Skipped),
	})
}

// ListProducts returns every tracked product.
func (s *Server) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()

	list, err := s.products.ListAll(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list products", "op", "server.ListProducts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch products"})
		return
	}
	if list == nil {
		list = []models.TrackedProduct{}
	}

	c.JSON(http.StatusOK, list)
}

// GetProduct returns the product named by the url query parameter.
func (s *Server) GetProduct(c *gin.Context) {
	product, ok := s.lookup(c, "server.GetProduct")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, product)
}

// TrackProduct scrapes and stores a submitted URL.
func (s *Server) TrackProduct(c *gin.Context) {
	const opn = "server.TrackProduct"
	ctx := c.Request.Context()

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	product, err := s.tracker.Track(ctx, req.URL)
	switch {
	case errors.Is(err, tracker.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product URL"})
		return
	case err != nil:
		s.log.ErrorContext(ctx, "Failed to track product", "op", opn, "url", req.URL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to scrape product"})
		return
	}

	c.JSON(http.StatusCreated, product)
}

// Subscribe adds an email to a tracked product.
func (s *Server) Subscribe(c *gin.Context) {
	const opn = "server.Subscribe"
	ctx := c.Request.Context()

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err := s.tracker.Subscribe(ctx, req.URL, req.Email)
	switch {
	case errors.Is(err, tracker.ErrInvalidURL), errors.Is(err, tracker.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case err != nil:
		s.log.ErrorContext(ctx, "Failed to subscribe", "op", opn, "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "subscribed"})
	}
}

// lookup writes the error response itself and reports whether a product was found.
func (s *Server) lookup(c *gin.Context, opn string) (*models.TrackedProduct, bool) {
	ctx := c.Request.Context()

	productURL, err := tracker.CanonicalURL(c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product URL"})
		return nil, false
	}

	product, err := s.products.Get(ctx, productURL)
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return nil, false
	case err != nil:
		s.log.ErrorContext(ctx, "Failed to fetch product", "op", opn, "url", productURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product"})
		return nil, false
	}

	return product, true
}
