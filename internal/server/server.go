// Package server exposes the refresh trigger and the product API over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/gin-gonic/gin"
)

// Runner runs one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (*models.BatchOutcome, error)
}

// ProductReader reads tracked products.
type ProductReader interface {
	ListAll(ctx context.Context) ([]models.TrackedProduct, error)
	Get(ctx context.Context, url string) (*models.TrackedProduct, error)
}

// Tracker adds products and subscribers.
type Tracker interface {
	Track(ctx context.Context, rawURL string) (*models.TrackedProduct, error)
	Subscribe(ctx context.Context, rawURL, email string) error
}

// Server holds the HTTP handlers.
type Server struct {
	log      *slog.Logger
	runner   Runner
	products ProductReader
	tracker  Tracker
	metrics  http.Handler
}

// New creates a new Server instance.
func New(log *slog.Logger, runner Runner, products ProductReader, tracker Tracker, metrics http.Handler) *Server {
	return &Server{log: log, runner: runner, products: products, tracker: tracker, metrics: metrics}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/cron", s.RunCycle)
		api.GET("/products", s.ListProducts)
		api.POST("/products", s.TrackProduct)
		api.GET("/product", s.GetProduct)
		api.POST("/products/subscribe", s.Subscribe)
		api.GET("/products/chart", s.PriceChart)
	}

	return r
}

// HTTPServer wraps the router in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.DebugContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
