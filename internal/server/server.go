// Package server exposes the operational HTTP surface: health, metrics and
// a last-price lookup. Settlement itself is never invoked over HTTP; it is
// driven by the match-event consumer.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/apexclear/settlement/internal/marketdata"
	"github.com/apexclear/settlement/pkg/models"
)

// Server serves the operational endpoints.
type Server struct {
	db         *gorm.DB
	priceCache *marketdata.PriceCache
	logger     *zap.Logger
	httpServer *http.Server
}

// New creates the HTTP server. priceCache may be nil; price lookups then
// go straight to the database.
func New(addr string, db *gorm.DB, priceCache *marketdata.PriceCache, logger *zap.Logger) *Server {
	s := &Server{db: db, priceCache: priceCache, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/health-status", s.healthStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/v1/symbols/:symbol/price", s.lastPrice)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthStatus(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) lastPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	ctx := c.Request.Context()

	if s.priceCache != nil {
		price, err := s.priceCache.GetLastPrice(ctx, symbol)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"symbol": symbol, "last_trade_price": price})
			return
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("price cache lookup failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	var sym models.Symbol
	if err := s.db.WithContext(ctx).First(&sym, "symbol = ?", symbol).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym.Symbol, "last_trade_price": sym.LastTradePrice})
}
