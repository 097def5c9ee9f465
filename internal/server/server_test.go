package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexclear/settlement/internal/database"
	"github.com/apexclear/settlement/pkg/models"
)

func setupServer(t *testing.T) (*Server, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return New(":0", db, nil, zap.NewNop()), db
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthStatus(t *testing.T) {
	s, _ := setupServer(t)
	rec := doRequest(s, http.MethodGet, "/health-status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestLastPriceFromDatabase(t *testing.T) {
	s, db := setupServer(t)
	price, _ := decimal.NewFromString("123.5")
	require.NoError(t, db.Create(&models.Symbol{Symbol: "AAPL", LastTradePrice: price}).Error)

	rec := doRequest(s, http.MethodGet, "/api/v1/symbols/AAPL/price")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "123.5")
}

func TestLastPriceUnknownSymbol(t *testing.T) {
	s, _ := setupServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/symbols/NOPE/price")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupServer(t)
	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
