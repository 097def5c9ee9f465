package database

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/apexclear/settlement/pkg/metrics"
)

func TestSamplePoolStats(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())

	samplePoolStats(db, "test")

	open := testutil.ToFloat64(metrics.DBOpenConns.WithLabelValues("test"))
	assert.GreaterOrEqual(t, open, float64(1), "an open connection must be reported")
	inUse := testutil.ToFloat64(metrics.DBInUseConns.WithLabelValues("test"))
	assert.GreaterOrEqual(t, open, inUse)
}

func TestCollectPoolMetricsStopsOnCancel(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		CollectPoolMetrics(ctx, db, "test", time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on context cancellation")
	}
}
