package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/apexclear/settlement/pkg/metrics"
)

// CollectPoolMetrics publishes connection pool statistics for db under the
// given pool name every interval until ctx is cancelled.
func CollectPoolMetrics(ctx context.Context, db *gorm.DB, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samplePoolStats(db, name)
		}
	}
}

func samplePoolStats(db *gorm.DB, name string) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	stats := sqlDB.Stats()
	metrics.DBOpenConns.WithLabelValues(name).Set(float64(stats.OpenConnections))
	metrics.DBInUseConns.WithLabelValues(name).Set(float64(stats.InUse))
}
