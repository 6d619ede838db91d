package connectors

import (
	"context"
	"time"

	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/metrics"
	"github.com/replyhub/backend/internal/models"
	"github.com/replyhub/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// connSyncTimeout bounds one connection's sync pass
const connSyncTimeout = 2 * time.Minute

// SyncService periodically sweeps every active connection and pulls fresh
// vendor events through its connector.
type SyncService struct {
	db       *gorm.DB
	registry *Registry
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSyncService creates the background sync sweeper. Insert envelopes for
// fetched items go out through the connectors' shared ingestor.
func NewSyncService(db *gorm.DB, registry *Registry, interval time.Duration) *SyncService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncService{
		db:       db,
		registry: registry,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the periodic sync sweeps
func (s *SyncService) Start() {
	logger.Log.Info("🔄 Starting vendor sync service",
		zap.Duration("interval", s.interval))
	go s.run()
}

// Stop stops the sync service
func (s *SyncService) Stop() {
	logger.Log.Info("🔄 Stopping vendor sync service")
	s.cancel()
}

func (s *SyncService) run() {
	// Run immediately on startup
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.ctx.Done():
			return
		}
	}
}

// sweep syncs every active connection. One connection failing never stops
// the rest of the sweep.
func (s *SyncService) sweep() {
	start := time.Now()

	var conns []models.ConnectedPlatform
	if err := s.db.Where("is_active = ?", true).Find(&conns).Error; err != nil {
		logger.Log.Error("❌ Failed to load connections for sync", zap.Error(err))
		return
	}

	if len(conns) == 0 {
		return
	}

	var newTotal, skippedTotal, failures int
	for i := range conns {
		result, err := s.SyncOne(s.ctx, &conns[i])
		if err != nil {
			failures++
			continue
		}
		newTotal += result.New
		skippedTotal += result.Skipped
	}

	logger.Log.Info("✅ Sync sweep complete",
		zap.Int("connections", len(conns)),
		zap.Int("new", newTotal),
		zap.Int("skipped", skippedTotal),
		zap.Int("failures", failures),
		zap.Duration("took", time.Since(start)))
}

// SyncOne runs one connection's sync pass, records metrics, and stamps
// last_synced_at on success. The manual sync endpoint calls this directly.
func (s *SyncService) SyncOne(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	platform := string(conn.Platform)

	connector, ok := s.registry.Get(conn.Platform)
	if !ok {
		logger.Log.Warn("No connector registered for platform",
			logger.WithPlatform(platform))
		metrics.Get().SyncRunsTotal.WithLabelValues(platform, "unsupported").Inc()
		return &SyncResult{Platform: conn.Platform}, nil
	}

	syncCtx, cancel := context.WithTimeout(ctx, connSyncTimeout)
	defer cancel()

	syncCtx, span := telemetry.GetEvents().TraceVendorSync(syncCtx, platform, conn.UserID)
	defer span.End()

	start := time.Now()
	result, err := connector.Sync(syncCtx, conn)
	metrics.Get().SyncDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.RecordVendorError(span, err, true)
		logger.Log.Error("❌ Sync failed",
			logger.WithPlatform(platform),
			logger.WithUserID(conn.UserID),
			zap.Error(err))
		metrics.Get().SyncRunsTotal.WithLabelValues(platform, "error").Inc()
		return nil, err
	}

	telemetry.RecordSyncResult(span, result.New, result.Skipped, len(result.Errors))
	metrics.Get().SyncRunsTotal.WithLabelValues(platform, "ok").Inc()
	metrics.Get().SyncItemsTotal.WithLabelValues(platform, "new").Add(float64(result.New))
	metrics.Get().SyncItemsTotal.WithLabelValues(platform, "skipped").Add(float64(result.Skipped))
	metrics.Get().SyncItemsTotal.WithLabelValues(platform, "error").Add(float64(len(result.Errors)))

	now := time.Now()
	if err := s.db.Model(conn).Update("last_synced_at", now).Error; err != nil {
		logger.Log.Warn("Failed to stamp last_synced_at",
			logger.WithPlatform(platform),
			zap.Error(err))
	}

	if len(result.Errors) > 0 {
		logger.Log.Warn("Sync finished with item errors",
			logger.WithPlatform(platform),
			logger.WithUserID(conn.UserID),
			zap.Int("errors", len(result.Errors)))
	}

	logger.Log.Debug("Sync pass finished",
		logger.WithPlatform(platform),
		logger.WithUserID(conn.UserID),
		zap.Int("new", result.New),
		zap.Int("skipped", result.Skipped))

	return result, nil
}
