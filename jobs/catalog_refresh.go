package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
)

// CatalogCache is the cache the refresh job clears.
type CatalogCache interface {
	Invalidate(ctx context.Context) error
}

// CatalogRefreshJob drops cached catalog entries so the next lookup reads the
// source of record.
type CatalogRefreshJob struct {
	Cache   CatalogCache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogRefreshJob initialises the refresh handler.
func NewCatalogRefreshJob(cache CatalogCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogRefreshJob {
	return &CatalogRefreshJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the refresh.
func (j *CatalogRefreshJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Cache == nil {
		return errors.New("catalog refresh: handler not configured")
	}
	var payload CatalogRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("catalog refresh: decode: %v: %w", err, asynq.SkipRetry)
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCatalogRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskCatalogRefresh), slog.String("reason", payload.Reason))
	if err := j.Cache.Invalidate(ctx); err != nil {
		logger.Error("invalidate catalog cache", slog.Any("error", err))
		return err
	}
	logger.Info("catalog cache invalidated")
	return nil
}
