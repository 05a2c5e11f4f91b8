package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EventSink stores delivered procurement events.
type EventSink interface {
	Store(ctx context.Context, evt procurement.Event) error
}

// ProcurementEventJob consumes TaskProcurementEvent tasks.
type ProcurementEventJob struct {
	Sink    EventSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewProcurementEventJob initialises the event handler.
func NewProcurementEventJob(sink EventSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProcurementEventJob {
	return &ProcurementEventJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle persists the event and logs purchase orders that are ready to send.
func (j *ProcurementEventJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sink == nil {
		return errors.New("procurement event: handler not configured")
	}
	var evt procurement.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("procurement event: decode: %v: %w", err, asynq.SkipRetry)
	}
	if evt.ID == "" || evt.Entity == "" {
		return fmt.Errorf("procurement event: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskProcurementEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("event_id", evt.ID),
		slog.String("entity", evt.Entity),
		slog.String("action", evt.Action),
		slog.String("number", evt.Number),
	)
	if err := j.Sink.Store(ctx, evt); err != nil {
		logger.Error("store procurement event", slog.Any("error", err))
		return err
	}
	j.metrics().AddEvent(evt.Entity, evt.Action)
	if evt.Entity == procurement.EntityPurchaseOrder && evt.Action == procurement.ActionCreated {
		logger.Info("purchase order ready for dispatch",
			slog.String("rfq_no", evt.RFQNo),
			slog.String("vendor_id", evt.Meta["vendor_id"]),
			slog.String("total", evt.Meta["total"]),
		)
	}
	return nil
}

func (j *ProcurementEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskProcurementEvent))
	}
	return slog.Default().With(slog.String("job", TaskProcurementEvent))
}

func (j *ProcurementEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// PGEventSink writes events into procurement_events. Redelivered events are
// ignored by id.
type PGEventSink struct {
	pool *pgxpool.Pool
}

// NewPGEventSink constructs a Postgres-backed sink.
func NewPGEventSink(pool *pgxpool.Pool) *PGEventSink {
	return &PGEventSink{pool: pool}
}

// Store implements EventSink.
func (s *PGEventSink) Store(ctx context.Context, evt procurement.Event) error {
	if s == nil || s.pool == nil {
		return errors.New("event sink not initialised")
	}
	meta, err := json.Marshal(evt.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO procurement_events (id, entity, action, number, rfq_no, actor, occurred_at, meta)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
ON CONFLICT (id) DO NOTHING`,
		evt.ID, evt.Entity, evt.Action, evt.Number, evt.RFQNo, evt.Actor, evt.At, meta)
	return err
}
