package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProcurementEvent persists a committed procurement transition.
	TaskProcurementEvent = "procurement:event"
	// TaskCatalogRefresh drops cached catalog lookups.
	TaskCatalogRefresh = "catalog:refresh"
)

const eventMaxRetry = 5

// CatalogRefreshPayload carries options for the catalog refresh job.
type CatalogRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewProcurementEventTask wraps evt in a task. The event id doubles as the task
// id so a republished event is not queued twice.
func NewProcurementEventTask(evt procurement.Event) (*asynq.Task, error) {
	if evt.ID == "" {
		return nil, errors.New("jobs: procurement event without id")
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcurementEvent, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(eventMaxRetry),
		asynq.TaskID(evt.ID),
	), nil
}

// NewCatalogRefreshTask builds a catalog refresh task.
func NewCatalogRefreshTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(CatalogRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogRefresh, body, asynq.Queue(QueueDefault)), nil
}
