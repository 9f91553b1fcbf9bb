// Package jobs wires background work through Asynq: grant cache refreshes
// after mutations, periodic cache warmup, and asynchronous decision audit
// writes.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/decision"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantsRefresh rebuilds one organization's grant cache entry.
	TaskGrantsRefresh = "grants:refresh"
	// TaskGrantsWarmup rebuilds the grant cache for all active organizations.
	TaskGrantsWarmup = "grants:warmup"
	// TaskDecisionRecord persists one decision audit row.
	TaskDecisionRecord = "audit:decision"
)

// GrantsRefreshPayload identifies the organization to refresh.
type GrantsRefreshPayload struct {
	Slug string `json:"slug"`
}

// NewGrantsRefreshTask constructs an Asynq task for one slug.
func NewGrantsRefreshTask(payload GrantsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantsRefresh, data), nil
}

// NewGrantsWarmupTask constructs the warmup task. It carries no payload.
func NewGrantsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskGrantsWarmup, nil)
}

// NewDecisionRecordTask constructs a task carrying one decision record.
func NewDecisionRecordTask(rec decision.Record) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDecisionRecord, data), nil
}
