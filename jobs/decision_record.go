package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/decision"
)

// NewDecisionRecordHandler processes TaskDecisionRecord tasks.
func NewDecisionRecordHandler(recorder *decision.Recorder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec decision.Record
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			return asynq.SkipRetry
		}
		if err := recorder.Record(ctx, rec); err != nil {
			if logger != nil {
				logger.Warn("decision record", slog.Any("error", err))
			}
			return err
		}
		return nil
	}
}
