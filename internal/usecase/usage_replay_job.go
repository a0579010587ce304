package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/middleware"
	"X402Chat/pkg/queue"
)

var _ queue.Job = (*UsageReplayJob)(nil)

// UsageReplayJob re-sends usage batches the pipeline spilled to the queue.
type UsageReplayJob struct {
	proc middleware.BatchProc
}

func NewUsageReplayJob(proc middleware.BatchProc) *UsageReplayJob {
	return &UsageReplayJob{proc: proc}
}

func (j *UsageReplayJob) Type() string { return middleware.SpillJobType }

func (j *UsageReplayJob) Handle(ctx context.Context, payload json.RawMessage) error {
	events, err := queue.ParsePayload[[]*models.UsageEvent](payload)
	if err != nil {
		return fmt.Errorf("usage replay: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	return j.proc.ProcessBatch(ctx, events)
}
