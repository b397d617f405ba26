package worker

import (
	"context"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

// reconcile persists terminal state for all settled outcomes using two
// bulk writes (successes, failures). Each record keeps its own
// timestamp and reason inside the batch. When a bulk write itself
// fails, reconciliation degrades to sequential single-record writes:
// best-effort, logging per-record failures without aborting, so one bad
// record cannot block the rest. Records that could not be persisted at
// all stay pending and are reconsidered by a later tick.
func (w *DeliveryWorker) reconcile(ctx context.Context, sent, failed []*model.DeliveryOutcome) {
	logger := logging.From(ctx)

	if len(sent) > 0 {
		updates := make([]model.SentUpdate, len(sent))
		for i, outcome := range sent {
			updates[i] = outcome.SentUpdate()
		}

		if err := w.repo.Message().BulkMarkSent(ctx, updates); err != nil {
			logger.Error("bulk sent update failed, falling back to individual updates",
				"count", len(updates), "error", err.Error())
			for _, update := range updates {
				if err := w.repo.Message().MarkSent(ctx, update); err != nil {
					logger.Error("failed to mark message sent",
						"messageID", update.ID, "error", err.Error())
				}
			}
		}
	}

	if len(failed) > 0 {
		updates := make([]model.FailedUpdate, len(failed))
		for i, outcome := range failed {
			updates[i] = outcome.FailedUpdate()
		}

		if err := w.repo.Message().BulkMarkFailed(ctx, updates); err != nil {
			logger.Error("bulk failed update failed, falling back to individual updates",
				"count", len(updates), "error", err.Error())
			for _, update := range updates {
				if err := w.repo.Message().MarkFailed(ctx, update); err != nil {
					logger.Error("failed to mark message failed",
						"messageID", update.ID, "error", err.Error())
				}
			}
		}
	}
}
