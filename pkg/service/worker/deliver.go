package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

// deliverAll fans out one delivery attempt per message and waits for
// every attempt to settle. This is an all-settle join, not a race: a
// failing or slow message delays only reconciliation, never the
// outcomes of its siblings.
//
// No concurrency cap is imposed beyond the number of due messages in
// the tick. With a one-minute cadence the per-tick volume stays small;
// a worker-pool bound belongs here if that assumption breaks.
func (w *DeliveryWorker) deliverAll(ctx context.Context, due []*model.ScheduledMessage) []*model.DeliveryOutcome {
	outcomes := make([]*model.DeliveryOutcome, len(due))

	var wg sync.WaitGroup
	for i, msg := range due {
		wg.Add(1)
		go func(i int, msg *model.ScheduledMessage) {
			defer wg.Done()
			outcomes[i] = w.deliver(ctx, msg)
		}(i, msg)
	}
	wg.Wait()

	return outcomes
}

// deliver attempts one message and classifies the result. It never
// returns an error: token acquisition failures, rejected sends,
// transport failures, and panics all become failed outcomes so one
// message cannot abort its siblings.
func (w *DeliveryWorker) deliver(ctx context.Context, msg *model.ScheduledMessage) (outcome *model.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("panic during delivery",
				"messageID", msg.ID, "panic", r)
			outcome = model.NewFailedOutcome(msg.ID, w.now().UTC(), fmt.Sprintf("panic: %v", r))
		}
	}()

	accessToken, err := w.tokens.ValidAccessToken(ctx, msg.UserID)
	if err != nil {
		return model.NewFailedOutcome(msg.ID, w.now().UTC(), err.Error())
	}

	if err := w.slack.PostMessage(ctx, accessToken, msg.ChannelID, msg.Body); err != nil {
		return model.NewFailedOutcome(msg.ID, w.now().UTC(), err.Error())
	}

	logging.From(ctx).Info("message delivered",
		"messageID", msg.ID,
		"channelID", msg.ChannelID)

	return model.NewSentOutcome(msg.ID, w.now().UTC())
}
