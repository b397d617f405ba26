package worker

import (
	"context"
	"time"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/utils/async"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

// DefaultInterval is the delivery tick cadence
const DefaultInterval = time.Minute

// DeliveryWorker periodically finds due scheduled messages, delivers
// them through the Slack API, and reconciles per-message outcomes back
// into the message store.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Ticks are dispatched without a mutex, so a slow tick may overlap the
//   next firing. That is safe: the due query only selects pending
//   messages, and terminal transitions are idempotent.
type DeliveryWorker struct {
	repo   interfaces.Repository
	tokens *token.Manager
	slack  slack.Service

	interval time.Duration
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option is a functional option for DeliveryWorker configuration
type Option func(*DeliveryWorker)

// WithInterval overrides the tick cadence
func WithInterval(interval time.Duration) Option {
	return func(w *DeliveryWorker) {
		w.interval = interval
	}
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(w *DeliveryWorker) {
		w.now = now
	}
}

// New creates a delivery worker
func New(repo interfaces.Repository, tokens *token.Manager, slackSvc slack.Service, opts ...Option) *DeliveryWorker {
	w := &DeliveryWorker{
		repo:     repo,
		tokens:   tokens,
		slack:    slackSvc,
		interval: DefaultInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start begins the background delivery loop. Does not block.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	logging.Default().Info("delivery worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the loop to exit.
// In-flight ticks are not interrupted; they finish on their own.
func (w *DeliveryWorker) Stop() {
	logging.Default().Info("delivery worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("delivery worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *DeliveryWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// Catch-up pass for messages that came due while the process was down
	w.dispatchTick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Each firing is dispatched on its own goroutine so a slow
			// tick never delays the schedule. Nothing inside a tick can
			// terminate the timer: tick errors are logged and the next
			// firing proceeds.
			w.dispatchTick(ctx)

		case <-w.stopCh:
			logging.Default().Info("delivery worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("delivery worker context cancelled")
			return
		}
	}
}

func (w *DeliveryWorker) dispatchTick(ctx context.Context) {
	async.Dispatch(ctx, func(ctx context.Context) error {
		if err := w.Tick(ctx); err != nil {
			// Log and keep the timer alive
			logging.From(ctx).Error("delivery tick failed (will retry next interval)",
				"error", err.Error())
		}
		return nil
	})
}

// Tick performs one delivery cycle: query due messages, deliver them
// all concurrently, and persist the settled outcomes
func (w *DeliveryWorker) Tick(ctx context.Context) error {
	now := w.now().UTC()

	due, err := w.repo.Message().FindDue(ctx, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	logger := logging.From(ctx)
	logger.Info("processing due messages", "count", len(due))

	outcomes := w.deliverAll(ctx, due)

	var sent []*model.DeliveryOutcome
	var failed []*model.DeliveryOutcome
	for _, outcome := range outcomes {
		if outcome.Success {
			sent = append(sent, outcome)
		} else {
			failed = append(failed, outcome)
		}
	}

	w.reconcile(ctx, sent, failed)

	logger.Info("delivery tick complete",
		"sent", len(sent),
		"failed", len(failed))

	return nil
}
