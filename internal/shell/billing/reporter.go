package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/agentresourcerest/internal/core/domain"
)

// =============================================================================
// Background Reporter
// =============================================================================

// EventStore is the slice of store.Store the reporter needs.
type EventStore interface {
	GetUnreportedEvents(ctx context.Context, limit int) ([]domain.MeterEvent, error)
	MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error
}

// Reporter batches and reports usage events in the background.
type Reporter struct {
	store     EventStore
	client    Client
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	// mu serializes report cycles between the loop and ReportNow.
	mu       sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ReporterConfig holds configuration for the background reporter.
type ReporterConfig struct {
	Store     EventStore
	Client    Client
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// flushTimeout bounds the final report made on Stop.
const flushTimeout = 10 * time.Second

// NewReporter creates a new background reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Reporter{
		store:     cfg.Store,
		client:    cfg.Client,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With("component", "billing_reporter"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the reporting loop until Stop is called or ctx is cancelled.
// It blocks; callers run it in a goroutine.
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info("starting billing reporter",
		"interval", r.interval,
		"batch_size", r.batchSize,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	// Report any pending events on startup
	r.ReportNow(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("billing reporter stopped due to context cancellation")
			return
		case <-r.stopCh:
			r.flush()
			r.logger.Info("billing reporter stopped")
			return
		case <-ticker.C:
			r.ReportNow(ctx)
		}
	}
}

// Stop signals the reporter to flush once and exit, then waits for it.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Reporter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	r.ReportNow(ctx)
}

// ReportNow runs one report cycle synchronously and returns the number of
// events accepted by the gateway.
func (r *Reporter) ReportNow(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.store.GetUnreportedEvents(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to get unreported events", "error", err)
		return 0
	}

	if len(events) == 0 {
		return 0
	}

	r.logger.Debug("reporting usage events", "count", len(events))

	if err := r.client.MeterUsageBatch(ctx, events); err != nil {
		// Events stay unreported and are retried next cycle.
		r.logger.Error("failed to report usage events",
			"error", err,
			"count", len(events),
		)
		return 0
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	if err := r.store.MarkEventsReported(ctx, ids, time.Now()); err != nil {
		r.logger.Error("failed to mark events as reported",
			"error", err,
			"count", len(ids),
		)
		return 0
	}

	r.logger.Info("reported usage events", "count", len(events))
	return len(events)
}
