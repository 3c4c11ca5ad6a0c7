package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/adapters"
	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

// BufferState names the learning buffer's position in its update cycle.
type BufferState string

const (
	BufferIdle            BufferState = "idle"
	BufferAccumulating    BufferState = "accumulating"
	BufferUpdateTriggered BufferState = "update_triggered"
	BufferUpdating        BufferState = "updating"
)

// Trigger reasons recorded on update reports.
const (
	TriggerSize   = "size"
	TriggerAge    = "age"
	TriggerManual = "manual"
)

// LearningBuffer absorbs live feedback and periodically folds it into the
// model adapters without blocking ingestion. Batch append and the trigger
// decision form one critical section; the batch is swapped out under that
// same lock and the slow adapter-update path runs outside it, so new
// feedback always lands in the fresh batch while an update is in flight.
//
// Batches are consumed at most once: a failed adapter update is reported
// and logged, never replayed, since double-counting feedback is worse than
// an occasional dropped update.
type LearningBuffer struct {
	adapters    []adapters.ModelAdapter
	invalidator CacheInvalidator
	metrics     *MetricsCollector
	config      *config.LearningConfig
	logger      *logrus.Logger

	mu       sync.Mutex
	batch    *models.UpdateBatch
	state    BufferState
	updating bool

	totalConsumed int64
	updateCount   int64
	lastUpdate    *time.Time
	lastReport    *models.UpdateReport

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLearningBuffer(
	modelAdapters []adapters.ModelAdapter,
	invalidator CacheInvalidator,
	metrics *MetricsCollector,
	cfg *config.LearningConfig,
	logger *logrus.Logger,
) *LearningBuffer {
	ctx, cancel := context.WithCancel(context.Background())

	return &LearningBuffer{
		adapters:    modelAdapters,
		invalidator: invalidator,
		metrics:     metrics,
		config:      cfg,
		logger:      logger,
		batch:       &models.UpdateBatch{},
		state:       BufferIdle,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the batch-age watcher.
func (lb *LearningBuffer) Start() error {
	lb.wg.Add(1)
	go lb.ageWorker()

	lb.logger.WithFields(logrus.Fields{
		"buffer_size":   lb.config.BufferSize,
		"max_batch_age": lb.config.MaxBatchAge,
	}).Info("Learning buffer started")

	return nil
}

// Stop shuts down the age watcher and waits for any in-flight update.
func (lb *LearningBuffer) Stop() {
	lb.cancel()
	lb.wg.Wait()
	lb.logger.Info("Learning buffer stopped")
}

// Append adds one feedback event and evaluates the trigger conditions.
// The append and the trigger decision are a single exclusive critical
// section: an event is never split across batches nor double-counted.
// It returns true when the append tripped an update.
func (lb *LearningBuffer) Append(event models.FeedbackEvent) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	lb.mu.Lock()

	if len(lb.batch.Events) == 0 {
		lb.batch.FirstEventAt = time.Now()
	}
	lb.batch.Events = append(lb.batch.Events, event)
	lb.state = BufferAccumulating

	if lb.metrics != nil {
		lb.metrics.SetBufferSize(len(lb.batch.Events))
	}

	if len(lb.batch.Events) < lb.config.BufferSize || lb.updating {
		lb.mu.Unlock()
		return false
	}

	batch := lb.swapLocked()
	lb.mu.Unlock()

	lb.wg.Add(1)
	go func() {
		defer lb.wg.Done()
		lb.runUpdate(lb.ctx, batch, TriggerSize)
	}()

	return true
}

// TriggerNow forces an update of whatever is pending, regardless of batch
// state. An empty batch is a no-op. The update runs synchronously so the
// caller gets the report; the wait is bounded by the per-adapter update
// timeout.
func (lb *LearningBuffer) TriggerNow(ctx context.Context) *models.UpdateReport {
	lb.mu.Lock()
	if len(lb.batch.Events) == 0 {
		lb.mu.Unlock()
		return nil
	}
	batch := lb.swapLocked()
	lb.mu.Unlock()

	return lb.runUpdate(ctx, batch, TriggerManual)
}

// Stats returns a point-in-time view of the buffer.
func (lb *LearningBuffer) Stats() models.BufferStats {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return models.BufferStats{
		State:          string(lb.state),
		PendingEvents:  len(lb.batch.Events),
		Capacity:       lb.config.BufferSize,
		TotalConsumed:  lb.totalConsumed,
		UpdateCount:    lb.updateCount,
		LastUpdateTime: lb.lastUpdate,
	}
}

// LastReport returns the most recent update report, or nil before the
// first update.
func (lb *LearningBuffer) LastReport() *models.UpdateReport {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.lastReport
}

// swapLocked exchanges the current batch for a fresh one. Caller holds the
// lock; the returned batch is exclusively owned by the update path.
func (lb *LearningBuffer) swapLocked() *models.UpdateBatch {
	batch := lb.batch
	lb.batch = &models.UpdateBatch{}
	lb.state = BufferUpdateTriggered
	lb.updating = true
	if lb.metrics != nil {
		lb.metrics.SetBufferSize(0)
	}
	return batch
}

// ageWorker trips the age-based trigger for batches that never reach the
// size threshold.
func (lb *LearningBuffer) ageWorker() {
	defer lb.wg.Done()

	every := lb.config.AgeCheckEvery
	if every == 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lb.mu.Lock()
			expired := !lb.updating &&
				len(lb.batch.Events) > 0 &&
				time.Since(lb.batch.FirstEventAt) >= lb.config.MaxBatchAge
			var batch *models.UpdateBatch
			if expired {
				batch = lb.swapLocked()
			}
			lb.mu.Unlock()

			if expired {
				lb.runUpdate(lb.ctx, batch, TriggerAge)
			}

		case <-lb.ctx.Done():
			return
		}
	}
}

// runUpdate hands the batch to every adapter's incremental-update hook.
// Per-adapter failures are isolated: the other adapters' updates still
// commit. After a successful cycle the outbound cache-invalidation signal
// names the affected users.
func (lb *LearningBuffer) runUpdate(ctx context.Context, batch *models.UpdateBatch, reason string) *models.UpdateReport {
	lb.mu.Lock()
	lb.state = BufferUpdating
	lb.mu.Unlock()

	startTime := time.Now()
	report := &models.UpdateReport{
		EventsConsumed: batch.Size(),
		AffectedUsers:  batch.AffectedUsers(),
		TriggeredBy:    reason,
	}

	for _, adapter := range lb.adapters {
		if err := lb.updateAdapter(ctx, adapter, batch); err != nil {
			lb.logger.WithFields(logrus.Fields{
				"model":      adapter.Name(),
				"batch_size": batch.Size(),
				"error":      err,
			}).Error("Incremental update failed; batch not replayed")
			report.FailedModels = append(report.FailedModels, adapter.Name())
			if lb.metrics != nil {
				lb.metrics.IncAdapterFailure(adapter.Name())
			}
			continue
		}
		report.UpdatedModels = append(report.UpdatedModels, adapter.Name())
	}

	report.Elapsed = time.Since(startTime)
	report.CompletedAt = time.Now()

	if len(report.UpdatedModels) > 0 && lb.invalidator != nil {
		if err := lb.invalidator.InvalidateUsers(ctx, report.AffectedUsers); err != nil {
			lb.logger.WithError(err).Warn("Cache invalidation signal failed")
		}
	}

	now := time.Now()
	lb.mu.Lock()
	lb.totalConsumed += int64(batch.Size())
	lb.updateCount++
	lb.lastUpdate = &now
	lb.lastReport = report
	lb.updating = false
	if len(lb.batch.Events) == 0 {
		lb.state = BufferIdle
	} else {
		lb.state = BufferAccumulating
	}
	// Events that arrived during the update may already fill the new
	// batch; re-arm the size trigger rather than waiting for the next
	// append.
	var next *models.UpdateBatch
	if len(lb.batch.Events) >= lb.config.BufferSize {
		next = lb.swapLocked()
	}
	lb.mu.Unlock()

	if lb.metrics != nil {
		lb.metrics.ObserveUpdate(report.Elapsed, batch.Size())
	}

	lb.logger.WithFields(logrus.Fields{
		"events":       report.EventsConsumed,
		"updated":      report.UpdatedModels,
		"failed":       report.FailedModels,
		"elapsed":      report.Elapsed,
		"triggered_by": reason,
	}).Info("Incremental update completed")

	if next != nil {
		lb.runUpdate(ctx, next, TriggerSize)
	}

	return report
}

// updateAdapter bounds one adapter's update with the configured timeout.
// A hook that hangs past the bound is treated as failed for this batch;
// the goroutine is left to drain when the adapter eventually honors the
// cancelled context.
func (lb *LearningBuffer) updateAdapter(ctx context.Context, adapter adapters.ModelAdapter, batch *models.UpdateBatch) error {
	timeout := lb.config.UpdateTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	updateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- adapter.IncrementalUpdate(updateCtx, batch)
	}()

	select {
	case err := <-done:
		return err
	case <-updateCtx.Done():
		return ErrUpdateTimeout
	}
}
