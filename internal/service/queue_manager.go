package service

import (
	"context"
	"time"

	"tgmedia/internal/constants"
	"tgmedia/internal/errors"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/retry"
	"tgmedia/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const noMediaNote = "no media to process"

// EnqueueResult reports the row written by Enqueue. Duplicate is set when an
// identical (message_id, correlation_id) row already existed.
type EnqueueResult struct {
	Item      *models.QueueItem
	Duplicate bool
}

// DrainResult summarizes one pass over the queue
type DrainResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Claimed   int `json:"claimed"`
}

// QueueManager writes and drains unified_processing_queue
type QueueManager struct {
	queue     QueueStore
	messages  MessageStore
	processor *MediaProcessor
	status    *StatusUpdater
	groups    *GroupSync
	backoff   *retry.Backoff
	cfg       models.QueueConfig
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

func NewQueueManager(queue QueueStore, messages MessageStore, processor *MediaProcessor, status *StatusUpdater,
	groups *GroupSync, backoff *retry.Backoff, cfg models.QueueConfig, m *metrics.Metrics, logger *logrus.Logger) *QueueManager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultQueueBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = constants.DefaultQueueMaxRetries
	}
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}
	return &QueueManager{
		queue:     queue,
		messages:  messages,
		processor: processor,
		status:    status,
		groups:    groups,
		backoff:   backoff,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue inserts a queue row for msg. Grouped messages always go in as
// media_group with raised priority.
func (q *QueueManager) Enqueue(ctx context.Context, msg *models.Message, correlationID string, queueType models.QueueType) (EnqueueResult, error) {
	if msg == nil {
		return EnqueueResult{}, errors.NewValidationError("message", "", "is required")
	}
	if correlationID == "" {
		return EnqueueResult{}, errors.NewValidationError("correlation_id", "", "is required")
	}

	priority := constants.PriorityDefault
	if msg.HasMediaGroup() {
		queueType = models.QueueTypeMediaGroup
		priority = constants.PriorityMediaGroup
	}

	item := &models.QueueItem{
		QueueType:        queueType,
		MessageID:        msg.TelegramMessageID,
		ChatID:           msg.ChatID,
		CorrelationID:    correlationID,
		MessageMediaData: msg.MessageMediaData,
		Status:           models.QueuePending,
		Priority:         priority,
	}

	op := "queue.insert"
	b := q.backoff.With(retry.WithLogger(q.logger, op), retry.WithObserver(q.metrics.RetryObserver(op)))
	err := b.RetryWithPredicate(ctx, func() error {
		return q.queue.InsertQueueItem(ctx, item)
	}, func(err error) bool {
		return !errors.HasCode(err, errors.ErrCodeConflict)
	})

	log := LogWithContext(ctx, q.logger).WithFields(logrus.Fields{
		LogFieldTelegramMsgID: msg.TelegramMessageID,
		LogFieldCorrelationID: correlationID,
		LogFieldQueueType:     queueType,
	})
	switch {
	case errors.HasCode(err, errors.ErrCodeConflict):
		q.metrics.RecordEnqueue(string(queueType), metrics.ResultDuplicate)
		log.Debug("Skipping enqueue: item already queued")
		return EnqueueResult{Item: item, Duplicate: true}, nil
	case err != nil:
		q.metrics.RecordEnqueue(string(queueType), metrics.ResultError)
		return EnqueueResult{}, err
	}

	q.metrics.RecordEnqueue(string(queueType), metrics.ResultSuccess)
	log.WithField(LogFieldQueueItemID, item.ID).Debug("Queue item inserted")
	return EnqueueResult{Item: item}, nil
}

// DrainPending selects re-processable rows and drains them. limit <= 0 uses
// the configured batch size.
func (q *QueueManager) DrainPending(ctx context.Context, limit int) (DrainResult, error) {
	if limit <= 0 {
		limit = q.cfg.BatchSize
	}
	items, err := q.queue.ListProcessableQueueItems(ctx, q.cfg.MaxRetries, limit)
	if err != nil {
		return DrainResult{}, err
	}
	res := q.Drain(ctx, items)
	q.refreshDepth(ctx)
	return res, nil
}

// Drain processes items one at a time. A failing item is recorded and the
// loop moves on; only context cancellation stops it early.
func (q *QueueManager) Drain(ctx context.Context, items []*models.QueueItem) DrainResult {
	ctx, span := tracing.StartSpan(ctx, "queue.drain", attribute.Int(LogFieldCount, len(items)))
	start := time.Now()
	var res DrainResult
	defer func() {
		span.SetAttributes(
			attribute.Int("processed", res.Processed),
			attribute.Int("failed", res.Failed),
			attribute.Int("skipped", res.Skipped),
		)
		q.metrics.ObserveStage("queue.drain", time.Since(start))
		tracing.EndSpan(span, nil)
	}()

	for _, item := range items {
		if ctx.Err() != nil {
			q.logger.WithError(ctx.Err()).Warn("Queue drain interrupted")
			break
		}
		q.drainItem(ctx, item, &res)
	}

	if len(items) > 0 {
		q.logger.WithFields(logrus.Fields{
			"processed":   res.Processed,
			"skipped":     res.Skipped,
			"failed":      res.Failed,
			"claimed":     res.Claimed,
			LogFieldCount: len(items),
		}).Info("Queue drain completed")
	}
	return res
}

func (q *QueueManager) drainItem(ctx context.Context, item *models.QueueItem, res *DrainResult) {
	log := q.logger.WithFields(logrus.Fields{
		LogFieldQueueItemID:   item.ID,
		LogFieldCorrelationID: item.CorrelationID,
		LogFieldQueueType:     item.QueueType,
	})

	if !item.MessageMediaData.HasMedia() {
		note := noMediaNote
		if err := q.queue.CompleteQueueItem(ctx, item.ID, &note); err != nil {
			log.WithError(err).Error("Failed to complete queue item without media")
			res.Failed++
			q.metrics.RecordQueueOutcome(metrics.ResultError)
			return
		}
		log.Debug("Skipping queue item: no media")
		res.Skipped++
		q.metrics.RecordQueueOutcome(metrics.ResultSkipped)
		return
	}

	claimed, err := q.queue.ClaimQueueItem(ctx, item.ID, item.Status)
	if err != nil {
		log.WithError(err).Error("Failed to claim queue item")
		res.Failed++
		q.metrics.RecordQueueOutcome(metrics.ResultError)
		return
	}
	if !claimed {
		log.Debug("Skipping queue item: claimed by another worker")
		return
	}
	res.Claimed++

	payload := item.MessageMediaData
	payload.Meta.CorrelationID = item.CorrelationID
	itemCtx := tracing.WithCorrelationID(ctx, item.CorrelationID)

	result := q.processor.ProcessMediaItem(itemCtx, &payload)
	msg := q.lookupMessage(itemCtx, item, log)

	if !result.Success {
		errMsg := "processing failed"
		if result.Error != nil {
			errMsg = result.Error.Error()
		}
		log.WithError(result.Error).WithField(LogFieldRetryCount, item.RetryCount+1).Error("Failed to process queue item")
		if err := q.queue.FailQueueItem(itemCtx, item.ID, errMsg); err != nil {
			log.WithError(err).Error("Failed to record queue item failure")
		}
		if msg != nil {
			q.updateStatus(itemCtx, msg.ID, models.StatusError, &errMsg, log)
		}
		res.Failed++
		q.metrics.RecordQueueOutcome(metrics.ResultError)
		return
	}

	if err := q.queue.CompleteQueueItem(itemCtx, item.ID, nil); err != nil {
		log.WithError(err).Error("Failed to complete queue item")
	}
	if msg != nil {
		q.updateStatus(itemCtx, msg.ID, models.StatusProcessed, nil, log)
	}
	if groupID := payload.Message.MediaGroupID; groupID != "" && q.groups != nil {
		if _, err := q.groups.SyncMediaGroupCaptions(itemCtx, groupID); err != nil {
			log.WithError(err).WithField(LogFieldMediaGroupID, groupID).Warn("Group caption sync failed")
		}
	}

	res.Processed++
	if result.Duplicate {
		q.metrics.RecordQueueOutcome(metrics.ResultDuplicate)
	} else {
		q.metrics.RecordQueueOutcome(metrics.ResultSuccess)
	}
	log.WithFields(logrus.Fields{
		LogFieldMediaID: result.MediaID,
		"duplicate":     result.Duplicate,
	}).Debug("Queue item processed")
}

func (q *QueueManager) lookupMessage(ctx context.Context, item *models.QueueItem, log *logrus.Entry) *models.Message {
	msg, err := q.messages.GetMessageByTelegramID(ctx, item.ChatID, item.MessageID)
	if err != nil {
		log.WithError(err).Warn("Message row not found for queue item")
		return nil
	}
	return msg
}

func (q *QueueManager) updateStatus(ctx context.Context, messageID string, status models.ProcessingStatus, errMsg *string, log *logrus.Entry) {
	if q.status == nil {
		return
	}
	if err := q.status.UpdateStatus(ctx, messageID, status, errMsg); err != nil {
		log.WithError(err).WithField(LogFieldMessageID, messageID).Warn("Failed to update message status")
	}
}

// ResetStaleClaims returns rows stuck in processing for longer than olderThan to pending.
func (q *QueueManager) ResetStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = time.Duration(constants.DefaultQueueStaleClaimMinutes) * time.Minute
	}
	n, err := q.queue.ResetStaleQueueClaims(ctx, q.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.WithField(LogFieldCount, n).Warn("Reset stale queue claims")
	}
	return n, nil
}

// PurgeCompleted deletes completed rows older than retentionDays.
func (q *QueueManager) PurgeCompleted(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultQueueRetentionDays
	}
	n, err := q.queue.PurgeCompletedQueueItems(ctx, q.now().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	q.logger.WithFields(logrus.Fields{
		LogFieldCount:    n,
		"retention_days": retentionDays,
	}).Info("Purged completed queue items")
	return n, nil
}

func (q *QueueManager) refreshDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	counts, err := q.queue.CountQueueItems(ctx)
	if err != nil {
		q.logger.WithError(err).Debug("Failed to count queue items")
		return
	}
	for _, s := range []models.QueueStatus{models.QueuePending, models.QueueProcessing, models.QueueCompleted, models.QueueError} {
		q.metrics.SetQueueDepth(string(s), counts[s])
	}
}
