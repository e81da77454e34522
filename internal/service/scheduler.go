package service

import (
	"context"
	"sync"
	"time"

	"tgmedia/internal/constants"
	"tgmedia/internal/models"

	"github.com/sirupsen/logrus"
)

// QueueRunner is the queue maintenance surface the scheduler drives
type QueueRunner interface {
	ResetStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
	DrainPending(ctx context.Context, limit int) (DrainResult, error)
	PurgeCompleted(ctx context.Context, retentionDays int) (int64, error)
}

// GlidePusher adds newly processed rows to Glide after a drain
type GlidePusher interface {
	SyncMissingRows(ctx context.Context, configID string) (SyncResult, error)
}

type Scheduler struct {
	queue         QueueRunner
	glide         GlidePusher
	glideConfigID string
	interval      time.Duration
	staleAfter    time.Duration
	retentionDays int
	batchSize     int
	logger        *logrus.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	lastPurge     time.Time
	now           func() time.Time
}

// NewScheduler builds a scheduler from the queue settings. glide may be nil;
// otherwise SyncMissingRows runs for glideConfigID after every drain that
// processed something.
func NewScheduler(queue QueueRunner, cfg models.QueueConfig, glide GlidePusher, glideConfigID string, logger *logrus.Logger) *Scheduler {
	interval := time.Duration(cfg.DrainIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(constants.DefaultQueueDrainIntervalSec) * time.Second
	}
	staleAfter := time.Duration(cfg.StaleClaimMinutes) * time.Minute
	if staleAfter <= 0 {
		staleAfter = time.Duration(constants.DefaultQueueStaleClaimMinutes) * time.Minute
	}
	return &Scheduler{
		queue:         queue,
		glide:         glide,
		glideConfigID: glideConfigID,
		interval:      interval,
		staleAfter:    staleAfter,
		retentionDays: cfg.RetentionDays,
		batchSize:     cfg.BatchSize,
		logger:        logger,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting queue scheduler")

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.queue.ResetStaleClaims(ctx, s.staleAfter); err != nil {
		s.logger.WithError(err).Error("Failed to reset stale queue claims")
	}

	res, err := s.queue.DrainPending(ctx, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to drain queue")
	}

	if res.Processed > 0 && s.glide != nil && s.glideConfigID != "" {
		if _, err := s.glide.SyncMissingRows(ctx, s.glideConfigID); err != nil {
			s.logger.WithError(err).WithField(LogFieldConfigID, s.glideConfigID).Warn("Failed to push new rows to Glide")
		}
	}

	if now := s.now(); now.Sub(s.lastPurge) >= 24*time.Hour {
		if _, err := s.queue.PurgeCompleted(ctx, s.retentionDays); err != nil {
			s.logger.WithError(err).Error("Failed to purge completed queue items")
			return
		}
		s.lastPurge = now
	}
}
