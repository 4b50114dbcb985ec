package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/maxidea1024/gatrix-sub004/internal/cache"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
)

// maxRetries is the delivery attempt ceiling before an event is parked as
// failed for manual inspection.
const maxRetries = 3

// Worker drains pending outbox events to Redis pub/sub
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	db            *gorm.DB
	logger        *logrus.Entry
	interval      time.Duration
	batchSize     int
	retentionDays int
}

// Config holds the configuration for the outbox worker
type Config struct {
	DB            *gorm.DB
	Logger        *logrus.Entry
	IntervalSec   int
	BatchSize     int
	RetentionDays int
}

// NewWorker creates a new outbox worker
func NewWorker(cfg *Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ctx:           ctx,
		cancel:        cancel,
		db:            cfg.DB,
		logger:        cfg.Logger.WithField("component", "outbox-worker"),
		interval:      time.Duration(cfg.IntervalSec) * time.Second,
		batchSize:     cfg.BatchSize,
		retentionDays: cfg.RetentionDays,
	}
}

// Start begins the periodic drain loop
func (w *Worker) Start() {
	w.logger.Info("Starting outbox worker...")
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := w.ProcessPending(w.batchSize); err != nil {
					w.logger.Errorf("Failed to process pending events: %v", err)
				} else if n > 0 {
					w.logger.Debugf("Published %d outbox events", n)
				}
			case <-w.ctx.Done():
				w.logger.Info("Stopping outbox worker...")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.cancel()
}

// ProcessPending publishes up to batchSize pending events, oldest first.
// Each event is flipped to processing before publishing so a second worker
// instance cannot pick it up.
func (w *Worker) ProcessPending(batchSize int) (int, error) {
	var events []model.OutboxEvent
	if err := w.db.Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(batchSize).
		Find(&events).Error; err != nil {
		return 0, err
	}

	published := 0
	for i := range events {
		ev := &events[i]

		res := w.db.Model(&model.OutboxEvent{}).
			Where("id = ? AND status = ?", ev.ID, model.OutboxStatusPending).
			Update("status", model.OutboxStatusProcessing)
		if res.Error != nil {
			return published, res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker claimed it.
			continue
		}

		if err := w.publish(ev); err != nil {
			w.handleFailure(ev, err)
			continue
		}

		now := time.Now()
		if err := w.db.Model(&model.OutboxEvent{}).Where("id = ?", ev.ID).
			Updates(map[string]interface{}{
				"status":       model.OutboxStatusCompleted,
				"processed_at": now,
				"last_error":   "",
			}).Error; err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (w *Worker) publish(ev *model.OutboxEvent) error {
	var payload json.RawMessage
	if len(ev.Payload) > 0 {
		payload = json.RawMessage(ev.Payload)
	}

	msg := map[string]interface{}{
		"entityType":      ev.EntityType,
		"entityId":        ev.EntityID,
		"eventType":       ev.EventType,
		"changeRequestId": ev.ChangeRequestID,
		"payload":         payload,
		"occurredAt":      ev.CreatedAt.UTC().Format(time.RFC3339),
	}
	return cache.PublishJSON(w.ctx, ChannelFor(ev.EntityType), msg)
}

func (w *Worker) handleFailure(ev *model.OutboxEvent, err error) {
	errorMsg := err.Error()
	if len(errorMsg) > 255 {
		errorMsg = errorMsg[:255]
	}

	newRetryCount := ev.RetryCount + 1
	updates := map[string]interface{}{
		"retry_count": newRetryCount,
		"last_error":  errorMsg,
	}
	if newRetryCount >= maxRetries {
		updates["status"] = model.OutboxStatusFailed
		w.logger.Errorf("Outbox event %d exhausted retries: %v", ev.ID, err)
	} else {
		updates["status"] = model.OutboxStatusPending
		w.logger.Warnf("Outbox event %d publish failed (attempt %d): %v", ev.ID, newRetryCount, err)
	}

	if uerr := w.db.Model(&model.OutboxEvent{}).Where("id = ?", ev.ID).
		Updates(updates).Error; uerr != nil {
		w.logger.Errorf("Failed to update outbox event %d after failure: %v", ev.ID, uerr)
	}
}

// CleanupOld deletes completed and failed events older than the retention
// window. Failed rows get the same window, which leaves operators the full
// retention period to inspect them.
func (w *Worker) CleanupOld() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
	res := w.db.Where("status IN ? AND created_at < ?",
		[]string{model.OutboxStatusCompleted, model.OutboxStatusFailed}, cutoff).
		Delete(&model.OutboxEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		w.logger.Infof("Pruned %d finished outbox events", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
