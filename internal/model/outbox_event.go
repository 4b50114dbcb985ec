package model

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent delivery statuses
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusCompleted  = "completed"
	OutboxStatusFailed     = "failed"
)

// OutboxEvent event types
const (
	OutboxEventCreated = "created"
	OutboxEventUpdated = "updated"
	OutboxEventDeleted = "deleted"
)

// OutboxEvent is one durable delivery intent, written in the same
// transaction as the data change it describes. The delivery worker is the
// only writer after creation.
type OutboxEvent struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ChangeRequestID int64          `gorm:"not null;index" json:"changeRequestId"`
	EntityType      string         `gorm:"type:varchar(64);not null" json:"entityType"`
	EntityID        string         `gorm:"type:varchar(64);not null" json:"entityId"`
	EventType       string         `gorm:"type:varchar(10);not null" json:"eventType"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	Status          string         `gorm:"type:varchar(15);not null;default:pending;index" json:"status"`
	RetryCount      int            `gorm:"not null;default:0" json:"retryCount"`
	LastError       string         `gorm:"type:text" json:"lastError,omitempty"`
	ProcessedAt     *time.Time     `json:"processedAt,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for OutboxEvent
func (OutboxEvent) TableName() string {
	return "outbox_events"
}
