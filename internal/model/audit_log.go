package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog actions recorded by the change request engine
const (
	AuditActionReject  = "change_request.reject"
	AuditActionExecute = "change_request.execute"
	AuditActionRevert  = "change_request.revert"
)

// AuditLog records who did what to which resource.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID    int            `gorm:"not null;index" json:"actorId"`
	Action     string         `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string         `gorm:"type:varchar(64);not null" json:"targetType"`
	TargetID   string         `gorm:"type:varchar(64);not null" json:"targetId"`
	Details    datatypes.JSON `gorm:"type:json" json:"details,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
