package model

import "time"

// Approval is one reviewer's vote on a change request. Unique per
// (change request, approver).
type Approval struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChangeRequestID int64     `gorm:"not null;uniqueIndex:uq_approval,priority:1" json:"changeRequestId"`
	ApproverID      int       `gorm:"not null;uniqueIndex:uq_approval,priority:2" json:"approverId"`
	Comment         string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for Approval
func (Approval) TableName() string {
	return "change_request_approvals"
}
