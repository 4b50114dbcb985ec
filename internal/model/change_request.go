package model

import "time"

// ChangeRequest statuses
const (
	ChangeRequestStatusDraft    = "draft"
	ChangeRequestStatusOpen     = "open"
	ChangeRequestStatusApproved = "approved"
	ChangeRequestStatusRejected = "rejected"
	ChangeRequestStatusApplied  = "applied"
	ChangeRequestStatusConflict = "conflict"
)

// ChangeRequest types
const (
	ChangeRequestTypeNormal = "normal"
	ChangeRequestTypeRevert = "revert"
)

// ChangeRequest is one reviewable unit of work: a bundle of field-level edits
// across one or more rows, moving through draft -> open -> approved -> applied.
// At most one draft exists per (requester, environment).
type ChangeRequest struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID    int        `gorm:"not null;index:idx_cr_requester_env" json:"requesterId"`
	Environment    string     `gorm:"type:varchar(64);not null;index:idx_cr_requester_env" json:"environment"`
	Status         string     `gorm:"type:varchar(20);not null;default:draft;index" json:"status"`
	Type           string     `gorm:"type:varchar(20);not null;default:normal" json:"type"`
	Title          string     `gorm:"type:varchar(255)" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Reason         string     `gorm:"type:text" json:"reason"`
	Impact         string     `gorm:"type:varchar(255)" json:"impact"`
	Priority       string     `gorm:"type:varchar(20)" json:"priority"`
	Category       string     `gorm:"type:varchar(64)" json:"category"`
	ConflictReason string     `gorm:"type:text" json:"conflictReason,omitempty"`
	RejectedBy     *int       `json:"rejectedBy,omitempty"`
	RejectedAt     *time.Time `json:"rejectedAt,omitempty"`
	RejectReason   string     `gorm:"type:text" json:"rejectReason,omitempty"`
	ExecutedBy     *int       `json:"executedBy,omitempty"`
	ExecutedAt     *time.Time `json:"executedAt,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for ChangeRequest
func (ChangeRequest) TableName() string {
	return "change_requests"
}

// IsActive reports whether the request still blocks its target rows
// (draft requests do not, they only bind the requester).
func (cr *ChangeRequest) IsActive() bool {
	return cr.Status == ChangeRequestStatusOpen || cr.Status == ChangeRequestStatusApproved
}
