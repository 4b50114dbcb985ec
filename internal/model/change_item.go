package model

import (
	"time"

	"gorm.io/datatypes"
)

// ChangeItem entity operation kinds
const (
	EntityOpCreate = "CREATE"
	EntityOpUpdate = "UPDATE"
	EntityOpDelete = "DELETE"
)

// ChangeItem is one target row's patch inside a change request. Ops holds the
// versioned field-op list, BeforeData the snapshot the patch was computed
// against. EntityVersion is the optimistic concurrency token captured at
// submission time (nil for new rows and token-less tables).
//
// Unique per (change request, target table, target id). Mutable while the
// owning request is draft; after submission only TargetID may be rewritten,
// when a CREATE item's placeholder id is replaced by the real row id.
type ChangeItem struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ChangeRequestID int64          `gorm:"not null;uniqueIndex:uq_item_target,priority:1;index" json:"changeRequestId"`
	ActionGroupID   int64          `gorm:"not null;index" json:"actionGroupId"`
	TargetTable     string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_item_target,priority:2" json:"targetTable"`
	TargetID        string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_item_target,priority:3" json:"targetId"`
	EntityOp        string         `gorm:"type:varchar(10);not null" json:"entityOp"`
	Ops             datatypes.JSON `gorm:"type:json" json:"ops"`
	BeforeData      datatypes.JSON `gorm:"type:json" json:"beforeData,omitempty"`
	EntityVersion   *int64         `json:"entityVersion,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for ChangeItem
func (ChangeItem) TableName() string {
	return "change_request_items"
}

// IsNewRow reports whether the item targets a row that does not exist yet.
func (ci *ChangeItem) IsNewRow() bool {
	return ci.EntityOp == EntityOpCreate
}
