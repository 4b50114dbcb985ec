package model

import "time"

// ActionGroup action types
const (
	ActionTypeCreateEntity = "CREATE_ENTITY"
	ActionTypeUpdateEntity = "UPDATE_ENTITY"
	ActionTypeDeleteEntity = "DELETE_ENTITY"
	ActionTypeToggleFlag   = "TOGGLE_FLAG"
	ActionTypeUpdateRule   = "UPDATE_RULE"
	ActionTypeBatchUpdate  = "BATCH_UPDATE"
	ActionTypeRevert       = "REVERT"
)

// ActionGroup groups the change items of one semantic user action inside a
// change request (e.g. "Create service notice"). Created lazily when the
// first item of its action type is added.
type ActionGroup struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChangeRequestID int64     `gorm:"not null;index" json:"changeRequestId"`
	ActionType      string    `gorm:"type:varchar(32);not null" json:"actionType"`
	Title           string    `gorm:"type:varchar(255)" json:"title"`
	OrderIndex      int       `gorm:"not null;default:0" json:"orderIndex"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for ActionGroup
func (ActionGroup) TableName() string {
	return "change_request_action_groups"
}
