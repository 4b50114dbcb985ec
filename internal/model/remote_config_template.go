package model

import (
	"time"

	"gorm.io/datatypes"
)

// RemoteConfigTemplate is a remote-config entry served to game clients.
type RemoteConfigTemplate struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ConfigKey     string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"configKey"`
	Description   string         `gorm:"type:varchar(255)" json:"description"`
	ValueType     string         `gorm:"type:varchar(20);not null;default:string" json:"valueType"`
	Value         datatypes.JSON `gorm:"type:json" json:"value,omitempty"`
	Enabled       bool           `gorm:"not null;default:true" json:"enabled"`
	EntityVersion int64          `gorm:"not null;default:1" json:"entityVersion"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for RemoteConfigTemplate
func (RemoteConfigTemplate) TableName() string {
	return "remote_config_templates"
}
