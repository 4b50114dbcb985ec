package model

import "time"

// ClientVersion describes one released game client build per platform.
type ClientVersion struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform      string    `gorm:"type:varchar(20);not null;index:idx_cv_platform_version" json:"platform"`
	Version       string    `gorm:"type:varchar(32);not null;index:idx_cv_platform_version" json:"version"`
	ForceUpdate   bool      `gorm:"not null;default:false" json:"forceUpdate"`
	DownloadURL   string    `gorm:"type:varchar(512)" json:"downloadUrl"`
	Maintenance   bool      `gorm:"not null;default:false" json:"maintenance"`
	EntityVersion int64     `gorm:"not null;default:1" json:"entityVersion"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for ClientVersion
func (ClientVersion) TableName() string {
	return "client_versions"
}
