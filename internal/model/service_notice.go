package model

import "time"

// ServiceNotice is an in-game service notice. The table carries no
// concurrency token column; conflict detection for it falls back to a
// structural comparison of the captured snapshot against the live row.
type ServiceNotice struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string     `gorm:"type:varchar(255);not null" json:"title"`
	Body      string     `gorm:"type:text" json:"body"`
	Level     string     `gorm:"type:varchar(20);not null;default:info" json:"level"`
	StartsAt  *time.Time `json:"startsAt,omitempty"`
	EndsAt    *time.Time `json:"endsAt,omitempty"`
	Enabled   bool       `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for ServiceNotice
func (ServiceNotice) TableName() string {
	return "service_notices"
}
