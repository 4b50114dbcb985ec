package model

import "time"

// Environment is a deployment environment (dev/qa/staging/production) with
// its change approval policy. Read-only input to the change request engine.
type Environment struct {
	ID                int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	DisplayName       string    `gorm:"type:varchar(128)" json:"displayName"`
	RequiresApproval  bool      `gorm:"not null;default:false" json:"requiresApproval"`
	RequiredApprovers int       `gorm:"not null;default:1" json:"requiredApprovers"`
	StrictConflict    bool      `gorm:"not null;default:true" json:"strictConflict"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for Environment
func (Environment) TableName() string {
	return "environments"
}
