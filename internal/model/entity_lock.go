package model

import "time"

// EntityLock kinds
const (
	EntityLockKindSoft = "soft"
	EntityLockKindHard = "hard"
)

// EntityLock is a short-lived advisory editing claim on a row. Soft locks
// warn other editors, hard locks block them. Not tied to any change request;
// expired locks are reaped on read or by the periodic sweep.
type EntityLock struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntityType  string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_entity_lock,priority:1" json:"entityType"`
	EntityID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_entity_lock,priority:2" json:"entityId"`
	Environment string    `gorm:"type:varchar(64);not null;uniqueIndex:uq_entity_lock,priority:3" json:"environment"`
	HolderID    int       `gorm:"not null" json:"holderId"`
	Kind        string    `gorm:"type:varchar(10);not null;default:soft" json:"kind"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expiresAt"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for EntityLock
func (EntityLock) TableName() string {
	return "entity_locks"
}

// Expired reports whether the lock's TTL has passed.
func (l *EntityLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
