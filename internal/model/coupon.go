package model

import (
	"time"

	"gorm.io/datatypes"
)

// Coupon is a redeemable game coupon campaign. Rows are mutated through the
// change request engine; EntityVersion is the optimistic concurrency token.
type Coupon struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Code           string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name           string         `gorm:"type:varchar(128);not null" json:"name"`
	Rewards        datatypes.JSON `gorm:"type:json" json:"rewards,omitempty"`
	MaxRedemptions int            `gorm:"not null;default:0" json:"maxRedemptions"`
	StartsAt       *time.Time     `json:"startsAt,omitempty"`
	EndsAt         *time.Time     `json:"endsAt,omitempty"`
	Enabled        bool           `gorm:"not null;default:true" json:"enabled"`
	EntityVersion  int64          `gorm:"not null;default:1" json:"entityVersion"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}
