package db

import (
	"fmt"
	"log"

	"github.com/maxidea1024/gatrix-sub004/internal/model"

	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	// List of all models to migrate
	models := []interface{}{
		&model.User{},
		&model.Environment{},
		&model.ChangeRequest{},
		&model.ActionGroup{},
		&model.ChangeItem{},
		&model.Approval{},
		&model.EntityLock{},
		&model.OutboxEvent{},
		&model.AuditLog{},
		&model.Coupon{},
		&model.RemoteConfigTemplate{},
		&model.ClientVersion{},
		&model.ServiceNotice{},
	}

	// Run AutoMigrate for all models
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
