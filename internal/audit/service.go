package audit

import (
	"encoding/json"
	"fmt"

	"github.com/maxidea1024/gatrix-sub004/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service writes audit log entries
type Service struct {
	db *gorm.DB
}

// NewService creates a new audit service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record writes one audit entry. Pass a tx to make the entry part of the
// caller's transaction.
func (s *Service) Record(tx *gorm.DB, actorID int, action, targetType, targetID string, details map[string]interface{}) error {
	if tx == nil {
		tx = s.db
	}

	var detailsJSON datatypes.JSON
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		detailsJSON = datatypes.JSON(data)
	}

	entry := model.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    detailsJSON,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
