package entitylock

import (
	"errors"
	"fmt"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckResult is the outcome of a lock check before editing.
type CheckResult struct {
	CanProceed bool   `json:"canProceed"`
	Locked     bool   `json:"locked"`
	HolderID   int    `json:"holderId,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

// Service manages short-TTL advisory editing locks
type Service struct {
	db     *gorm.DB
	ttl    time.Duration
	logger *logrus.Entry
}

// NewService creates a new entity lock service
func NewService(db *gorm.DB, ttl time.Duration, logger *logrus.Entry) *Service {
	return &Service{
		db:     db,
		ttl:    ttl,
		logger: logger.WithField("component", "entity-lock"),
	}
}

// Check inspects the lock state for an entity. Expired locks are reaped on
// read. A soft lock held by someone else only warns; a hard one blocks.
func (s *Service) Check(entityType, entityID, environment string, callerID int) (*CheckResult, error) {
	var lock model.EntityLock
	err := s.db.Where("entity_type = ? AND entity_id = ? AND environment = ?",
		entityType, entityID, environment).First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CheckResult{CanProceed: true}, nil
		}
		return nil, fmt.Errorf("failed to query entity lock: %w", err)
	}

	if lock.Expired(time.Now()) {
		if err := s.db.Delete(&model.EntityLock{}, lock.ID).Error; err != nil {
			s.logger.Warnf("Failed to reap expired lock %d: %v", lock.ID, err)
		}
		return &CheckResult{CanProceed: true}, nil
	}

	if lock.HolderID == callerID {
		return &CheckResult{CanProceed: true, Locked: true, HolderID: lock.HolderID, Kind: lock.Kind}, nil
	}

	if lock.Kind == model.EntityLockKindSoft {
		return &CheckResult{
			CanProceed: true,
			Locked:     true,
			HolderID:   lock.HolderID,
			Kind:       lock.Kind,
			Warning:    fmt.Sprintf("user %d is currently editing this entity", lock.HolderID),
		}, nil
	}

	return &CheckResult{CanProceed: false, Locked: true, HolderID: lock.HolderID, Kind: lock.Kind}, nil
}

// Acquire takes or refreshes a lock. Expired and foreign soft locks are
// replaced (last editor wins); a foreign hard lock blocks acquisition.
// Refreshing one's own lock extends its expiry and may change its kind.
func (s *Service) Acquire(entityType, entityID, environment string, holderID int, kind string) (*model.EntityLock, error) {
	if kind != model.EntityLockKindSoft && kind != model.EntityLockKindHard {
		return nil, httpx.ErrParamInvalid(fmt.Sprintf("unknown lock kind %q", kind))
	}

	var result *model.EntityLock
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		expiresAt := now.Add(s.ttl)

		var lock model.EntityLock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entity_type = ? AND entity_id = ? AND environment = ?",
				entityType, entityID, environment).
			First(&lock).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			lock = model.EntityLock{
				EntityType:  entityType,
				EntityID:    entityID,
				Environment: environment,
				HolderID:    holderID,
				Kind:        kind,
				ExpiresAt:   expiresAt,
			}
			if err := tx.Create(&lock).Error; err != nil {
				return fmt.Errorf("failed to create entity lock: %w", err)
			}
			result = &lock
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query entity lock: %w", err)
		}

		if !lock.Expired(now) && lock.HolderID != holderID && lock.Kind == model.EntityLockKindHard {
			return httpx.ErrResourceLocked(
				fmt.Sprintf("entity is hard-locked by user %d", lock.HolderID))
		}

		// Expired, self-held or foreign soft lock: take it over / refresh.
		updates := map[string]interface{}{
			"holder_id":  holderID,
			"kind":       kind,
			"expires_at": expiresAt,
		}
		if err := tx.Model(&model.EntityLock{}).Where("id = ?", lock.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update entity lock: %w", err)
		}
		lock.HolderID = holderID
		lock.Kind = kind
		lock.ExpiresAt = expiresAt
		result = &lock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Release deletes a lock. When holderID is non-zero the delete is scoped to
// that holder, so callers cannot release someone else's lock.
func (s *Service) Release(entityType, entityID, environment string, holderID int) error {
	query := s.db.Where("entity_type = ? AND entity_id = ? AND environment = ?",
		entityType, entityID, environment)
	if holderID != 0 {
		query = query.Where("holder_id = ?", holderID)
	}
	if err := query.Delete(&model.EntityLock{}).Error; err != nil {
		return fmt.Errorf("failed to release entity lock: %w", err)
	}
	return nil
}

// CleanupExpired deletes all expired locks. Intended to run on one node
// only; the scheduler wrapper takes care of that.
func (s *Service) CleanupExpired() (int64, error) {
	result := s.db.Where("expires_at <= ?", time.Now()).Delete(&model.EntityLock{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired locks: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Infof("Swept %d expired entity locks", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
