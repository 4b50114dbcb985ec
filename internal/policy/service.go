package policy

import (
	"errors"
	"fmt"

	"github.com/maxidea1024/gatrix-sub004/internal/model"

	"gorm.io/gorm"
)

// ApprovalPolicy is an environment's change approval policy.
type ApprovalPolicy struct {
	RequiresApproval  bool
	RequiredApprovers int
	StrictConflict    bool
}

// Service reads per-environment approval policies
type Service struct {
	db *gorm.DB
}

// NewService creates a new policy service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetApprovalPolicy returns the approval policy for an environment. An
// unknown environment gets the safe default: approval required, one
// approver, strict conflict handling.
func (s *Service) GetApprovalPolicy(environment string) (*ApprovalPolicy, error) {
	var env model.Environment
	if err := s.db.Where("name = ?", environment).First(&env).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ApprovalPolicy{
				RequiresApproval:  true,
				RequiredApprovers: 1,
				StrictConflict:    true,
			}, nil
		}
		return nil, fmt.Errorf("failed to query environment %s: %w", environment, err)
	}

	required := env.RequiredApprovers
	if required < 1 {
		required = 1
	}

	return &ApprovalPolicy{
		RequiresApproval:  env.RequiresApproval,
		RequiredApprovers: required,
		StrictConflict:    env.StrictConflict,
	}, nil
}
