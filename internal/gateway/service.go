package gateway

import (
	"context"
	"fmt"

	"github.com/maxidea1024/gatrix-sub004/internal/changereq"
	"github.com/maxidea1024/gatrix-sub004/internal/effects"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
	"github.com/maxidea1024/gatrix-sub004/internal/outbox"
	"github.com/maxidea1024/gatrix-sub004/internal/policy"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Routing outcomes.
const (
	StatusDirect = "direct" // applied immediately
	StatusRouted = "routed" // staged into a change request draft
)

// Service is the single entry point for writes to managed tables. Based on
// the environment's approval policy a write either applies immediately or
// is staged into the caller's draft change request.
type Service struct {
	db       *gorm.DB
	registry *changereq.Registry
	policy   *policy.Service
	requests *changereq.Service
	effects  *effects.Registry
	logger   *logrus.Entry
}

// NewService creates a new gateway service
func NewService(db *gorm.DB, registry *changereq.Registry, policySvc *policy.Service, requests *changereq.Service, effectsReg *effects.Registry, logger *logrus.Entry) *Service {
	return &Service{
		db:       db,
		registry: registry,
		policy:   policySvc,
		requests: requests,
		effects:  effectsReg,
		logger:   logger.WithField("component", "change-gateway"),
	}
}

// Mutation is one requested write against a managed table.
type Mutation struct {
	ActorID     int
	Environment string
	Table       string
	TargetID    string     // empty for creates
	Data        ops.Record // full row for creates, changed fields for updates, ignored for deletes
	ActionType  string     // set by Modify, derived from the operation otherwise
	ActionTitle string
}

// Result reports where a mutation went.
type Result struct {
	Status          string     `json:"status"`
	ChangeRequestID int64      `json:"changeRequestId,omitempty"`
	TargetID        string     `json:"targetId,omitempty"`
	Record          ops.Record `json:"record,omitempty"`
}

// Create routes a row creation.
func (s *Service) Create(ctx context.Context, m Mutation) (*Result, error) {
	if len(m.Data) == 0 {
		return nil, httpx.ErrParamMissing("data is required")
	}
	return s.route(ctx, m, ops.EntityCreate)
}

// Update routes a row update.
func (s *Service) Update(ctx context.Context, m Mutation) (*Result, error) {
	if m.TargetID == "" {
		return nil, httpx.ErrParamMissing("target id is required")
	}
	if len(m.Data) == 0 {
		return nil, httpx.ErrParamMissing("data is required")
	}
	return s.route(ctx, m, ops.EntityUpdate)
}

// Delete routes a row deletion.
func (s *Service) Delete(ctx context.Context, m Mutation) (*Result, error) {
	if m.TargetID == "" {
		return nil, httpx.ErrParamMissing("target id is required")
	}
	return s.route(ctx, m, ops.EntityDelete)
}

// Valid action types for Modify.
var modifyActions = map[string]bool{
	model.ActionTypeToggleFlag:  true,
	model.ActionTypeUpdateRule:  true,
	model.ActionTypeBatchUpdate: true,
}

// Modify routes a named partial update, e.g. toggling a flag or editing a
// rule. It behaves like Update but the staged action group carries the
// caller's action type instead of the generic update one.
func (s *Service) Modify(ctx context.Context, m Mutation) (*Result, error) {
	if m.TargetID == "" {
		return nil, httpx.ErrParamMissing("target id is required")
	}
	if len(m.Data) == 0 {
		return nil, httpx.ErrParamMissing("data is required")
	}
	if !modifyActions[m.ActionType] {
		return nil, httpx.ErrParamInvalid(fmt.Sprintf("unknown action type %q", m.ActionType))
	}
	return s.route(ctx, m, ops.EntityUpdate)
}

func (s *Service) route(ctx context.Context, m Mutation, op ops.EntityOp) (*Result, error) {
	accessor, ok := s.registry.Lookup(m.Table)
	if !ok {
		return nil, httpx.ErrParamInvalid(fmt.Sprintf("table %s does not accept managed changes", m.Table))
	}

	var live ops.Record
	if op != ops.EntityCreate {
		var err error
		live, err = accessor.Read(s.db, m.TargetID)
		if err != nil {
			return nil, err
		}
		if live == nil {
			return nil, httpx.ErrNotFound(fmt.Sprintf("%s/%s not found", m.Table, m.TargetID))
		}
		if err := s.checkActiveRequests(m.Table, m.TargetID, m.Environment); err != nil {
			return nil, err
		}
	}

	pol, err := s.policy.GetApprovalPolicy(m.Environment)
	if err != nil {
		return nil, err
	}
	if !pol.RequiresApproval {
		return s.applyDirect(ctx, m, op, accessor, live)
	}
	return s.stage(m, op, live)
}

// checkActiveRequests rejects a write whose target row is already claimed
// by someone's request that is out for review or approved. Draft items do
// not block.
func (s *Service) checkActiveRequests(table, targetID, environment string) error {
	var crID int64
	err := s.db.Model(&model.ChangeItem{}).
		Select("change_request_items.change_request_id").
		Joins("JOIN change_requests ON change_requests.id = change_request_items.change_request_id").
		Where("change_request_items.target_table = ? AND change_request_items.target_id = ?", table, targetID).
		Where("change_requests.environment = ? AND change_requests.status IN ?",
			environment, []string{model.ChangeRequestStatusOpen, model.ChangeRequestStatusApproved}).
		Limit(1).
		Scan(&crID).Error
	if err != nil {
		return fmt.Errorf("failed to check active requests: %w", err)
	}
	if crID != 0 {
		return httpx.ErrResourceLocked(fmt.Sprintf("row is referenced by change request #%d awaiting execution", crID))
	}
	return nil
}

// applyDirect writes immediately, inside one transaction together with its
// outbox events, then runs post-commit effects.
func (s *Service) applyDirect(ctx context.Context, m Mutation, op ops.EntityOp, accessor *changereq.Accessor, live ops.Record) (*Result, error) {
	res := &Result{Status: StatusDirect, TargetID: m.TargetID}
	var after ops.Record

	err := s.db.Transaction(func(tx *gorm.DB) error {
		switch op {
		case ops.EntityCreate:
			newID, err := accessor.Insert(tx, m.Data)
			if err != nil {
				return err
			}
			res.TargetID = newID
			after = ops.Merge(m.Data, ops.Record{"id": newID})

		case ops.EntityDelete:
			token, err := accessor.ReadToken(tx, m.TargetID)
			if err != nil {
				return err
			}
			affected, err := accessor.Delete(tx, m.TargetID, token)
			if err != nil {
				return err
			}
			if affected == 0 {
				return httpx.ErrDataConflict("row changed concurrently, retry the delete")
			}

		default:
			current, err := accessor.ReadForUpdate(tx, m.TargetID)
			if err != nil {
				return err
			}
			if current == nil {
				return httpx.ErrNotFound(fmt.Sprintf("%s/%s not found", m.Table, m.TargetID))
			}
			token, err := accessor.TokenFromRecord(current)
			if err != nil {
				return err
			}
			after = ops.Merge(current, m.Data)
			affected, err := accessor.Update(tx, m.TargetID, after, token)
			if err != nil {
				return err
			}
			if affected == 0 {
				return httpx.ErrDataConflict("row changed concurrently, retry the update")
			}
			live = current
		}

		events := outbox.Classify([]outbox.Change{{
			Table: m.Table, ID: res.TargetID, Op: op, Before: live, After: after,
		}})
		return outbox.RecordBatch(tx, 0, events)
	})
	if err != nil {
		return nil, err
	}

	res.Record = after
	if handler, ok := s.effects.Get(m.Table); ok {
		var effAfter ops.Record
		if op != ops.EntityDelete {
			effAfter = after
		}
		if err := handler.Apply(ctx, res.TargetID, effAfter, m.Environment, m.ActorID); err != nil {
			s.logger.Errorf("Effect handler for %s/%s failed after direct write: %v",
				m.Table, res.TargetID, err)
		}
	}
	return res, nil
}

// stage records the mutation into the caller's draft change request.
func (s *Service) stage(m Mutation, op ops.EntityOp, live ops.Record) (*Result, error) {
	targetID := m.TargetID
	after := m.Data
	if op == ops.EntityCreate {
		targetID = changereq.NewRowPlaceholder()
	}
	if op == ops.EntityDelete {
		after = nil
	}

	cr, item, err := s.requests.UpsertItem(changereq.UpsertItemInput{
		RequesterID: m.ActorID,
		Environment: m.Environment,
		TargetTable: m.Table,
		TargetID:    targetID,
		Before:      live,
		After:       after,
		ActionType:  m.ActionType,
		ActionTitle: m.ActionTitle,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:          StatusRouted,
		ChangeRequestID: cr.ID,
		TargetID:        item.TargetID,
	}, nil
}
