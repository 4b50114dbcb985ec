package changereq

import (
	"errors"
	"fmt"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/audit"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
	"github.com/maxidea1024/gatrix-sub004/internal/policy"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the change request aggregate and its state machine. The
// transactional apply/rollback engine lives in Executor.
type Service struct {
	db       *gorm.DB
	registry *Registry
	policy   *policy.Service
	audit    *audit.Service
	logger   *logrus.Entry
	lang     string
}

// NewService creates a new change request service
func NewService(db *gorm.DB, registry *Registry, policySvc *policy.Service, auditSvc *audit.Service, logger *logrus.Entry) *Service {
	return &Service{
		db:       db,
		registry: registry,
		policy:   policySvc,
		audit:    auditSvc,
		logger:   logger.WithField("component", "change-request"),
		lang:     "en",
	}
}

// SetLanguage sets the language used for generated request titles.
func (s *Service) SetLanguage(lang string) {
	s.lang = lang
}

// GetByID returns one change request.
func (s *Service) GetByID(id int64) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	if err := s.db.First(&cr, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.ErrNotFound(fmt.Sprintf("change request %d not found", id))
		}
		return nil, fmt.Errorf("failed to query change request %d: %w", id, err)
	}
	return &cr, nil
}

// ListFilter filters change request listings.
type ListFilter struct {
	Environment string
	Status      string
	RequesterID int
	Page        int
	PageSize    int
}

// List returns change requests newest first.
func (s *Service) List(f ListFilter) ([]model.ChangeRequest, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}

	query := s.db.Model(&model.ChangeRequest{})
	if f.Environment != "" {
		query = query.Where("environment = ?", f.Environment)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.RequesterID != 0 {
		query = query.Where("requester_id = ?", f.RequesterID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count change requests: %w", err)
	}

	var crs []model.ChangeRequest
	if err := query.Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&crs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list change requests: %w", err)
	}
	return crs, total, nil
}

// ListItems returns a request's change items in apply order.
func (s *Service) ListItems(crID int64) ([]model.ChangeItem, error) {
	var items []model.ChangeItem
	if err := s.db.Where("change_request_id = ?", crID).
		Order("action_group_id ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list change items: %w", err)
	}
	return items, nil
}

// ListApprovals returns a request's approvals, oldest first.
func (s *Service) ListApprovals(crID int64) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := s.db.Where("change_request_id = ?", crID).
		Order("id ASC").
		Find(&approvals).Error; err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// ListActionGroups returns a request's action groups in display order.
func (s *Service) ListActionGroups(crID int64) ([]model.ActionGroup, error) {
	var groups []model.ActionGroup
	if err := s.db.Where("change_request_id = ?", crID).
		Order("order_index ASC, id ASC").
		Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list action groups: %w", err)
	}
	return groups, nil
}

// UpsertItemInput describes one row-level edit to stage into a draft.
type UpsertItemInput struct {
	RequesterID     int
	Environment     string
	ChangeRequestID int64 // 0: reuse the requester's draft or create one
	TargetTable     string
	TargetID        string
	Before          ops.Record
	After           ops.Record // partial for updates, nil for deletes
	ActionType      string     // derived from the entity op when empty
	ActionTitle     string
}

// UpsertItem stages one edit into the requester's draft request, creating
// the draft and its action group lazily. A requester with a request already
// out for review must finish that review first.
func (s *Service) UpsertItem(in UpsertItemInput) (*model.ChangeRequest, *model.ChangeItem, error) {
	if _, ok := s.registry.Lookup(in.TargetTable); !ok {
		return nil, nil, httpx.ErrParamInvalid(
			fmt.Sprintf("table %s does not accept managed changes", in.TargetTable))
	}

	entityOp := ops.DetectEntityOp(in.Before, in.After)

	// The patch is computed against the full record, not just the fields
	// the caller sent.
	after := in.After
	if entityOp == ops.EntityUpdate {
		after = ops.Merge(in.Before, in.After)
	}
	fops := ops.Diff(in.Before, after)
	if len(fops) == 0 && entityOp == ops.EntityUpdate {
		return nil, nil, httpx.ErrParamInvalid("no effective changes")
	}

	opsJSON, err := ops.EncodeOps(fops)
	if err != nil {
		return nil, nil, err
	}
	beforeJSON, err := ops.EncodeRecord(in.Before)
	if err != nil {
		return nil, nil, err
	}

	var cr model.ChangeRequest
	var item model.ChangeItem

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// A request pending review blocks further edits by the same user
		// in that environment.
		var pending int64
		if err := tx.Model(&model.ChangeRequest{}).
			Where("requester_id = ? AND environment = ? AND status = ?",
				in.RequesterID, in.Environment, model.ChangeRequestStatusOpen).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		if pending > 0 {
			return httpx.ErrStateConflict("you have a change request pending review in this environment; finish that review first")
		}

		if err := s.resolveDraft(tx, in, &cr); err != nil {
			return err
		}

		group, err := s.resolveActionGroup(tx, cr.ID, actionTypeFor(in.ActionType, entityOp), in.ActionTitle)
		if err != nil {
			return err
		}

		// One item per (request, table, row); editing the same row again
		// replaces its patch.
		err = tx.Where("change_request_id = ? AND target_table = ? AND target_id = ?",
			cr.ID, in.TargetTable, in.TargetID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = model.ChangeItem{
				ChangeRequestID: cr.ID,
				ActionGroupID:   group.ID,
				TargetTable:     in.TargetTable,
				TargetID:        in.TargetID,
				EntityOp:        string(entityOp),
				Ops:             opsJSON,
				BeforeData:      beforeJSON,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to create change item: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to query change item: %w", err)
		default:
			item.EntityOp = string(entityOp)
			item.Ops = opsJSON
			item.BeforeData = beforeJSON
			if err := tx.Save(&item).Error; err != nil {
				return fmt.Errorf("failed to update change item: %w", err)
			}
		}

		return s.refreshTitle(tx, &cr, in.ActionTitle)
	})
	if err != nil {
		return nil, nil, err
	}
	return &cr, &item, nil
}

// resolveDraft locks and returns the target draft, creating it when the
// requester has none. Guards the one-draft-per-(requester, environment)
// invariant under concurrency.
func (s *Service) resolveDraft(tx *gorm.DB, in UpsertItemInput, cr *model.ChangeRequest) error {
	if in.ChangeRequestID != 0 {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(cr, in.ChangeRequestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return httpx.ErrNotFound(fmt.Sprintf("change request %d not found", in.ChangeRequestID))
			}
			return fmt.Errorf("failed to load change request: %w", err)
		}
		if cr.RequesterID != in.RequesterID {
			return httpx.ErrForbidden("only the requester may edit this draft")
		}
		if cr.Status != model.ChangeRequestStatusDraft {
			return httpx.ErrStateConflict("change request is no longer a draft")
		}
		return nil
	}

	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("requester_id = ? AND environment = ? AND status = ?",
			in.RequesterID, in.Environment, model.ChangeRequestStatusDraft).
		First(cr).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load draft: %w", err)
	}

	*cr = model.ChangeRequest{
		RequesterID: in.RequesterID,
		Environment: in.Environment,
		Status:      model.ChangeRequestStatusDraft,
		Type:        model.ChangeRequestTypeNormal,
		Title:       in.ActionTitle,
	}
	if err := tx.Create(cr).Error; err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func actionTypeFor(explicit string, entityOp ops.EntityOp) string {
	if explicit != "" {
		return explicit
	}
	switch entityOp {
	case ops.EntityCreate:
		return model.ActionTypeCreateEntity
	case ops.EntityDelete:
		return model.ActionTypeDeleteEntity
	default:
		return model.ActionTypeUpdateEntity
	}
}

// resolveActionGroup finds or lazily creates the group for an action type.
func (s *Service) resolveActionGroup(tx *gorm.DB, crID int64, actionType, title string) (*model.ActionGroup, error) {
	var group model.ActionGroup
	err := tx.Where("change_request_id = ? AND action_type = ?", crID, actionType).
		First(&group).Error
	if err == nil {
		return &group, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query action group: %w", err)
	}

	var count int64
	if err := tx.Model(&model.ActionGroup{}).
		Where("change_request_id = ?", crID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count action groups: %w", err)
	}

	group = model.ActionGroup{
		ChangeRequestID: crID,
		ActionType:      actionType,
		Title:           title,
		OrderIndex:      int(count),
	}
	if err := tx.Create(&group).Error; err != nil {
		return nil, fmt.Errorf("failed to create action group: %w", err)
	}
	return &group, nil
}

// refreshTitle regenerates the summary title once the draft holds more than
// one item.
func (s *Service) refreshTitle(tx *gorm.DB, cr *model.ChangeRequest, fallback string) error {
	type tableCount struct {
		TargetTable string
		N           int
	}
	var counts []tableCount
	if err := tx.Model(&model.ChangeItem{}).
		Select("target_table, COUNT(*) AS n").
		Where("change_request_id = ?", cr.ID).
		Group("target_table").
		Scan(&counts).Error; err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}

	total := 0
	byTable := make(map[string]int, len(counts))
	for _, c := range counts {
		byTable[c.TargetTable] = c.N
		total += c.N
	}

	title := cr.Title
	if total > 1 {
		title = SummaryTitle(s.lang, byTable)
	} else if title == "" {
		title = fallback
	}
	if title == cr.Title {
		return nil
	}

	if err := tx.Model(&model.ChangeRequest{}).Where("id = ?", cr.ID).
		Update("title", title).Error; err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	cr.Title = title
	return nil
}

// Submit moves a draft out for review, capturing each existing target row's
// live concurrency token as the optimistic baseline.
func (s *Service) Submit(crID int64, actorID int) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, crID, &cr); err != nil {
			return err
		}
		if cr.RequesterID != actorID {
			return httpx.ErrForbidden("only the requester may submit this draft")
		}
		if cr.Status != model.ChangeRequestStatusDraft {
			return httpx.ErrStateConflict("only draft requests can be submitted")
		}
		if cr.Title == "" {
			return httpx.ErrParamMissing("a title is required before submitting")
		}

		var items []model.ChangeItem
		if err := tx.Where("change_request_id = ?", crID).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}
		if len(items) == 0 {
			return httpx.ErrParamInvalid("cannot submit an empty change request")
		}

		for i := range items {
			item := &items[i]
			if item.IsNewRow() {
				continue
			}
			accessor, ok := s.registry.Lookup(item.TargetTable)
			if !ok || !accessor.HasToken() {
				continue
			}
			token, err := accessor.ReadToken(tx, item.TargetID)
			if err != nil {
				return err
			}
			if err := tx.Model(&model.ChangeItem{}).Where("id = ?", item.ID).
				Update("entity_version", token).Error; err != nil {
				return fmt.Errorf("failed to capture baseline token: %w", err)
			}
		}

		return s.setStatus(tx, &cr, model.ChangeRequestStatusOpen)
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Approve records one reviewer's vote and flips the request to approved
// once the environment's threshold is met. Counting happens inside the
// transaction so two concurrent approvals cannot both see a stale count.
func (s *Service) Approve(crID int64, approverID int, comment string) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, crID, &cr); err != nil {
			return err
		}
		if cr.Status != model.ChangeRequestStatusOpen {
			return httpx.ErrStateConflict("only open requests can be approved")
		}

		var existing int64
		if err := tx.Model(&model.Approval{}).
			Where("change_request_id = ? AND approver_id = ?", crID, approverID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing approval: %w", err)
		}
		if existing > 0 {
			return httpx.ErrDuplicateApproval("")
		}

		approval := model.Approval{
			ChangeRequestID: crID,
			ApproverID:      approverID,
			Comment:         comment,
		}
		if err := tx.Create(&approval).Error; err != nil {
			return fmt.Errorf("failed to record approval: %w", err)
		}

		var count int64
		if err := tx.Model(&model.Approval{}).
			Where("change_request_id = ?", crID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count approvals: %w", err)
		}

		required := 1
		if pol, err := s.policy.GetApprovalPolicy(cr.Environment); err == nil {
			required = pol.RequiredApprovers
		} else {
			s.logger.Warnf("Approval policy unavailable for %s, falling back to 1: %v", cr.Environment, err)
		}

		if count >= int64(required) {
			return s.setStatus(tx, &cr, model.ChangeRequestStatusApproved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Reject turns down an open or approved request. The comment is mandatory.
func (s *Service) Reject(crID int64, actorID int, reason string) (*model.ChangeRequest, error) {
	if reason == "" {
		return nil, httpx.ErrParamMissing("a rejection reason is required")
	}

	var cr model.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, crID, &cr); err != nil {
			return err
		}
		if cr.Status != model.ChangeRequestStatusOpen && cr.Status != model.ChangeRequestStatusApproved {
			return httpx.ErrStateConflict("only open or approved requests can be rejected")
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":        model.ChangeRequestStatusRejected,
			"rejected_by":   actorID,
			"rejected_at":   now,
			"reject_reason": reason,
		}
		if err := tx.Model(&model.ChangeRequest{}).Where("id = ?", crID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to reject change request: %w", err)
		}
		cr.Status = model.ChangeRequestStatusRejected
		cr.RejectedBy = &actorID
		cr.RejectedAt = &now
		cr.RejectReason = reason

		return s.audit.Record(tx, actorID, model.AuditActionReject,
			"change_request", fmt.Sprintf("%d", crID),
			map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Reopen returns a rejected or conflicted request to draft. Only the
// requester or an administrator may do so, approvals do not carry over, and
// the requester must not already have another draft or pending request in
// the environment.
func (s *Service) Reopen(crID int64, actorID int, isAdmin bool) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, crID, &cr); err != nil {
			return err
		}
		if cr.Status != model.ChangeRequestStatusRejected && cr.Status != model.ChangeRequestStatusConflict {
			return httpx.ErrStateConflict("only rejected or conflicted requests can be reopened")
		}
		if cr.RequesterID != actorID && !isAdmin {
			return httpx.ErrForbidden("only the requester or an administrator may reopen this request")
		}

		var active int64
		if err := tx.Model(&model.ChangeRequest{}).
			Where("requester_id = ? AND environment = ? AND id <> ? AND status IN ?",
				cr.RequesterID, cr.Environment, crID,
				[]string{model.ChangeRequestStatusDraft, model.ChangeRequestStatusOpen}).
			Count(&active).Error; err != nil {
			return fmt.Errorf("failed to check active requests: %w", err)
		}
		if active > 0 {
			return httpx.ErrStateConflict("requester already has an active request in this environment")
		}

		if err := tx.Where("change_request_id = ?", crID).
			Delete(&model.Approval{}).Error; err != nil {
			return fmt.Errorf("failed to clear approvals: %w", err)
		}

		updates := map[string]interface{}{
			"status":          model.ChangeRequestStatusDraft,
			"conflict_reason": "",
		}
		if err := tx.Model(&model.ChangeRequest{}).Where("id = ?", crID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to reopen change request: %w", err)
		}
		cr.Status = model.ChangeRequestStatusDraft
		cr.ConflictReason = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Cleanup bulk-deletes rejected requests older than the retention window,
// together with their items, groups and approvals.
func (s *Service) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	var ids []int64
	if err := s.db.Model(&model.ChangeRequest{}).
		Where("status = ? AND updated_at < ?", model.ChangeRequestStatusRejected, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale rejected requests: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("change_request_id IN ?", ids).Delete(&model.Approval{}).Error; err != nil {
			return fmt.Errorf("failed to delete approvals: %w", err)
		}
		if err := tx.Where("change_request_id IN ?", ids).Delete(&model.ChangeItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
		if err := tx.Where("change_request_id IN ?", ids).Delete(&model.ActionGroup{}).Error; err != nil {
			return fmt.Errorf("failed to delete action groups: %w", err)
		}
		if err := tx.Delete(&model.ChangeRequest{}, ids).Error; err != nil {
			return fmt.Errorf("failed to delete change requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infof("Cleaned up %d rejected change requests", len(ids))
	return int64(len(ids)), nil
}

// lockRequest loads a request under a row lock inside tx.
func lockRequest(tx *gorm.DB, crID int64, cr *model.ChangeRequest) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(cr, crID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.ErrNotFound(fmt.Sprintf("change request %d not found", crID))
	}
	if err != nil {
		return fmt.Errorf("failed to load change request %d: %w", crID, err)
	}
	return nil
}

func (s *Service) setStatus(tx *gorm.DB, cr *model.ChangeRequest, status string) error {
	if err := tx.Model(&model.ChangeRequest{}).Where("id = ?", cr.ID).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	cr.Status = status
	return nil
}
