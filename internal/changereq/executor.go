package changereq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/audit"
	"github.com/maxidea1024/gatrix-sub004/internal/effects"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
	"github.com/maxidea1024/gatrix-sub004/internal/outbox"
	"github.com/maxidea1024/gatrix-sub004/internal/policy"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// placeholderPrefix marks a target id for a row that does not exist yet.
// The real id is minted at apply time and written back onto the item.
const placeholderPrefix = "new:"

// NewRowPlaceholder returns a fresh placeholder target id for a create item.
func NewRowPlaceholder() string {
	return placeholderPrefix + uuid.NewString()
}

// Executor applies approved change requests inside a single transaction,
// with per-item conflict detection against the live rows.
type Executor struct {
	db       *gorm.DB
	registry *Registry
	policy   *policy.Service
	audit    *audit.Service
	effects  *effects.Registry
	logger   *logrus.Entry
}

// NewExecutor creates a new executor
func NewExecutor(db *gorm.DB, registry *Registry, policySvc *policy.Service, auditSvc *audit.Service, effectsReg *effects.Registry, logger *logrus.Entry) *Executor {
	return &Executor{
		db:       db,
		registry: registry,
		policy:   policySvc,
		audit:    auditSvc,
		effects:  effectsReg,
		logger:   logger.WithField("component", "change-executor"),
	}
}

// conflictAbort aborts the apply transaction so nothing partial survives.
// The request is marked conflicted after rollback.
type conflictAbort struct {
	reason string
}

func (e *conflictAbort) Error() string { return e.reason }

// appliedEffect is a post-commit handler invocation queued during the
// transaction.
type appliedEffect struct {
	table    string
	entityID string
	after    ops.Record // nil for deletions
}

// Execute applies an approved request. Under a strict-conflict environment
// any diverged row aborts the whole batch and flips the request to the
// conflict state. Under a lenient one the divergence is logged and the item
// is applied over the live row anyway, so untouched fields keep their live
// values; only items whose row vanished entirely are skipped.
func (e *Executor) Execute(ctx context.Context, crID int64, actorID int) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	var pendingEffects []appliedEffect

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, crID, &cr); err != nil {
			return err
		}
		if cr.Status != model.ChangeRequestStatusApproved {
			return httpx.ErrStateConflict("only approved requests can be executed")
		}

		strict := true
		if pol, err := e.policy.GetApprovalPolicy(cr.Environment); err == nil {
			strict = pol.StrictConflict
		}

		var items []model.ChangeItem
		if err := tx.Where("change_request_id = ?", crID).
			Order("action_group_id ASC, id ASC").
			Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}

		var changes []outbox.Change
		overridden := 0
		skipped := 0

		for i := range items {
			item := &items[i]
			change, diverged, err := e.applyItem(tx, item, strict)
			if err != nil {
				return err
			}
			if change == nil {
				skipped++
				continue
			}
			if diverged {
				overridden++
			}
			changes = append(changes, *change)
			if e.effects.Has(change.Table) {
				pendingEffects = append(pendingEffects, appliedEffect{
					table:    change.Table,
					entityID: change.ID,
					after:    change.After,
				})
			}
		}

		if err := outbox.RecordBatch(tx, crID, outbox.Classify(changes)); err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&model.ChangeRequest{}).Where("id = ?", crID).
			Updates(map[string]interface{}{
				"status":      model.ChangeRequestStatusApplied,
				"executed_by": actorID,
				"executed_at": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to mark request applied: %w", err)
		}
		cr.Status = model.ChangeRequestStatusApplied
		cr.ExecutedBy = &actorID
		cr.ExecutedAt = &now

		return e.audit.Record(tx, actorID, model.AuditActionExecute,
			"change_request", fmt.Sprintf("%d", crID),
			map[string]interface{}{"items": len(items), "overridden": overridden, "skipped": skipped})
	})

	var abort *conflictAbort
	if errors.As(err, &abort) {
		// The transaction rolled back; record the conflict outside it so
		// the marker survives.
		if merr := e.db.Model(&model.ChangeRequest{}).Where("id = ?", crID).
			Updates(map[string]interface{}{
				"status":          model.ChangeRequestStatusConflict,
				"conflict_reason": abort.reason,
			}).Error; merr != nil {
			e.logger.Errorf("Failed to mark request %d conflicted: %v", crID, merr)
		}
		return nil, httpx.ErrDataConflict(abort.reason)
	}
	if err != nil {
		return nil, err
	}

	e.runEffects(ctx, &cr, actorID, pendingEffects)
	return &cr, nil
}

// applyItem applies one row mutation. The diverged flag reports that the
// live row no longer matched the captured snapshot but was written anyway
// under the lenient policy. A nil change with a nil error means the item was
// skipped because its target row no longer exists.
func (e *Executor) applyItem(tx *gorm.DB, item *model.ChangeItem, strict bool) (*outbox.Change, bool, error) {
	accessor, ok := e.registry.Lookup(item.TargetTable)
	if !ok {
		return nil, false, httpx.ErrInternalError(
			fmt.Sprintf("table %s is not registered for managed changes", item.TargetTable), nil)
	}

	fops, err := ops.DecodeOps(item.Ops)
	if err != nil {
		return nil, false, err
	}
	before, err := ops.DecodeRecord(item.BeforeData)
	if err != nil {
		return nil, false, err
	}

	switch item.EntityOp {
	case string(ops.EntityCreate):
		desired := ops.Apply(nil, fops, ops.EntityCreate)
		newID, err := accessor.Insert(tx, desired)
		if err != nil {
			return nil, false, err
		}
		if strings.HasPrefix(item.TargetID, placeholderPrefix) {
			if err := tx.Model(&model.ChangeItem{}).Where("id = ?", item.ID).
				Update("target_id", newID).Error; err != nil {
				return nil, false, fmt.Errorf("failed to rewrite placeholder id: %w", err)
			}
		}
		item.TargetID = newID
		after := ops.Merge(desired, ops.Record{"id": newID})
		return &outbox.Change{
			Table: item.TargetTable, ID: newID,
			Op: ops.EntityCreate, After: after,
		}, false, nil

	case string(ops.EntityDelete):
		live, err := accessor.ReadForUpdate(tx, item.TargetID)
		if err != nil {
			return nil, false, err
		}
		gate := item.EntityVersion
		diverged := false
		snap := ItemSnapshot{BaselineVersion: item.EntityVersion, Before: before}
		if reason := accessor.Strategy().Detect(snap, live); reason != "" {
			if strict {
				return nil, false, &conflictAbort{reason: e.describeConflict(item, reason)}
			}
			if live == nil {
				e.logger.Warnf("Skipping item %d (%s/%s): %s",
					item.ID, item.TargetTable, item.TargetID, reason)
				return nil, false, nil
			}
			e.logger.Warnf("Deleting %s/%s over diverged data (item %d): %s",
				item.TargetTable, item.TargetID, item.ID, reason)
			diverged = true
			if gate, err = accessor.TokenFromRecord(live); err != nil {
				return nil, false, err
			}
		}
		affected, err := accessor.Delete(tx, item.TargetID, gate)
		if err != nil {
			return nil, false, err
		}
		if affected == 0 {
			return nil, false, &conflictAbort{reason: e.describeConflict(item, "row changed between check and delete")}
		}
		return &outbox.Change{
			Table: item.TargetTable, ID: item.TargetID,
			Op: ops.EntityDelete, Before: live,
		}, diverged, nil

	default:
		live, err := accessor.ReadForUpdate(tx, item.TargetID)
		if err != nil {
			return nil, false, err
		}
		gate := item.EntityVersion
		diverged := false
		snap := ItemSnapshot{BaselineVersion: item.EntityVersion, Before: before}
		if reason := accessor.Strategy().Detect(snap, live); reason != "" {
			if strict {
				return nil, false, &conflictAbort{reason: e.describeConflict(item, reason)}
			}
			if live == nil {
				e.logger.Warnf("Skipping item %d (%s/%s): %s",
					item.ID, item.TargetTable, item.TargetID, reason)
				return nil, false, nil
			}
			e.logger.Warnf("Updating %s/%s over diverged data (item %d): %s",
				item.TargetTable, item.TargetID, item.ID, reason)
			diverged = true
			if gate, err = accessor.TokenFromRecord(live); err != nil {
				return nil, false, err
			}
		}
		desired := ops.Apply(live, fops, ops.EntityUpdate)
		affected, err := accessor.Update(tx, item.TargetID, desired, gate)
		if err != nil {
			return nil, false, err
		}
		if affected == 0 {
			return nil, false, &conflictAbort{reason: e.describeConflict(item, "row changed between check and update")}
		}
		return &outbox.Change{
			Table: item.TargetTable, ID: item.TargetID,
			Op: ops.EntityUpdate, Before: live, After: desired,
		}, diverged, nil
	}
}

func (e *Executor) describeConflict(item *model.ChangeItem, reason string) string {
	return fmt.Sprintf("%s/%s: %s", item.TargetTable, item.TargetID, reason)
}

// runEffects invokes post-commit handlers. The data change is already
// durable, so handler failures are logged and swallowed.
func (e *Executor) runEffects(ctx context.Context, cr *model.ChangeRequest, actorID int, pending []appliedEffect) {
	for _, eff := range pending {
		handler, ok := e.effects.Get(eff.table)
		if !ok {
			continue
		}
		if err := handler.Apply(ctx, eff.entityID, eff.after, cr.Environment, actorID); err != nil {
			e.logger.Errorf("Effect handler for %s/%s failed after request %d: %v",
				eff.table, eff.entityID, cr.ID, err)
		}
	}
}

// Revert builds a new request that undoes an applied one. The inverse
// patches are computed from the stored ops and re-based on the current live
// rows, so the revert itself goes through review and conflict detection
// like any other change. The original request is left untouched.
func (e *Executor) Revert(crID int64, actorID int) (*model.ChangeRequest, error) {
	var revert model.ChangeRequest

	err := e.db.Transaction(func(tx *gorm.DB) error {
		var original model.ChangeRequest
		if err := lockRequest(tx, crID, &original); err != nil {
			return err
		}
		if original.Status != model.ChangeRequestStatusApplied {
			return httpx.ErrStateConflict("only applied requests can be reverted")
		}

		var items []model.ChangeItem
		if err := tx.Where("change_request_id = ?", crID).
			Order("action_group_id ASC, id ASC").
			Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}
		if len(items) == 0 {
			return httpx.ErrParamInvalid("nothing to revert")
		}

		revert = model.ChangeRequest{
			RequesterID: actorID,
			Environment: original.Environment,
			Status:      model.ChangeRequestStatusOpen,
			Type:        model.ChangeRequestTypeRevert,
			Title:       fmt.Sprintf("Revert: %s", original.Title),
			Reason:      fmt.Sprintf("Reverts change request #%d", original.ID),
		}
		if err := tx.Create(&revert).Error; err != nil {
			return fmt.Errorf("failed to create revert request: %w", err)
		}

		group := model.ActionGroup{
			ChangeRequestID: revert.ID,
			ActionType:      model.ActionTypeRevert,
			Title:           revert.Title,
		}
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("failed to create revert group: %w", err)
		}

		for i := range items {
			item := &items[i]
			accessor, ok := e.registry.Lookup(item.TargetTable)
			if !ok {
				return httpx.ErrInternalError(
					fmt.Sprintf("table %s is not registered for managed changes", item.TargetTable), nil)
			}

			fops, err := ops.DecodeOps(item.Ops)
			if err != nil {
				return err
			}
			invOps, err := ops.EncodeOps(ops.Invert(fops))
			if err != nil {
				return err
			}
			invOp := ops.InvertEntityOp(ops.EntityOp(item.EntityOp))

			targetID := item.TargetID
			var live ops.Record
			var token *int64
			if invOp == ops.EntityCreate {
				// Undoing a deletion recreates the row under a fresh id.
				targetID = NewRowPlaceholder()
			} else {
				live, err = accessor.Read(tx, item.TargetID)
				if err != nil {
					return err
				}
				token, err = accessor.ReadToken(tx, item.TargetID)
				if err != nil {
					return err
				}
			}

			liveJSON, err := ops.EncodeRecord(live)
			if err != nil {
				return err
			}
			revItem := model.ChangeItem{
				ChangeRequestID: revert.ID,
				ActionGroupID:   group.ID,
				TargetTable:     item.TargetTable,
				TargetID:        targetID,
				EntityOp:        string(invOp),
				Ops:             invOps,
				BeforeData:      liveJSON,
				EntityVersion:   token,
			}
			if err := tx.Create(&revItem).Error; err != nil {
				return fmt.Errorf("failed to create revert item: %w", err)
			}
		}

		return e.audit.Record(tx, actorID, model.AuditActionRevert,
			"change_request", fmt.Sprintf("%d", crID),
			map[string]interface{}{"revertRequestId": revert.ID})
	})
	if err != nil {
		return nil, err
	}
	return &revert, nil
}
