package changereq

import (
	"context"
	"testing"

	"github.com/maxidea1024/gatrix-sub004/internal/audit"
	"github.com/maxidea1024/gatrix-sub004/internal/effects"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
	"github.com/maxidea1024/gatrix-sub004/internal/policy"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	gdb, mock := newMockDB(t)

	registry := NewRegistry()
	registry.Register(Table{Name: "coupons", IDKind: IDUUID, TokenColumn: "entity_version"})

	logger := logrus.NewEntry(logrus.New())
	exec := NewExecutor(gdb, registry, policy.NewService(gdb), audit.NewService(gdb),
		effects.NewRegistry(), logger)
	return exec, mock
}

func TestExecuteNotApproved(t *testing.T) {
	exec, mock := newTestExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(crRows(10, 1, "production", model.ChangeRequestStatusOpen, "Coupon tweak"))
	mock.ExpectRollback()

	_, err := exec.Execute(context.Background(), 10, 2)
	assertAppErrorCode(t, err, httpx.CodeStateConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNotFound(t *testing.T) {
	exec, mock := newTestExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := exec.Execute(context.Background(), 404, 2)
	assertAppErrorCode(t, err, httpx.CodeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteLenientAppliesDivergedItem(t *testing.T) {
	exec, mock := newTestExecutor(t)

	opsJSON, err := ops.EncodeOps([]ops.FieldOp{
		{Field: "discount", Old: 10, New: 20, Kind: ops.KindMod},
	})
	require.NoError(t, err)
	beforeJSON, err := ops.EncodeRecord(ops.Record{"id": "c1", "code": "WELCOME", "discount": 10})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(crRows(10, 1, "production", model.ChangeRequestStatusApproved, "Coupon tweak"))
	// lenient environment
	mock.ExpectQuery("SELECT .* FROM `environments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "requires_approval", "required_approvers", "strict_conflict"}).
			AddRow(1, "production", true, 1, false))
	// one item captured at version 1
	mock.ExpectQuery("SELECT .* FROM `change_request_items`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "change_request_id", "action_group_id", "target_table", "target_id", "entity_op", "ops", "before_data", "entity_version"}).
			AddRow(100, 10, 2, "coupons", "c1", string(ops.EntityUpdate), []byte(opsJSON), []byte(beforeJSON), 1))
	// live row moved on to version 2 with a renamed code
	mock.ExpectQuery("SELECT .* FROM `coupons` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "discount", "entity_version"}).
			AddRow("c1", "WELCOME2", 10, 2))
	// the patch still lands, gated on the live token
	mock.ExpectExec("UPDATE `coupons` SET .* WHERE id = \\? AND entity_version = \\?").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "c1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_events`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `change_requests` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `audit_logs`").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	cr, err := exec.Execute(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusApplied, cr.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteStrictConflictMarksRequest(t *testing.T) {
	exec, mock := newTestExecutor(t)

	opsJSON, err := ops.EncodeOps([]ops.FieldOp{
		{Field: "discount", Old: 10, New: 20, Kind: ops.KindMod},
	})
	require.NoError(t, err)
	beforeJSON, err := ops.EncodeRecord(ops.Record{"id": "c1", "code": "WELCOME", "discount": 10})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(crRows(10, 1, "production", model.ChangeRequestStatusApproved, "Coupon tweak"))
	mock.ExpectQuery("SELECT .* FROM `environments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "requires_approval", "required_approvers", "strict_conflict"}).
			AddRow(1, "production", true, 1, true))
	mock.ExpectQuery("SELECT .* FROM `change_request_items`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "change_request_id", "action_group_id", "target_table", "target_id", "entity_op", "ops", "before_data", "entity_version"}).
			AddRow(100, 10, 2, "coupons", "c1", string(ops.EntityUpdate), []byte(opsJSON), []byte(beforeJSON), 1))
	// version 1 was captured, the live row is at 2: no write, roll back
	mock.ExpectQuery("SELECT .* FROM `coupons` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "discount", "entity_version"}).
			AddRow("c1", "WELCOME", 10, 2))
	mock.ExpectRollback()
	// conflict marker written outside the failed transaction
	mock.ExpectExec("UPDATE `change_requests` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = exec.Execute(context.Background(), 10, 2)
	assertAppErrorCode(t, err, httpx.CodeDataConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevertNotApplied(t *testing.T) {
	exec, mock := newTestExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(crRows(10, 1, "production", model.ChangeRequestStatusOpen, "Coupon tweak"))
	mock.ExpectRollback()

	_, err := exec.Revert(10, 2)
	assertAppErrorCode(t, err, httpx.CodeStateConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevertBuildsInverseItems(t *testing.T) {
	exec, mock := newTestExecutor(t)

	opsJSON, err := ops.EncodeOps([]ops.FieldOp{
		{Field: "code", Old: "WELCOME", New: "WELCOME2", Kind: ops.KindMod},
	})
	require.NoError(t, err)
	beforeJSON, err := ops.EncodeRecord(ops.Record{"code": "WELCOME"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `change_requests` .*FOR UPDATE").
		WillReturnRows(crRows(10, 1, "production", model.ChangeRequestStatusApplied, "Coupon tweak"))
	mock.ExpectQuery("SELECT .* FROM `change_request_items`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "change_request_id", "action_group_id", "target_table", "target_id", "entity_op", "ops", "before_data"}).
			AddRow(5, 10, 2, "coupons", "c1", string(ops.EntityUpdate), []byte(opsJSON), []byte(beforeJSON)))
	// the revert request and its single group
	mock.ExpectExec("INSERT INTO `change_requests`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO `change_request_action_groups`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	// live row re-read for the fresh baseline (Read, then ReadToken)
	mock.ExpectQuery("SELECT .* FROM `coupons`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "entity_version"}).
			AddRow("c1", "WELCOME2", 4))
	mock.ExpectQuery("SELECT .* FROM `coupons`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "entity_version"}).
			AddRow("c1", "WELCOME2", 4))
	mock.ExpectExec("INSERT INTO `change_request_items`").
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec("INSERT INTO `audit_logs`").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	revert, err := exec.Revert(10, 2)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusOpen, revert.Status)
	assert.Equal(t, model.ChangeRequestTypeRevert, revert.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
