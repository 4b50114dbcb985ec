package entitylock

import (
	"testing"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewService(gdb, 2*time.Minute, logrus.NewEntry(logrus.New())), mock
}

func lockRows(id int64, holderID int, kind string, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "environment", "holder_id", "kind", "expires_at"}).
		AddRow(id, "coupons", "c1", "production", holderID, kind, expiresAt)
}

func TestCheckNoLock(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `entity_locks`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := svc.Check("coupons", "c1", "production", 1)
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.False(t, res.Locked)
}

func TestCheckSelfHeld(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `entity_locks`").
		WillReturnRows(lockRows(1, 7, model.EntityLockKindHard, time.Now().Add(time.Minute)))

	res, err := svc.Check("coupons", "c1", "production", 7)
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.True(t, res.Locked)
	assert.Equal(t, 7, res.HolderID)
}

func TestCheckForeignSoftLockWarns(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `entity_locks`").
		WillReturnRows(lockRows(1, 7, model.EntityLockKindSoft, time.Now().Add(time.Minute)))

	res, err := svc.Check("coupons", "c1", "production", 8)
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.True(t, res.Locked)
	assert.NotEmpty(t, res.Warning)
}

func TestCheckForeignHardLockBlocks(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `entity_locks`").
		WillReturnRows(lockRows(1, 7, model.EntityLockKindHard, time.Now().Add(time.Minute)))

	res, err := svc.Check("coupons", "c1", "production", 8)
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.True(t, res.Locked)
	assert.Equal(t, model.EntityLockKindHard, res.Kind)
}

func TestCheckExpiredLockReaped(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `entity_locks`").
		WillReturnRows(lockRows(5, 7, model.EntityLockKindHard, time.Now().Add(-time.Minute)))
	mock.ExpectExec("DELETE FROM `entity_locks`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := svc.Check("coupons", "c1", "production", 8)
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.False(t, res.Locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireForeignHardLockBlocks(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `entity_locks` .*FOR UPDATE").
		WillReturnRows(lockRows(1, 7, model.EntityLockKindHard, time.Now().Add(time.Minute)))
	mock.ExpectRollback()

	_, err := svc.Acquire("coupons", "c1", "production", 8, model.EntityLockKindSoft)
	require.Error(t, err)
	appErr, ok := err.(*httpx.AppError)
	require.True(t, ok)
	assert.Equal(t, httpx.CodeResourceLocked, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireInvalidKind(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Acquire("coupons", "c1", "production", 8, "exclusive")
	require.Error(t, err)
	appErr, ok := err.(*httpx.AppError)
	require.True(t, ok)
	assert.Equal(t, httpx.CodeParamInvalid, appErr.Code)
}

func TestAcquireTakesOverForeignSoftLock(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `entity_locks` .*FOR UPDATE").
		WillReturnRows(lockRows(1, 7, model.EntityLockKindSoft, time.Now().Add(time.Minute)))
	mock.ExpectExec("UPDATE `entity_locks` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lock, err := svc.Acquire("coupons", "c1", "production", 8, model.EntityLockKindSoft)
	require.NoError(t, err)
	assert.Equal(t, 8, lock.HolderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupExpired(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM `entity_locks`").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.CleanupExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
