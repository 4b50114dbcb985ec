package policy

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
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

	return NewService(gdb), mock
}

func TestGetApprovalPolicy(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `environments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "requires_approval", "required_approvers", "strict_conflict"}).
			AddRow(1, "production", true, 2, false))

	pol, err := svc.GetApprovalPolicy("production")
	require.NoError(t, err)
	assert.True(t, pol.RequiresApproval)
	assert.Equal(t, 2, pol.RequiredApprovers)
	assert.False(t, pol.StrictConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApprovalPolicyUnknownEnvironment(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `environments`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	pol, err := svc.GetApprovalPolicy("nonexistent")
	require.NoError(t, err)
	assert.True(t, pol.RequiresApproval)
	assert.Equal(t, 1, pol.RequiredApprovers)
	assert.True(t, pol.StrictConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApprovalPolicyApproverFloor(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT .* FROM `environments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "requires_approval", "required_approvers", "strict_conflict"}).
			AddRow(1, "dev", true, 0, true))

	pol, err := svc.GetApprovalPolicy("dev")
	require.NoError(t, err)
	assert.Equal(t, 1, pol.RequiredApprovers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
