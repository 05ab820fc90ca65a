package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/domain"
)

func setupMockCursorsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresCursorsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresCursorsRepository(db)

	return db, mock, repo
}

func TestGetCursor_Success(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	updatedAt := time.Now()

	rows := sqlmock.NewRows([]string{"tenant_id", "job_type", "last_external_id", "updated_at"}).
		AddRow(tenantID, "new_orders", "ORD-100", updatedAt)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, "new_orders").
		WillReturnRows(rows)

	cursor, err := repo.GetCursor(ctx, tenantID, domain.JobNewOrders)

	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, tenantID, cursor.TenantID)
	assert.Equal(t, domain.JobNewOrders, cursor.JobType)
	assert.Equal(t, "ORD-100", cursor.LastExternalID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCursor_MissingReturnsNil(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, "new_orders").
		WillReturnError(sql.ErrNoRows)

	cursor, err := repo.GetCursor(ctx, tenantID, domain.JobNewOrders)

	// 首次同步前没有游标行，这不是错误
	require.NoError(t, err)
	assert.Nil(t, cursor)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCursor_Success(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectExec(`INSERT INTO sync_cursors`).
		WithArgs(tenantID, "new_orders", "ORD-100").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateCursor(ctx, &domain.SyncCursor{
		TenantID:       tenantID,
		JobType:        domain.JobNewOrders,
		LastExternalID: "ORD-100",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCursorCAS_Success(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	prev := time.Now()

	mock.ExpectExec(`UPDATE sync_cursors`).
		WithArgs(tenantID, "new_orders", "ORD-105", prev).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateCursorCAS(ctx, tenantID, domain.JobNewOrders, "ORD-105", prev)

	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCursorCAS_ConcurrentModification(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()
	stale := time.Now().Add(-time.Minute)

	// updated_at 已被别的写者改过，条件更新命中 0 行
	mock.ExpectExec(`UPDATE sync_cursors`).
		WithArgs(tenantID, "new_orders", "ORD-105", stale).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateCursorCAS(ctx, tenantID, domain.JobNewOrders, "ORD-105", stale)

	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetCursor_Success(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectExec(`INSERT INTO sync_cursors`).
		WithArgs(tenantID, "new_orders", "ORD-090").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResetCursor(ctx, tenantID, domain.JobNewOrders, "ORD-090")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCursor_MissingTenantID(t *testing.T) {
	db, mock, repo := setupMockCursorsDB(t)
	defer db.Close()

	ctx := context.Background()

	cursor, err := repo.GetCursor(ctx, "", domain.JobNewOrders)

	assert.Error(t, err)
	assert.Nil(t, cursor)
	assert.Contains(t, err.Error(), "tenant_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}
