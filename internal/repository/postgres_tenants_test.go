package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storesync/internal/domain"
)

func setupMockTenantsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresTenantsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresTenantsRepository(db)

	return db, mock, repo
}

var tenantRowColumns = []string{
	"tenant_id", "tenant_code", "tenant_name", "api_base_url", "api_token",
	"page_size", "delivery_credential_key", "status", "metadata",
}

func addTenantRow(rows *sqlmock.Rows, tenantID, code, name string) *sqlmock.Rows {
	return rows.AddRow(
		tenantID, code, name, "https://api."+code+".example.com", "token-"+code,
		50, "main", "active", []byte(`{}`),
	)
}

func TestGetTenant_Success(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	rows := sqlmock.NewRows(tenantRowColumns)
	addTenantRow(rows, tenantID, "shop-one", "Shop One")

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID).
		WillReturnRows(rows)

	tenant, err := repo.GetTenant(ctx, tenantID)

	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, tenantID, tenant.TenantID)
	assert.Equal(t, "shop-one", tenant.TenantCode)
	assert.Equal(t, 50, tenant.PageSize)
	assert.Equal(t, "main", tenant.DeliveryCredentialKey)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant_NotFound(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID).
		WillReturnError(sql.ErrNoRows)

	tenant, err := repo.GetTenant(ctx, tenantID)

	assert.Error(t, err)
	assert.Nil(t, tenant)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenantByCode_Success(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	rows := sqlmock.NewRows(tenantRowColumns)
	addTenantRow(rows, tenantID, "shop-one", "Shop One")

	mock.ExpectQuery(`SELECT`).
		WithArgs("shop-one").
		WillReturnRows(rows)

	tenant, err := repo.GetTenantByCode(ctx, "shop-one")

	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, tenantID, tenant.TenantID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveTenants_Success(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()

	rows := sqlmock.NewRows(tenantRowColumns)
	addTenantRow(rows, uuid.New().String(), "shop-one", "Shop One")
	addTenantRow(rows, uuid.New().String(), "shop-two", "Shop Two")

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(rows)

	tenants, err := repo.ListActiveTenants(ctx)

	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "shop-one", tenants[0].TenantCode)
	assert.Equal(t, "shop-two", tenants[1].TenantCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTenants_WithStatusFilter(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("suspended").
		WillReturnRows(countRows)

	listRows := sqlmock.NewRows(tenantRowColumns)
	addTenantRow(listRows, uuid.New().String(), "shop-one", "Shop One")

	mock.ExpectQuery(`SELECT`).
		WithArgs("suspended", 20, 0).
		WillReturnRows(listRows)

	tenants, total, err := repo.ListTenants(ctx, TenantFilters{Status: "suspended"}, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, tenants, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenant_Success(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	rows := sqlmock.NewRows([]string{"tenant_id"}).AddRow(tenantID)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("shop-one", "Shop One", "https://api.example.com", "secret",
			50, "main", "active", `{}`).
		WillReturnRows(rows)

	id, err := repo.CreateTenant(ctx, &domain.Tenant{
		TenantCode:            "shop-one",
		TenantName:            "Shop One",
		APIBaseURL:            "https://api.example.com",
		APIToken:              "secret",
		PageSize:              50,
		DeliveryCredentialKey: "main",
		Status:                "active",
	})

	require.NoError(t, err)
	assert.Equal(t, tenantID, id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenant_MissingCode(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()

	id, err := repo.CreateTenant(ctx, &domain.Tenant{TenantName: "Shop One"})

	assert.Error(t, err)
	assert.Empty(t, id)
	assert.Contains(t, err.Error(), "required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTenant_NotFound(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectExec(`UPDATE tenants`).
		WithArgs(tenantID, "Shop One", "", "", 0, "", `{}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateTenant(ctx, tenantID, &domain.Tenant{TenantName: "Shop One"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTenantStatus_Success(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()
	tenantID := uuid.New().String()

	mock.ExpectExec(`UPDATE tenants`).
		WithArgs(tenantID, "deleted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetTenantStatus(ctx, tenantID, domain.TenantStatusDeleted)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTenantStatus_InvalidStatus(t *testing.T) {
	db, mock, repo := setupMockTenantsDB(t)
	defer db.Close()

	ctx := context.Background()

	err := repo.SetTenantStatus(ctx, uuid.New().String(), "archived")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	require.NoError(t, mock.ExpectationsWereMet())
}
