package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"storesync/internal/domain"
)

// PostgresTenantsRepository 店铺Repository实现（强类型版本）
// 实现TenantsRepository接口，使用domain.Tenant领域模型
type PostgresTenantsRepository struct {
	db *sql.DB
}

// NewPostgresTenantsRepository 创建店铺Repository
func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

// 确保实现了接口
var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

const tenantColumns = `
	tenant_id::text,
	tenant_code,
	tenant_name,
	COALESCE(api_base_url, '') as api_base_url,
	COALESCE(api_token, '') as api_token,
	COALESCE(page_size, 0) as page_size,
	COALESCE(delivery_credential_key, '') as delivery_credential_key,
	COALESCE(status, 'active') as status,
	COALESCE(metadata, '{}'::jsonb) as metadata
`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var tenant domain.Tenant
	var metadataRaw json.RawMessage
	err := row.Scan(
		&tenant.TenantID,
		&tenant.TenantCode,
		&tenant.TenantName,
		&tenant.APIBaseURL,
		&tenant.APIToken,
		&tenant.PageSize,
		&tenant.DeliveryCredentialKey,
		&tenant.Status,
		&metadataRaw,
	)
	if err != nil {
		return nil, err
	}
	tenant.Metadata = metadataRaw
	return &tenant, nil
}

// GetTenant 根据tenant_id获取店铺信息
func (r *PostgresTenantsRepository) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1::uuid`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// GetTenantByCode 根据店铺代码获取店铺信息
func (r *PostgresTenantsRepository) GetTenantByCode(ctx context.Context, code string) (*domain.Tenant, error) {
	if code == "" {
		return nil, fmt.Errorf("tenant_code is required")
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_code = $1`

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get tenant by code: %w", err)
	}
	return tenant, nil
}

// ListTenants 查询店铺列表（支持分页、过滤、搜索）
func (r *PostgresTenantsRepository) ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}

	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("tenant_name ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	// 先取总数
	var total int
	countQuery := `SELECT COUNT(*) FROM tenants WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY tenant_code LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, total, nil
}

// ListActiveTenants 查询全部参与同步的店铺
func (r *PostgresTenantsRepository) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status = 'active' ORDER BY tenant_code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, nil
}

// CreateTenant 创建新店铺
func (r *PostgresTenantsRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant.TenantCode == "" || tenant.TenantName == "" {
		return "", fmt.Errorf("tenant_code and tenant_name are required")
	}

	metadata := tenant.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO tenants (tenant_code, tenant_name, api_base_url, api_token, page_size, delivery_credential_key, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'active'), $8::jsonb)
		RETURNING tenant_id::text
	`

	var tenantID string
	err := r.db.QueryRowContext(ctx, query,
		tenant.TenantCode,
		tenant.TenantName,
		tenant.APIBaseURL,
		tenant.APIToken,
		tenant.PageSize,
		tenant.DeliveryCredentialKey,
		tenant.Status,
		string(metadata),
	).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenantID, nil
}

// UpdateTenant 更新店铺信息
// tenant_code 的不可变性由 Service 层校验，这里不更新该列
func (r *PostgresTenantsRepository) UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	metadata := tenant.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	query := `
		UPDATE tenants
		SET tenant_name = $2,
		    api_base_url = $3,
		    api_token = $4,
		    page_size = $5,
		    delivery_credential_key = $6,
		    metadata = $7::jsonb
		WHERE tenant_id = $1::uuid
	`

	result, err := r.db.ExecContext(ctx, query,
		tenantID,
		tenant.TenantName,
		tenant.APIBaseURL,
		tenant.APIToken,
		tenant.PageSize,
		tenant.DeliveryCredentialKey,
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}

	return nil
}

// SetTenantStatus 更新店铺状态
func (r *PostgresTenantsRepository) SetTenantStatus(ctx context.Context, tenantID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if status != domain.TenantStatusActive && status != domain.TenantStatusSuspended && status != domain.TenantStatusDeleted {
		return fmt.Errorf("invalid status: %s", status)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET status = $2 WHERE tenant_id = $1::uuid`,
		tenantID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}

	return nil
}
