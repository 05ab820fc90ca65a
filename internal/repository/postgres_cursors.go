package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storesync/internal/domain"
)

// PostgresCursorsRepository 同步游标Repository实现
type PostgresCursorsRepository struct {
	db *sql.DB
}

// NewPostgresCursorsRepository 创建游标Repository
func NewPostgresCursorsRepository(db *sql.DB) *PostgresCursorsRepository {
	return &PostgresCursorsRepository{db: db}
}

// 确保实现了接口
var _ CursorsRepository = (*PostgresCursorsRepository)(nil)

// GetCursor 读取 (店铺, 任务类型) 的游标
func (r *PostgresCursorsRepository) GetCursor(ctx context.Context, tenantID string, jobType domain.SyncJobType) (*domain.SyncCursor, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT tenant_id::text, job_type, last_external_id, updated_at
		FROM sync_cursors
		WHERE tenant_id = $1::uuid AND job_type = $2
	`

	var cursor domain.SyncCursor
	err := r.db.QueryRowContext(ctx, query, tenantID, string(jobType)).Scan(
		&cursor.TenantID,
		&cursor.JobType,
		&cursor.LastExternalID,
		&cursor.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &cursor, nil
}

// CreateCursor 创建游标行（首次同步）
// UNIQUE (tenant_id, job_type) 由数据库保证
func (r *PostgresCursorsRepository) CreateCursor(ctx context.Context, cursor *domain.SyncCursor) error {
	if cursor.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (tenant_id, job_type, last_external_id, updated_at)
		 VALUES ($1::uuid, $2, $3, now())`,
		cursor.TenantID, string(cursor.JobType), cursor.LastExternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to create cursor: %w", err)
	}
	return nil
}

// UpdateCursorCAS 条件更新：仅当 updated_at 仍等于 prevUpdatedAt 时写入
// 调度器互斥使并发写者按构造不存在，CAS 是纵深防御。
func (r *PostgresCursorsRepository) UpdateCursorCAS(ctx context.Context, tenantID string, jobType domain.SyncJobType, newLast string, prevUpdatedAt time.Time) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE sync_cursors
		 SET last_external_id = $3, updated_at = now()
		 WHERE tenant_id = $1::uuid AND job_type = $2 AND updated_at = $4`,
		tenantID, string(jobType), newLast, prevUpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update cursor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// ResetCursor 显式重置游标（漂移修复的唯一途径）
func (r *PostgresCursorsRepository) ResetCursor(ctx context.Context, tenantID string, jobType domain.SyncJobType, value string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (tenant_id, job_type, last_external_id, updated_at)
		 VALUES ($1::uuid, $2, $3, now())
		 ON CONFLICT (tenant_id, job_type)
		 DO UPDATE SET last_external_id = EXCLUDED.last_external_id, updated_at = now()`,
		tenantID, string(jobType), value,
	)
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}
