package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"storesync/internal/domain"
)

// PostgresRunsRepository 运行记录Repository实现
type PostgresRunsRepository struct {
	db *sql.DB
}

// NewPostgresRunsRepository 创建运行记录Repository
func NewPostgresRunsRepository(db *sql.DB) *PostgresRunsRepository {
	return &PostgresRunsRepository{db: db}
}

// 确保实现了接口
var _ RunsRepository = (*PostgresRunsRepository)(nil)

const runColumns = `
	run_id::text,
	job_type,
	tenant_id,
	started_at,
	finished_at,
	outcome,
	fetched,
	created,
	updated,
	status_changed,
	skipped,
	COALESCE(error_summary, '{}') as error_summary
`

func scanRun(row interface{ Scan(...any) error }) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var finishedAt sql.NullTime
	var summary pq.StringArray
	err := row.Scan(
		&run.RunID,
		&run.JobType,
		&run.TenantID,
		&run.StartedAt,
		&finishedAt,
		&run.Outcome,
		&run.Counters.Fetched,
		&run.Counters.Created,
		&run.Counters.Updated,
		&run.Counters.StatusChanged,
		&run.Counters.Skipped,
		&summary,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.ErrorSummary = []string(summary)
	return &run, nil
}

// CreateRun 任务开始：写入 running 状态的运行记录
func (r *PostgresRunsRepository) CreateRun(ctx context.Context, run *domain.SyncRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_runs (run_id, job_type, tenant_id, started_at, outcome)
		 VALUES ($1::uuid, $2, $3, $4, $5)`,
		run.RunID, string(run.JobType), run.TenantID, run.StartedAt, string(domain.OutcomeRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinalizeRun 任务结束：写入结果、计数器与错误摘要
// WHERE outcome = 'running' 保证记录敲定后不可变
func (r *PostgresRunsRepository) FinalizeRun(ctx context.Context, run *domain.SyncRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if run.FinishedAt == nil {
		return fmt.Errorf("finished_at is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET finished_at = $2,
		     outcome = $3,
		     fetched = $4,
		     created = $5,
		     updated = $6,
		     status_changed = $7,
		     skipped = $8,
		     error_summary = $9
		 WHERE run_id = $1::uuid AND outcome = 'running'`,
		run.RunID,
		*run.FinishedAt,
		string(run.Outcome),
		run.Counters.Fetched,
		run.Counters.Created,
		run.Counters.Updated,
		run.Counters.StatusChanged,
		run.Counters.Skipped,
		pq.Array(run.ErrorSummary),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found or already finalized: %s", run.RunID)
	}

	return nil
}

// GetRun 读取单条运行记录
func (r *PostgresRunsRepository) GetRun(ctx context.Context, runID string) (*domain.SyncRun, error) {
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}

	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE run_id = $1::uuid`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns 运行历史（started_at 降序，分页）
func (r *PostgresRunsRepository) ListRuns(ctx context.Context, filter RunFilters, page, size int) ([]*domain.SyncRun, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 500 {
		size = 50
	}

	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.JobType != "" {
		where = append(where, fmt.Sprintf("job_type = $%d", argIdx))
		args = append(args, filter.JobType)
		argIdx++
	}
	if filter.TenantID != "" {
		where = append(where, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", argIdx))
		args = append(args, filter.Outcome)
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM sync_runs WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, total, nil
}

// DeleteRunsBefore 删除早于 cutoff 的已敲定运行记录
func (r *PostgresRunsRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_runs WHERE started_at < $1 AND outcome <> 'running'`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}
