package domain

import "time"

// SyncJobType 调度任务类型
type SyncJobType string

const (
	JobNewOrders  SyncJobType = "new_orders"  // 新订单同步（混合扫描）
	JobStatusSync SyncJobType = "status_sync" // 物流状态核对
	JobCleanup    SyncJobType = "cleanup"     // 每日清理
)

// ValidJobType 是否为可调度的任务类型
func ValidJobType(s string) bool {
	switch SyncJobType(s) {
	case JobNewOrders, JobStatusSync, JobCleanup:
		return true
	}
	return false
}

// SyncCursor 同步游标（对应 sync_cursors 表）
// 每个 (店铺, 任务类型) 至多一行。只有成功批次之后由 reconciler 推进；
// 除显式 Reset 外永不回退。
type SyncCursor struct {
	TenantID       string      `db:"tenant_id"`
	JobType        SyncJobType `db:"job_type"`
	LastExternalID string      `db:"last_external_id"` // 字符串存储：外部订单号可能带非数字修饰
	UpdatedAt      time.Time   `db:"updated_at"`
}

// RunOutcome 运行结果
type RunOutcome string

const (
	OutcomeRunning RunOutcome = "running"
	OutcomeSuccess RunOutcome = "success"
	OutcomePartial RunOutcome = "partial"
	OutcomeFailed  RunOutcome = "failed"
	OutcomeAborted RunOutcome = "aborted"
)

// RunTenantAll 整批任务（不限定单一店铺）在 SyncRun 中的 tenant 标记
const RunTenantAll = "all"

// RunCounters 单次运行的计数器
type RunCounters struct {
	Fetched       int `json:"fetched"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	StatusChanged int `json:"status_changed"`
	Skipped       int `json:"skipped"`
}

// SyncRun 一次任务运行的记录（对应 sync_runs 表）
// 任务开始时创建（outcome=running），结束时敲定一次，之后不可变。
// 控制面按它做运行历史与卡死检测（running + started_at 久未结束）。
type SyncRun struct {
	RunID      string      `db:"run_id"` // UUID
	JobType    SyncJobType `db:"job_type"`
	TenantID   string      `db:"tenant_id"` // 店铺 UUID 或 RunTenantAll
	StartedAt  time.Time   `db:"started_at"`
	FinishedAt *time.Time  `db:"finished_at"`
	Outcome    RunOutcome  `db:"outcome"`
	Counters   RunCounters `db:"-"`
	// ErrorSummary 非致命异常（身份歧义、未知状态、漂移标记）与失败原因
	ErrorSummary []string `db:"-"`
}

// AddError 追加错误摘要
func (r *SyncRun) AddError(msg string) {
	r.ErrorSummary = append(r.ErrorSummary, msg)
}
