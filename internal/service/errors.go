package service

import (
	"errors"
	"fmt"
	"time"
)

// 错误分类（对应同步引擎的传播策略）：
//   - TransportError / RateLimitError / PaginationExhaustedError 终止当前店铺的运行
//   - 身份歧义、未知状态、漂移标记是咨询性的：记入运行摘要，不终止运行
// 店铺级失败相互隔离：一个店铺 FAILED 不影响同批次其他店铺。

// TransportError 访问上游的网络/超时/非 2xx 错误
// 重试在客户端层有界进行（resty 重试配置），之后原样上抛。
type TransportError struct {
	TenantCode string
	StatusCode int // 0 = 网络层错误，没有 HTTP 状态码
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream transport error (tenant=%s, status=%d): %v", e.TenantCode, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream transport error (tenant=%s): %v", e.TenantCode, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError 上游明确限流（HTTP 429）
// 当前店铺的运行暂停并等待下次调度，绝不紧密重试。
type RateLimitError struct {
	TenantCode string
	RetryAfter time.Duration // 0 = 上游未给出
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limited (tenant=%s, retry_after=%s)", e.TenantCode, e.RetryAfter)
}

// PaginationExhaustedError 上游分页协议不收敛（游标永不终止）
// 在硬性页数上限处终止运行并带诊断信息，不允许无限循环。
type PaginationExhaustedError struct {
	TenantCode string
	Pages      int
}

func (e *PaginationExhaustedError) Error() string {
	return fmt.Sprintf("pagination exhausted after %d pages (tenant=%s)", e.Pages, e.TenantCode)
}

// ErrDriftDetected 本地最大订单号超过上游实际最大值（上游删除/重排了数据）
// 咨询性错误：标记店铺等待操作员决策，默认不自动回退游标。
var ErrDriftDetected = errors.New("cursor drift detected: local max exceeds upstream max")

// ErrRunInFlight 同一 (任务, 店铺) 已有运行在进行中（手动触发被合并为空操作）
var ErrRunInFlight = errors.New("run already in flight for this job/tenant pair")

// ErrSchedulerStopped 调度器未在运行
var ErrSchedulerStopped = errors.New("scheduler is not running")
