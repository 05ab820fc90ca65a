package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/repository"
)

// JobStatus 单个任务的调度状态快照
type JobStatus struct {
	JobType      domain.SyncJobType `json:"job_type"`
	IntervalSecs int                `json:"interval_secs"`
	LastFired    *time.Time         `json:"last_fired,omitempty"`
	NextFire     *time.Time         `json:"next_fire,omitempty"`
}

// SchedulerStatus 调度器状态快照（运维接口返回）
type SchedulerStatus struct {
	Running  bool        `json:"running"`
	InFlight []string    `json:"in_flight"`
	Jobs     []JobStatus `json:"jobs"`
}

// Scheduler 任务调度器
// 三个周期任务：new_orders（活跃时段内按间隔轮询）、status_sync
//（粗粒度轮询）、cleanup（每天固定时刻清理过期运行记录）。
// 同一 (job, tenant) 任意时刻至多一个运行：进程内靠 in-flight 表，
// 跨进程靠 RunLocker。正在运行时的触发请求合并为 no-op。
type Scheduler struct {
	cfg       *config.SyncConfig
	syncSvc   *SyncService
	statusSvc *StatusSyncService
	tenants   repository.TenantsRepository
	runs      repository.RunsRepository
	locker    RunLocker
	clock     Clock
	logger    *zap.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inFlight  map[string]bool
	lastFired map[domain.SyncJobType]time.Time
}

// NewScheduler 创建调度器（创建后处于停止状态，需显式 Start）
func NewScheduler(
	cfg *config.SyncConfig,
	syncSvc *SyncService,
	statusSvc *StatusSyncService,
	tenants repository.TenantsRepository,
	runs repository.RunsRepository,
	locker RunLocker,
	clock Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		syncSvc:   syncSvc,
		statusSvc: statusSvc,
		tenants:   tenants,
		runs:      runs,
		locker:    locker,
		clock:     clock,
		logger:    logger,
		inFlight:  map[string]bool{},
		lastFired: map[domain.SyncJobType]time.Time{},
	}
}

// Start 启动全部周期任务循环（幂等，重复调用无效果）
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(3)
	go s.newOrdersLoop(ctx)
	go s.statusSyncLoop(ctx)
	go s.cleanupLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.Int("new_orders_interval_secs", s.cfg.NewOrdersInterval),
		zap.Int("status_sync_interval_secs", s.cfg.StatusSyncInterval),
		zap.Int("cleanup_hour", s.cfg.CleanupHour),
	)
}

// Stop 停止调度器并等待进行中的运行退出
// 取消会让运行以 aborted 收束，游标不动，下次重新运行补齐。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// IsRunning 调度循环是否在运行
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerJob 手工触发一次任务（异步执行，立即返回）
// tenantID 为空或 "all" 时对全部活跃店铺执行。同一 (job, tenant)
// 已在运行时返回 ErrRunInFlight，不排队不叠加。
func (s *Scheduler) TriggerJob(jobType domain.SyncJobType, tenantID string) error {
	if !domain.ValidJobType(string(jobType)) {
		return fmt.Errorf("unknown job type: %s", jobType)
	}
	if tenantID == "" {
		tenantID = domain.RunTenantAll
	}

	var tenant *domain.Tenant
	if tenantID != domain.RunTenantAll {
		t, err := s.tenants.GetTenant(context.Background(), tenantID)
		if err != nil {
			return fmt.Errorf("failed to load tenant: %w", err)
		}
		if t == nil {
			return fmt.Errorf("tenant not found: %s", tenantID)
		}
		if !t.IsActive() {
			return fmt.Errorf("tenant is not active: %s", t.TenantCode)
		}
		tenant = t
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	s.mu.Unlock()

	return s.dispatch(context.Background(), jobType, tenantID, tenant, true)
}

// runScheduled 周期循环的统一派发入口（已在运行时合并为 no-op）
func (s *Scheduler) runScheduled(ctx context.Context, jobType domain.SyncJobType) {
	err := s.dispatch(ctx, jobType, domain.RunTenantAll, nil, false)
	if err == ErrRunInFlight {
		s.logger.Warn("Scheduled job still in flight, skipping tick",
			zap.String("job_type", string(jobType)),
		)
	}
}

// dispatch 获取互斥并启动运行
// async 为 true 时在独立 goroutine 中执行（手工触发路径）。
func (s *Scheduler) dispatch(ctx context.Context, jobType domain.SyncJobType, tenantID string, tenant *domain.Tenant, async bool) error {
	if !s.tryAcquire(jobType, tenantID) {
		return ErrRunInFlight
	}

	held, err := s.locker.TryAcquire(ctx, string(jobType), tenantID)
	if err != nil {
		s.release(jobType, tenantID)
		return err
	}
	if !held {
		s.release(jobType, tenantID)
		return ErrRunInFlight
	}

	s.mu.Lock()
	if tenantID == domain.RunTenantAll {
		s.lastFired[jobType] = s.clock.Now()
	}
	s.mu.Unlock()

	execute := func() {
		defer s.release(jobType, tenantID)
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, string(jobType), tenantID); err != nil {
				s.logger.Error("Failed to release run lock",
					zap.String("job_type", string(jobType)),
					zap.Error(err),
				)
			}
		}()
		s.execute(ctx, jobType, tenant)
	}

	if async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			execute()
		}()
		return nil
	}
	execute()
	return nil
}

func (s *Scheduler) execute(ctx context.Context, jobType domain.SyncJobType, tenant *domain.Tenant) {
	switch jobType {
	case domain.JobNewOrders:
		if tenant != nil {
			s.syncSvc.SyncTenant(ctx, tenant)
		} else {
			s.syncSvc.SyncAllTenants(ctx)
		}
	case domain.JobStatusSync:
		if tenant != nil {
			s.statusSvc.SyncTenant(ctx, tenant)
		} else {
			s.statusSvc.SyncAllTenants(ctx)
		}
	case domain.JobCleanup:
		s.runCleanup(ctx)
	}
}

// tryAcquire 进程内互斥
// 全量批次与同任务的任意单店铺运行互斥（批次内包含该店铺）。
func (s *Scheduler) tryAcquire(jobType domain.SyncJobType, tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := string(jobType) + ":"
	if tenantID == domain.RunTenantAll {
		for key := range s.inFlight {
			if strings.HasPrefix(key, prefix) {
				return false
			}
		}
	} else {
		if s.inFlight[prefix+domain.RunTenantAll] || s.inFlight[prefix+tenantID] {
			return false
		}
	}
	s.inFlight[prefix+tenantID] = true
	return true
}

func (s *Scheduler) release(jobType domain.SyncJobType, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, string(jobType)+":"+tenantID)
}

// newOrdersLoop 新订单同步循环
// 只在活跃时段内执行；时段外的 tick 直接跳过，订单自带单调递增的
// 订单号，停摆期间的订单会在下一个活跃 tick 被前向扫描一次性补齐。
func (s *Scheduler) newOrdersLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.NewOrdersInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			if !s.withinActiveHours(s.clock.Now()) {
				s.logger.Debug("Outside active hours, skipping new orders sync")
				continue
			}
			s.runScheduled(ctx, domain.JobNewOrders)
		}
	}
}

// statusSyncLoop 物流状态核对循环（不受活跃时段限制，频率本身就粗）
func (s *Scheduler) statusSyncLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.StatusSyncInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
			s.runScheduled(ctx, domain.JobStatusSync)
		}
	}
}

// cleanupLoop 每天固定时刻执行一次清理
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		delay := s.nextCleanupDelay(s.clock.Now())
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
			s.runScheduled(ctx, domain.JobCleanup)
		}
	}
}

// runCleanup 删除超过保留期的运行记录（running 状态的行不删）
func (s *Scheduler) runCleanup(ctx context.Context) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.RunRetentionDays)
	deleted, err := s.runs.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to clean up old sync runs", zap.Error(err))
		return
	}
	s.logger.Info("Cleaned up old sync runs",
		zap.Int64("deleted_count", deleted),
		zap.Time("cutoff", cutoff),
	)
}

// withinActiveHours 是否处于活跃时段 [start, end)
// 支持跨午夜的窗口（start > end）。
func (s *Scheduler) withinActiveHours(now time.Time) bool {
	start := s.cfg.ActiveHourStart
	end := s.cfg.ActiveHourEnd
	if start == end {
		return true
	}
	hour := now.Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// nextCleanupDelay 距离下一次清理时刻的时长
func (s *Scheduler) nextCleanupDelay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.CleanupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Status 调度器状态快照
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	inFlight := make([]string, 0, len(s.inFlight))
	for key := range s.inFlight {
		inFlight = append(inFlight, key)
	}

	jobs := []JobStatus{
		{JobType: domain.JobNewOrders, IntervalSecs: s.cfg.NewOrdersInterval},
		{JobType: domain.JobStatusSync, IntervalSecs: s.cfg.StatusSyncInterval},
		{JobType: domain.JobCleanup, IntervalSecs: 24 * 3600},
	}
	for i := range jobs {
		if last, ok := s.lastFired[jobs[i].JobType]; ok {
			t := last
			jobs[i].LastFired = &t
		}
		if s.running {
			var next time.Time
			if jobs[i].JobType == domain.JobCleanup {
				next = s.clock.Now().Add(s.nextCleanupDelay(s.clock.Now()))
			} else if last, ok := s.lastFired[jobs[i].JobType]; ok {
				next = last.Add(time.Duration(jobs[i].IntervalSecs) * time.Second)
			} else {
				next = s.clock.Now().Add(time.Duration(jobs[i].IntervalSecs) * time.Second)
			}
			jobs[i].NextFire = &next
		}
	}

	return SchedulerStatus{
		Running:  s.running,
		InFlight: inFlight,
		Jobs:     jobs,
	}
}
