// Package scheduler 按计划顺序执行各变体的负载阶段。
//
// 同一时刻最多只有一个阶段在运行：阶段 i+1 在 max(运行开始+偏移, 阶段 i 完成) 时启动，
// 因此即使前一阶段的最后一次迭代超出计划时长，后续阶段也不会与之重叠。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yqhp/variant-bench/internal/execution"
	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/types"
)

// IterationFactory 为场景创建迭代函数
type IterationFactory func(sc types.Scenario, variant types.Variant) (execution.IterationFunc, error)

// Options 调度器回调
type Options struct {
	// OnPhaseStart 阶段开始运行时调用
	OnPhaseStart func(status types.ScenarioStatus)
	// OnPhaseComplete 阶段正常完成时调用，在下一阶段开始之前
	OnPhaseComplete func(status types.ScenarioStatus)
}

type phase struct {
	scenario    types.Scenario
	state       types.ScenarioState
	pool        *execution.VUPool
	startedAt   time.Time
	completedAt time.Time
}

// Scheduler 顺序执行计划
type Scheduler struct {
	plan     *Plan
	variants map[string]types.Variant
	factory  IterationFactory
	newMode  func() execution.Mode
	opts     Options

	phases   []*phase
	runStart time.Time
	mu       sync.RWMutex
}

// New 创建调度器，plan 需已通过校验
func New(plan *Plan, variants []types.Variant, factory IterationFactory, opts Options) (*Scheduler, error) {
	if factory == nil {
		return nil, ErrNilIterationFactory
	}
	if err := plan.Validate(variants, nil); err != nil {
		return nil, err
	}

	s := &Scheduler{
		plan:     plan,
		variants: make(map[string]types.Variant, len(variants)),
		factory:  factory,
		newMode:  func() execution.Mode { return execution.NewConstantVUsMode() },
		opts:     opts,
		phases:   make([]*phase, len(plan.Scenarios)),
	}
	for _, v := range variants {
		s.variants[v.Name] = v
	}
	for i, sc := range plan.Scenarios {
		s.phases[i] = &phase{scenario: sc, state: types.ScenarioPending}
	}
	return s, nil
}

// Plan 返回执行计划
func (s *Scheduler) Plan() *Plan {
	return s.plan
}

// Run 依次执行所有阶段，阻塞直到全部完成或上下文取消。
// 取消时当前阶段标记为 aborted，后续阶段保持 pending，并返回 ctx.Err()。
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runStart = time.Now()
	s.mu.Unlock()

	for i, p := range s.phases {
		if err := s.waitForOffset(ctx, p.scenario.StartOffset); err != nil {
			logger.Warn("阶段 %s 等待开始时被取消", p.scenario.Name)
			return err
		}

		if err := s.runPhase(ctx, i, p); err != nil {
			return err
		}
	}
	return nil
}

// waitForOffset 等待到运行开始后的指定偏移。前一阶段超时完成时不再等待。
func (s *Scheduler) waitForOffset(ctx context.Context, offset time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := time.Until(s.RunStart().Add(offset))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) runPhase(ctx context.Context, idx int, p *phase) error {
	sc := p.scenario
	variant := s.variants[sc.Variant]

	fn, err := s.factory(sc, variant)
	if err != nil {
		s.finish(p, types.ScenarioAborted)
		return fmt.Errorf("创建阶段 %s 的迭代函数失败: %w", sc.Name, err)
	}

	mode := s.newMode()
	pool := execution.NewVUPool(sc.VUs)

	s.mu.Lock()
	p.pool = pool
	p.state = types.ScenarioRunning
	p.startedAt = time.Now()
	s.mu.Unlock()

	logger.Info("阶段 %d/%d 开始: %s (variant=%s, workload=%s, vus=%d, duration=%s)",
		idx+1, len(s.phases), sc.Name, sc.Variant, sc.Workload, sc.VUs, sc.Duration)
	if s.opts.OnPhaseStart != nil {
		s.opts.OnPhaseStart(s.status(p))
	}

	err = mode.Run(ctx, &execution.ModeConfig{
		VUs:           sc.VUs,
		Duration:      sc.Duration,
		MaxRPS:        sc.MaxRPS,
		Pool:          pool,
		IterationFunc: fn,
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.finish(p, types.ScenarioAborted)
		logger.Warn("阶段 %s 已中止", sc.Name)
		return ctxErr
	}
	if err != nil {
		s.finish(p, types.ScenarioAborted)
		return fmt.Errorf("执行阶段 %s 失败: %w", sc.Name, err)
	}

	s.finish(p, types.ScenarioCompleted)
	status := s.status(p)
	logger.Info("阶段 %s 完成: iterations=%d, elapsed=%s",
		sc.Name, status.Iterations, status.CompletedAt.Sub(status.StartedAt).Round(time.Millisecond))
	if s.opts.OnPhaseComplete != nil {
		s.opts.OnPhaseComplete(status)
	}
	return nil
}

func (s *Scheduler) finish(p *phase, state types.ScenarioState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.state = state
	p.completedAt = time.Now()
}

func (s *Scheduler) status(p *phase) types.ScenarioStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked(p)
}

func (s *Scheduler) statusLocked(p *phase) types.ScenarioStatus {
	st := types.ScenarioStatus{
		Name:        p.scenario.Name,
		Variant:     p.scenario.Variant,
		Workload:    p.scenario.Workload,
		State:       p.state,
		VUs:         p.scenario.VUs,
		StartOffset: p.scenario.StartOffset,
		Duration:    p.scenario.Duration,
		StartedAt:   p.startedAt,
		CompletedAt: p.completedAt,
	}
	if p.pool != nil {
		if p.state == types.ScenarioRunning {
			st.ActiveVUs = p.pool.ActiveCount()
		}
		st.Iterations = p.pool.TotalIterations()
	}
	return st
}

// States 返回所有阶段的状态快照，顺序与计划一致
func (s *Scheduler) States() []types.ScenarioStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ScenarioStatus, 0, len(s.phases))
	for _, p := range s.phases {
		out = append(out, s.statusLocked(p))
	}
	return out
}

// Current 返回正在运行的阶段，没有时返回 false
func (s *Scheduler) Current() (types.ScenarioStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.phases {
		if p.state == types.ScenarioRunning {
			return s.statusLocked(p), true
		}
	}
	return types.ScenarioStatus{}, false
}

// RunStart 返回运行开始时间，未开始时为零值
func (s *Scheduler) RunStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runStart
}
