package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/types"
)

// ConstantVUsMode 在固定时长内保持固定数量的 VU。
// 时长是软截止：迭代上下文不受截止时间约束，进行中的迭代会完整结束。
type ConstantVUsMode struct {
	stop *latch
	done *latch

	started atomic.Bool
	running atomic.Bool

	target     atomic.Int32
	active     atomic.Int32
	iterations atomic.Int64
	startedAt  atomic.Int64 // unix nano
	finishedAt atomic.Int64

	pool    *VUPool
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

// NewConstantVUsMode 创建 constant-vus 模式
func NewConstantVUsMode() *ConstantVUsMode {
	return &ConstantVUsMode{
		stop: newLatch(),
		done: newLatch(),
	}
}

// Name 返回 constant-vus
func (m *ConstantVUsMode) Name() types.ExecutionMode {
	return types.ModeConstantVUs
}

// Run 启动恰好 VUs 个 goroutine，在全部 VU 退出后返回
func (m *ConstantVUsMode) Run(ctx context.Context, config *ModeConfig) error {
	if err := config.validate(); err != nil {
		return err
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrModeAlreadyRunning
	}
	defer m.done.fire()

	m.pool = config.Pool
	if m.pool == nil {
		m.pool = NewVUPool(config.VUs)
	}
	if config.MaxRPS > 0 {
		// 突发为 1，迭代启动间隔均匀
		m.limiter = rate.NewLimiter(rate.Limit(config.MaxRPS), 1)
	}

	start := time.Now()
	deadline := start.Add(config.Duration)
	m.target.Store(int32(config.VUs))
	m.startedAt.Store(start.UnixNano())
	m.running.Store(true)
	defer func() {
		m.running.Store(false)
		m.finishedAt.Store(time.Now().UnixNano())
	}()

	for i := 0; i < config.VUs; i++ {
		vu := m.pool.Acquire(i)
		if vu == nil {
			m.stop.fire()
			m.wg.Wait()
			return fmt.Errorf("%w: vu %d", ErrPoolExhausted, i)
		}
		m.wg.Add(1)
		m.active.Add(1)
		go m.loop(ctx, vu, deadline, config)
	}

	m.wg.Wait()
	return ctx.Err()
}

// expired VU 是否应该退出
func (m *ConstantVUsMode) expired(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || m.stop.fired() || !time.Now().Before(deadline)
}

func (m *ConstantVUsMode) loop(ctx context.Context, vu *VU, deadline time.Time, config *ModeConfig) {
	hooks := config.Hooks
	if hooks.VUStarted != nil {
		hooks.VUStarted(vu.ID)
	}
	defer func() {
		m.pool.Release(vu)
		m.active.Add(-1)
		if hooks.VUStopped != nil {
			hooks.VUStopped(vu.ID)
		}
		m.wg.Done()
	}()

	for iteration := 0; !m.expired(ctx, deadline); iteration++ {
		if m.limiter != nil {
			// 等待令牌不能越过截止时间
			waitCtx, cancel := context.WithDeadline(ctx, deadline)
			err := m.limiter.Wait(waitCtx)
			cancel()
			if err != nil || m.expired(ctx, deadline) {
				return
			}
		}

		begin := time.Now()
		err := runIteration(ctx, vu.ID, iteration, config.IterationFunc)
		m.pool.RecordIteration(vu)
		m.iterations.Add(1)

		if hooks.IterationDone != nil {
			hooks.IterationDone(IterationResult{VUID: vu.ID, Iteration: iteration, Took: time.Since(begin), Err: err})
		}
	}
}

// runIteration 迭代中的 panic 记为该次迭代的错误，VU 继续运行
func runIteration(ctx context.Context, vuID, iteration int, fn IterationFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("VU %d 第 %d 次迭代 panic: %v", vuID, iteration, r)
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()
	return fn(ctx, vuID, iteration)
}

// Stop 请求停止。未启动时直接返回。
func (m *ConstantVUsMode) Stop(ctx context.Context) error {
	m.stop.fire()
	if !m.started.Load() {
		return nil
	}
	return m.done.wait(ctx)
}

// Progress 返回当前进度
func (m *ConstantVUsMode) Progress() Progress {
	p := Progress{
		TargetVUs:  int(m.target.Load()),
		ActiveVUs:  int(m.active.Load()),
		Iterations: m.iterations.Load(),
		Running:    m.running.Load(),
	}
	if ns := m.startedAt.Load(); ns > 0 {
		p.StartedAt = time.Unix(0, ns)
		end := time.Now()
		if f := m.finishedAt.Load(); f > 0 {
			end = time.Unix(0, f)
		}
		p.Elapsed = end.Sub(p.StartedAt)
	}
	return p
}
