package execution

import (
	"context"
	"sync"
	"time"

	"yqhp/variant-bench/pkg/types"
)

// IterationFunc 执行一次迭代，iteration 按 VU 从 0 计数
type IterationFunc func(ctx context.Context, vuID int, iteration int) error

// IterationResult 一次迭代的结果
type IterationResult struct {
	VUID      int
	Iteration int
	Took      time.Duration
	Err       error
}

// Hooks VU 生命周期回调，均可为空，在 VU 自己的 goroutine 中调用
type Hooks struct {
	VUStarted     func(vuID int)
	VUStopped     func(vuID int)
	IterationDone func(r IterationResult)
}

// ModeConfig 一个阶段的执行参数
type ModeConfig struct {
	VUs int

	// Duration 是软截止：到达后不再开始新迭代，进行中的迭代会跑完
	Duration time.Duration

	// MaxRPS 所有 VU 合计的迭代启动速率上限，0 表示不限制
	MaxRPS float64

	// Pool 为空时按 VUs 创建
	Pool *VUPool

	IterationFunc IterationFunc
	Hooks         Hooks
}

func (c *ModeConfig) validate() error {
	switch {
	case c == nil:
		return ErrNilConfig
	case c.IterationFunc == nil:
		return ErrNilIterationFunc
	case c.VUs < 1:
		return ErrInvalidVUs
	case c.Duration <= 0:
		return ErrInvalidDuration
	case c.MaxRPS < 0:
		return ErrInvalidRate
	}
	return nil
}

// Progress 执行进度快照
type Progress struct {
	TargetVUs  int
	ActiveVUs  int
	Iterations int64
	Running    bool
	StartedAt  time.Time
	Elapsed    time.Duration
}

// Mode 执行模式。每个实例只能 Run 一次。
type Mode interface {
	Name() types.ExecutionMode

	// Run 阻塞直到全部 VU 退出，ctx 被取消时返回 ctx.Err()
	Run(ctx context.Context, config *ModeConfig) error

	// Stop 让 VU 不再开始新迭代并等待 Run 结束
	Stop(ctx context.Context) error

	Progress() Progress
}

// latch 只触发一次的信号
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) fire() {
	l.once.Do(func() { close(l.ch) })
}

func (l *latch) fired() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

func (l *latch) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	}
}
