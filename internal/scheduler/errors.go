package scheduler

import "errors"

var (
	// ErrEmptyPlan 计划中没有场景
	ErrEmptyPlan = errors.New("plan has no scenarios")
	// ErrPhaseOverlap 相邻阶段在时间上重叠或偏移递减
	ErrPhaseOverlap = errors.New("phases overlap")
	// ErrInvalidScenario 场景参数不合法
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrUnknownVariant 场景引用了未配置的变体
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrUnknownWorkload 场景引用了未知的工作负载
	ErrUnknownWorkload = errors.New("unknown workload")
	// ErrNilIterationFactory 未提供迭代工厂
	ErrNilIterationFactory = errors.New("scheduler: nil iteration factory")
)
