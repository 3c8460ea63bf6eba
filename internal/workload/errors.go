package workload

import "errors"

var (
	// ErrEmptyWorkload 工作负载没有步骤
	ErrEmptyWorkload = errors.New("workload has no steps")
	// ErrInvalidStep 步骤缺少必填字段
	ErrInvalidStep = errors.New("invalid step")
	// ErrUnknownStep 引用了不存在的步骤
	ErrUnknownStep = errors.New("unknown step")
	// ErrForwardReference 步骤引用了自身或之后的步骤
	ErrForwardReference = errors.New("step consumes itself or a later step")
	// ErrDuplicateOperation 同一工作负载中的操作名重复
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrNoProjection 被引用的步骤没有投影
	ErrNoProjection = errors.New("consumed step has no projection")
	// ErrUnboundPlaceholder 路径模板有占位符但步骤不消费任何值
	ErrUnboundPlaceholder = errors.New("path placeholder without consumed value")
	// ErrUnknownWorkload 未知的工作负载
	ErrUnknownWorkload = errors.New("unknown workload")
	// ErrDuplicateWorkload 工作负载重名
	ErrDuplicateWorkload = errors.New("duplicate workload")
	// ErrNilProbe 未提供探针
	ErrNilProbe = errors.New("workload: nil probe")
)
