// Package output 定义样本输出插件。插件在 init 中注册，
// 运行期间通过 Manager 批量接收注册表产生的样本。
package output

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"yqhp/variant-bench/pkg/metrics"
)

// Output 样本输出插件
type Output interface {
	Description() string

	// Start 在第一个样本到达前调用一次
	Start() error

	// Stop 在最后一批样本之后调用，返回前必须写出全部缓冲
	Stop() error

	// AddMetricSamples 由 Manager 的分发协程调用，不能阻塞太久
	AddMetricSamples(samples []metrics.SampleContainer)

	// SetRunStatus 在 Stop 之前调用
	SetRunStatus(status RunStatus)
}

// RunState 运行结束时的状态
type RunState string

const (
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunAborted   RunState = "aborted"
)

// RunStatus 运行结束时传给输出的汇总
type RunStatus struct {
	State      RunState
	Elapsed    time.Duration
	Iterations int64
	Err        error
}

// Params 创建输出时的参数
type Params struct {
	// Type 输出类型，由 Create 填充
	Type string
	// Arg 命令行 type=arg 中的 arg，如文件路径或 URL
	Arg string

	Logger  Logger
	RunID   string
	RunName string
	// Tags 附加到每个样本的全局标签
	Tags map[string]string
}

// Logger printf 风格的日志接口，logger.Printf 实现了它
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Factory 输出工厂
type Factory func(params Params) (Output, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register 注册输出工厂，同名覆盖
func Register(typ string, factory Factory) {
	factoriesMu.Lock()
	factories[typ] = factory
	factoriesMu.Unlock()
}

// Lookup 查找输出工厂
func Lookup(typ string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

// Types 已注册的输出类型（有序）
func Types() []string {
	factoriesMu.RLock()
	types := make([]string, 0, len(factories))
	for typ := range factories {
		types = append(types, typ)
	}
	factoriesMu.RUnlock()
	sort.Strings(types)
	return types
}

// Create 创建一个输出实例
func Create(ctx context.Context, typ string, params Params) (Output, error) {
	factory, ok := Lookup(typ)
	if !ok {
		return nil, &UnknownOutputError{Type: typ, Known: Types()}
	}
	params.Type = typ
	return factory(params)
}

// ParseArgument 拆分 -o 参数，如 "json=samples.json" 或 "console"
func ParseArgument(arg string) (typ, value string) {
	typ, value, _ = strings.Cut(arg, "=")
	return strings.TrimSpace(typ), strings.TrimSpace(value)
}

// UnknownOutputError 未注册的输出类型
type UnknownOutputError struct {
	Type  string
	Known []string
}

func (e *UnknownOutputError) Error() string {
	if len(e.Known) == 0 {
		return "未知的输出类型: " + e.Type
	}
	return "未知的输出类型: " + e.Type + " (可用: " + strings.Join(e.Known, ", ") + ")"
}
