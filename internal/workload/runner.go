package workload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// Prober 执行单个请求
type Prober interface {
	Execute(ctx context.Context, variant types.Variant, req probe.Request) *probe.Result
}

// Options 运行选项
type Options struct {
	// CountParseFailuresAsErrors 为 true 时解析失败同时计入 errors
	CountParseFailuresAsErrors bool
}

// Summary 单个工作负载实例的执行摘要
type Summary struct {
	Requests  int
	Failures  int
	Outcomes  map[types.Outcome]int
	Projected map[string][]string

	// projectedRaw 与 Projected 一一对应，保留 JSON 类型
	projectedRaw map[string][]any
}

func newSummary() *Summary {
	return &Summary{
		Outcomes:  make(map[types.Outcome]int),
		Projected: make(map[string][]string),

		projectedRaw: make(map[string][]any),
	}
}

// Runner 执行工作负载实例。Runner 无状态，可被多个 VU 并发使用。
type Runner struct {
	workload *Workload
	prober   Prober
	registry *metrics.Registry
	opts     Options
}

// NewRunner 创建执行器，工作负载必须通过校验
func NewRunner(w *Workload, p Prober, registry *metrics.Registry, opts Options) (*Runner, error) {
	if p == nil {
		return nil, ErrNilProbe
	}
	if registry == nil {
		return nil, probe.ErrNilRegistry
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		workload: w,
		prober:   p,
		registry: registry,
		opts:     opts,
	}, nil
}

// Workload 返回执行的工作负载
func (r *Runner) Workload() *Workload {
	return r.workload
}

// Run 执行一个工作负载实例。
// 请求失败不会中止实例，只有上下文取消会提前返回。
func (r *Runner) Run(ctx context.Context, variant types.Variant) (*Summary, error) {
	summary := newSummary()

	for _, step := range r.workload.Steps {
		if step.Consumes == "" {
			if err := r.execute(ctx, variant, step, nil, summary); err != nil {
				return summary, err
			}
			continue
		}
		// 扇出：每个投影值执行一次，没有值时不执行
		for _, value := range summary.projectedRaw[step.Consumes] {
			if err := r.execute(ctx, variant, step, value, summary); err != nil {
				return summary, err
			}
		}
	}

	r.inc(types.MetricIterations, metrics.Tags{Variant: variant.Name, Operation: r.workload.Name})
	return summary, nil
}

// execute 按策略执行单个请求并记录结果
func (r *Runner) execute(ctx context.Context, variant types.Variant, step *Step, value any, summary *Summary) error {
	consumed := Stringify(value)
	tags := metrics.Tags{Variant: variant.Name, Operation: step.Operation}

	req := probe.Request{
		Method:    step.Method,
		Path:      step.RenderPath(consumed),
		Operation: step.Operation,
	}
	if step.Body != nil {
		body, err := step.Body(variant, consumed)
		if err != nil {
			return fmt.Errorf("生成 %s 请求体失败: %w", step.Operation, err)
		}
		req.Body = body
	}

	res := r.prober.Execute(ctx, variant, req)
	if res.NotSent {
		return res.Err
	}

	summary.Requests++
	if step.CountsAsRead {
		r.inc(types.MetricTotalReads, tags)
	}

	outcome, values := r.classify(step, res, consumed, value, tags)
	summary.Outcomes[outcome]++
	if outcome != types.OutcomeSuccess {
		summary.Failures++
	}
	if step.Project != nil {
		for _, v := range values {
			summary.Projected[step.Operation] = append(summary.Projected[step.Operation], Stringify(v))
		}
		summary.projectedRaw[step.Operation] = append(summary.projectedRaw[step.Operation], values...)
	}
	return nil
}

// classify 依次判断：传输失败、状态检查、JSON 解析、其余检查。errors 每个请求最多加一次。
func (r *Runner) classify(step *Step, res *probe.Result, consumed string, value any, tags metrics.Tags) (types.Outcome, []any) {
	if !res.Responded() {
		// 探针已经计入 errors 与 transport_failures
		return types.OutcomeTransportFailure, nil
	}

	in := &Input{Status: res.StatusCode, Body: res.Parsed, Consumed: consumed, ConsumedValue: value}

	var statusFailed []string
	for _, c := range step.Checks {
		if c.NeedsBody() {
			continue
		}
		if err := c.Evaluate(in); err != nil {
			statusFailed = append(statusFailed, c.Name()+": "+err.Error())
		}
	}
	if len(statusFailed) > 0 {
		r.fail(tags, statusFailed)
		return types.OutcomeApplicationFailure, nil
	}

	if step.needsBody() && res.ParseErr != nil {
		r.inc(types.MetricParseFailures, tags)
		if r.opts.CountParseFailuresAsErrors {
			r.inc(types.MetricErrors, tags)
		}
		r.rate(tags, false)
		logger.L().Debug("response is not valid JSON",
			zap.String("variant", tags.Variant),
			zap.String("operation", tags.Operation),
			zap.Error(res.ParseErr))
		return types.OutcomeParseFailure, nil
	}

	var failed []string
	for _, c := range step.Checks {
		if !c.NeedsBody() {
			continue
		}
		if err := c.Evaluate(in); err != nil {
			failed = append(failed, c.Name()+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		r.fail(tags, failed)
		return types.OutcomeApplicationFailure, nil
	}

	r.rate(tags, true)
	if step.Project == nil {
		return types.OutcomeSuccess, nil
	}
	return types.OutcomeSuccess, step.Project.Raw(res.Parsed)
}

// fail 记录一次应用失败
func (r *Runner) fail(tags metrics.Tags, failed []string) {
	r.inc(types.MetricErrors, tags)
	r.rate(tags, false)
	if logger.IsDebugEnabled() {
		logger.L().Debug("checks failed",
			zap.String("variant", tags.Variant),
			zap.String("operation", tags.Operation),
			zap.Strings("checks", failed))
	}
}

func (r *Runner) inc(name string, tags metrics.Tags) {
	if err := r.registry.Increment(name, tags, 1); err != nil {
		logger.Warn("记录指标 %s 失败: %v", name, err)
	}
}

func (r *Runner) rate(tags metrics.Tags, ok bool) {
	if err := r.registry.AddRate(types.MetricChecks, tags, ok); err != nil {
		logger.Warn("记录检查结果失败: %v", err)
	}
}
