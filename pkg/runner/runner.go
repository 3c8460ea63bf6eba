// Package runner 是一次对比压测的统一执行入口。
//
// Pipeline: Config → Preflight → Scheduler → Registry → samplesChan → Outputs
//
//	→ [Thresholds + Report + Status server]
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"yqhp/variant-bench/api/rest"
	"yqhp/variant-bench/internal/config"
	"yqhp/variant-bench/internal/execution"
	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/internal/promexport"
	"yqhp/variant-bench/internal/report"
	"yqhp/variant-bench/internal/scheduler"
	"yqhp/variant-bench/internal/threshold"
	"yqhp/variant-bench/internal/workload"
	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/output"
	"yqhp/variant-bench/pkg/types"
)

// Options 一次运行的参数
type Options struct {
	// Config 已加载的配置（必需），Run 会再次校验
	Config *config.Config

	// RunID 为空时生成 UUID
	RunID string

	// OnPhaseStart 阶段开始时回调
	OnPhaseStart func(status types.ScenarioStatus)

	// OnPhaseComplete 阶段完成后回调，result 为只涉及该变体的规则判定，
	// 该变体仍有未完成阶段时为 nil
	OnPhaseComplete func(status types.ScenarioStatus, result *threshold.Result)

	// TimelineInterval 时间线采样间隔，默认 1s
	TimelineInterval time.Duration
}

// Result 运行结果
type Result struct {
	Report     *types.RunReport
	Thresholds *threshold.Result
	Registry   *metrics.Registry
}

// Passed 运行完整结束且全部阈值通过
func (r *Result) Passed() bool {
	return r.Report != nil && r.Report.Verdict == types.VerdictPass
}

// Run 执行配置描述的全部阶段。
// 预检或配置错误时不启动任何阶段；运行被取消时仍生成报告并返回 ctx 错误。
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	reg, err := metrics.NewRegistryWithStorage(cfg.Storage(), cfg.Metrics.HDRSignificantFigures)
	if err != nil {
		return nil, fmt.Errorf("创建指标注册表失败: %w", err)
	}

	probeCfg := cfg.ProbeConfig()
	p, err := probe.New(&probeCfg, reg)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 探针失败: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	plan := cfg.Plan()
	rules, err := cfg.Rules(catalog, plan)
	if err != nil {
		return nil, err
	}
	variants := cfg.TypedVariants()

	if cfg.Preflight.Enabled {
		if err := probe.Preflight(ctx, variants, cfg.Preflight.Timeout); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPreflight, err)
		}
	}

	factory := newIterationFactory(catalog, p, reg, workload.Options{
		CountParseFailuresAsErrors: cfg.Metrics.CountParseFailuresAsErrors,
	})

	var sched *scheduler.Scheduler
	sched, err = scheduler.New(plan, variants, factory, scheduler.Options{
		OnPhaseStart: opts.OnPhaseStart,
		OnPhaseComplete: func(st types.ScenarioStatus) {
			res := evaluatePhase(rules, reg, st, sched.States())
			if opts.OnPhaseComplete != nil {
				opts.OnPhaseComplete(st, res)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	outs, err := startOutputs(ctx, cfg, reg, runID)
	if err != nil {
		return nil, err
	}

	collector := report.NewCollector(reg, sched, opts.TimelineInterval)

	srvCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	if cfg.Status.Address != "" {
		startStatusServer(srvCtx, cfg.Status.Address, sched, reg, collector)
	}

	logger.Info("开始运行 %s: %d 个阶段, 工作负载 %s, 计划时长 %s",
		runID, len(plan.Scenarios), cfg.Run.Workload, plan.TotalDuration())

	collector.Start(ctx)
	start := time.Now()
	runErr := sched.Run(ctx)
	end := time.Now()
	collector.Stop()

	states := sched.States()
	finishOutputs(outs, output.RunStatus{
		State:      runState(runErr),
		Elapsed:    end.Sub(start),
		Iterations: totalIterations(states),
		Err:        runErr,
	})

	thresholds := evaluateFinal(rules, reg, states)

	r := report.Build(report.Input{
		RunID:     runID,
		Name:      cfg.Run.Name,
		Workload:  cfg.Run.Workload,
		Variants:  variants,
		Registry:  reg,
		States:    states,
		Result:    thresholds,
		StartTime: start,
		EndTime:   end,
		Timeline:  collector.Points(),
	})

	if cfg.Report.Path != "" {
		if err := report.WriteFile(cfg.Report.Path, r); err != nil {
			logger.Error("写入报告失败: %v", err)
		} else {
			logger.Info("报告已写入 %s", cfg.Report.Path)
		}
	}

	return &Result{Report: r, Thresholds: thresholds, Registry: reg}, runErr
}

// newIterationFactory 为每个阶段创建一个工作负载执行器，每次迭代执行一个工作负载实例
func newIterationFactory(catalog *workload.Catalog, p *probe.Probe, reg *metrics.Registry, wopts workload.Options) scheduler.IterationFactory {
	return func(sc types.Scenario, variant types.Variant) (execution.IterationFunc, error) {
		w, err := catalog.Get(sc.Workload)
		if err != nil {
			return nil, err
		}
		r, err := workload.NewRunner(w, p, reg, wopts)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, vuID, iteration int) error {
			_, err := r.Run(ctx, variant)
			return err
		}, nil
	}
}

// evaluatePhase 阶段完成后评估只涉及该变体的规则，变体仍有未完成阶段时返回 nil
func evaluatePhase(rules []threshold.Rule, reg *metrics.Registry, st types.ScenarioStatus, states []types.ScenarioStatus) *threshold.Result {
	var scoped []threshold.Rule
	for _, r := range rules {
		if r.Filter.Variant == st.Variant {
			scoped = append(scoped, r)
		}
	}

	res, err := threshold.EvaluateCompleted(scoped, reg, states)
	if err != nil {
		return nil
	}
	for _, rr := range res.Rules {
		logger.L().Info("threshold",
			zap.String("phase", st.Name),
			zap.String("rule", rr.Rule.String()),
			zap.Float64("observed", rr.Observed),
			zap.String("verdict", string(rr.Verdict)))
	}
	return res
}

// evaluateFinal 评估全部窗口已关闭的规则。
// 运行被取消时，涉及未完成阶段的规则不评估，报告的结论由中止决定。
func evaluateFinal(rules []threshold.Rule, reg *metrics.Registry, states []types.ScenarioStatus) *threshold.Result {
	res, err := threshold.EvaluateCompleted(rules, reg, states)
	if err == nil {
		return res
	}

	closed := make([]threshold.Rule, 0, len(rules))
	for _, r := range rules {
		if _, err := threshold.EvaluateCompleted([]threshold.Rule{r}, reg, states); !errors.Is(err, threshold.ErrWindowOpen) {
			closed = append(closed, r)
		}
	}
	return threshold.Evaluate(closed, reg)
}

// startOutputs 未配置输出时返回 nil，*output.Manager 的 nil 值由 finishOutputs 处理
func startOutputs(ctx context.Context, cfg *config.Config, reg *metrics.Registry, runID string) (*output.Manager, error) {
	if len(cfg.Outputs) == 0 {
		return nil, nil
	}

	specs := make([]output.Spec, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		specs = append(specs, output.Spec{Type: oc.Type, Arg: oc.Config})
	}

	outs, err := output.CreateOutputs(ctx, specs, output.Params{
		Logger:  logger.Printf{},
		RunID:   runID,
		RunName: cfg.Run.Name,
		Tags:    map[string]string{"run_id": runID},
	})
	if err != nil {
		return nil, err
	}

	manager := output.NewManager(outs, logger.Printf{})
	if err := manager.Start(); err != nil {
		return nil, err
	}
	manager.Attach(reg)
	return manager, nil
}

func finishOutputs(m *output.Manager, status output.RunStatus) {
	if m != nil {
		m.Finish(status)
	}
}

func startStatusServer(ctx context.Context, addr string, sched *scheduler.Scheduler, reg *metrics.Registry, collector *report.Collector) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		promexport.NewCollector(reg, sched),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srvCfg := rest.DefaultConfig()
	srvCfg.Address = addr
	srv := rest.NewServer(sched, reg, promReg, srvCfg, rest.WithTimeline(collector))

	go func() {
		if err := srv.StartWithContext(ctx); err != nil {
			logger.Error("状态服务异常退出: %v", err)
		}
	}()
	logger.Info("状态服务监听 %s", addr)
}

func totalIterations(states []types.ScenarioStatus) int64 {
	var n int64
	for _, st := range states {
		n += st.Iterations
	}
	return n
}

func runState(err error) output.RunState {
	switch {
	case err == nil:
		return output.RunCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.RunAborted
	}
	return output.RunFailed
}
