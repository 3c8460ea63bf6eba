package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/variant-bench/internal/config"
	"yqhp/variant-bench/internal/report"
	"yqhp/variant-bench/internal/threshold"
	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/output"
	"yqhp/variant-bench/pkg/runner"
	"yqhp/variant-bench/pkg/types"
)

var (
	// run 命令的 flags
	runVUs         int
	runDuration    time.Duration
	runWorkload    string
	runVariants    []string
	runOutputs     []string
	runJSONOutput  string
	runStatusAddr  string
	runMaxRPS      float64
	runNoPreflight bool
	runNoColor     bool
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "依次压测所有变体并比较结果",
	Long: `按计划依次运行每个变体的阶段，阶段之间严格串行。

内置工作负载：
  - read-heavy: GET /posts，然后按列表中的每个 id GET /posts/{id}
  - join-heavy: 带评论关联的列表与详情读取
  - write-and-read: POST /posts 后按返回的 id 读取

全部阈值通过时退出码为 0，阈值未通过时为 99，其他错误为 1。`,
	Example: `  # 对比两个变体
  variant-bench run --variant prisma6=http://localhost:8084 --variant prisma7=http://localhost:8085

  # 指定 VU 数、持续时间和工作负载
  variant-bench run -c bench.yaml -u 100 -d 2m -w join-heavy

  # 输出样本与报告
  variant-bench run -c bench.yaml --out json=samples.json --out console --out-json report.json

  # 运行期间暴露 /status 与 /metrics
  variant-bench run -c bench.yaml --status-addr :6565`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runVUs, "vus", "u", 0, "每个阶段的虚拟用户数 (覆盖配置)")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "每个阶段的持续时间 (覆盖配置)")
	runCmd.Flags().StringVarP(&runWorkload, "workload", "w", "", "工作负载名称 (覆盖配置)")
	runCmd.Flags().StringArrayVar(&runVariants, "variant", nil, "被测变体 name=url (可多次指定，替换配置中的变体)")
	runCmd.Flags().StringArrayVarP(&runOutputs, "out", "o", nil, "样本输出目标 (可多次指定)，格式: type=config")
	runCmd.Flags().StringVar(&runJSONOutput, "out-json", "", "写入 JSON 报告的文件路径")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "状态服务监听地址，如 :6565")
	runCmd.Flags().Float64Var(&runMaxRPS, "max-rps", 0, "每个阶段的迭代速率上限，0 表示不限制")
	runCmd.Flags().BoolVar(&runNoPreflight, "no-preflight", false, "跳过启动前的连通性检查")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "摘要不使用颜色")
}

// runOverrides 把显式设置的 flags 转换为配置的点路径覆盖
func runOverrides(cmd *cobra.Command) map[string]string {
	flags := cmd.Flags()
	overrides := make(map[string]string)

	if flags.Changed("vus") {
		overrides["run.vus"] = strconv.Itoa(runVUs)
	}
	if flags.Changed("duration") {
		overrides["run.duration"] = runDuration.String()
	}
	if flags.Changed("workload") {
		overrides["run.workload"] = runWorkload
	}
	if flags.Changed("max-rps") {
		overrides["run.max_rps"] = strconv.FormatFloat(runMaxRPS, 'f', -1, 64)
	}
	if flags.Changed("out-json") {
		overrides["report.path"] = runJSONOutput
	}
	if flags.Changed("status-addr") {
		overrides["status.address"] = runStatusAddr
	}
	if flags.Changed("no-preflight") {
		overrides["preflight.enabled"] = strconv.FormatBool(!runNoPreflight)
	}
	return overrides
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runOverrides(cmd), runVariants)
	if err != nil {
		return err
	}
	for _, o := range runOutputs {
		typ, arg := output.ParseArgument(o)
		cfg.Outputs = append(cfg.Outputs, config.OutputConfig{Type: typ, Config: arg})
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	initLogger(cfg)
	defer logger.Sync()

	// 处理关闭信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if !quiet {
		printRunInfo(out, cfg)
	}

	res, runErr := runner.Run(ctx, runner.Options{
		Config: cfg,
		OnPhaseStart: func(st types.ScenarioStatus) {
			if !quiet {
				fmt.Fprintf(out, "▶ %s (%s) %d VUs, %s\n", st.Name, st.Variant, st.VUs, st.Duration)
			}
		},
		OnPhaseComplete: func(st types.ScenarioStatus, r *threshold.Result) {
			if !quiet {
				printPhaseResult(out, st, r)
			}
		},
	})

	if res != nil && !quiet {
		report.NewSummary(out, !runNoColor).Print(res.Report)
	}
	if runErr != nil {
		return fmt.Errorf("运行失败: %w", runErr)
	}
	if !res.Passed() {
		failed := 0
		if res.Thresholds != nil {
			failed = len(res.Thresholds.Failed())
		}
		return &ExitError{
			Code: ExitCodeThresholdsFailed,
			Err:  fmt.Errorf("%w: %d 条规则失败", runner.ErrThresholdsFailed, failed),
		}
	}
	return nil
}

func printRunInfo(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, Banner, Version)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  运行: %s\n", cfg.Run.Name)
	fmt.Fprintf(w, "  工作负载: %s\n", cfg.Run.Workload)
	for _, v := range cfg.TypedVariants() {
		fmt.Fprintf(w, "  变体: %s → %s\n", v.Name, v.BaseURL)
	}
	fmt.Fprintf(w, "  虚拟用户数: %d\n", cfg.Run.VUs)
	fmt.Fprintf(w, "  持续时间: %s\n", cfg.Run.Duration)
	if cfg.Run.MaxRPS > 0 {
		fmt.Fprintf(w, "  速率上限: %.1f/s\n", cfg.Run.MaxRPS)
	}
	fmt.Fprintf(w, "  分布存储: %s\n", cfg.Storage())
	fmt.Fprintln(w)
}

func printPhaseResult(w io.Writer, st types.ScenarioStatus, r *threshold.Result) {
	fmt.Fprintf(w, "■ %s 完成: %d iterations, %s\n",
		st.Name, st.Iterations, st.CompletedAt.Sub(st.StartedAt).Round(time.Millisecond))
	if r == nil {
		return
	}
	for _, rr := range r.Rules {
		fmt.Fprintf(w, "    %s %s\n", rr.Verdict, rr.Rule)
	}
}
