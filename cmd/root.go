// Package cmd 提供 variant-bench CLI 的命令实现
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/variant-bench/internal/config"
	"yqhp/variant-bench/pkg/logger"

	// 导入所有输出插件
	_ "yqhp/variant-bench/pkg/output/all"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
   __   __         _             _     ___               _
   \ \ / /_ _ _ _(_)__ _ _ _ | |_  | _ ) ___ _ _  __| |_
    \ V / _' | '_| / _' | ' \|  _| | _ \/ -_) ' \/ _| ' \
     \_/\__,_|_| |_\__,_|_||_|\__| |___/\___|_||_\__|_||_| %s
`
)

// ExitCodeThresholdsFailed 阈值未通过时的退出码
const ExitCodeThresholdsFailed = 99

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// ExitError 携带进程退出码的错误
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "variant-bench",
	Short: "多变体对比压测工具",
	Long: `variant-bench 用完全相同的工作负载依次压测两个或多个功能等价的 HTTP 服务（变体），
按 (变体, 操作) 记录延迟分布与错误数，并在所有阶段结束后评估阈值。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 加载配置
func loadConfig(overrides map[string]string, variants []string) (*config.Config, error) {
	loader := config.NewLoader().
		WithConfigPath(cfgFile).
		WithCmdArgs(overrides).
		WithVariants(variants)

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogger 根据配置与全局 flags 初始化日志
func initLogger(cfg *config.Config) {
	logger.Init(cfg.LoggerConfig())
	switch {
	case debug:
		logger.EnableDebug()
	case quiet:
		logger.SetLevelFromString("warn")
	}
}
