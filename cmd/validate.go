package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateVariants []string

// validateCmd 校验配置并打印解析后的计划与规则
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验配置并显示执行计划与阈值规则",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil, validateVariants)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("配置校验失败: %w", err)
		}

		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		plan := cfg.Plan()
		rules, err := cfg.Rules(catalog, plan)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "配置有效，共 %d 个阶段，总计划时长 %s\n\n", len(plan.Scenarios), plan.TotalDuration())
		fmt.Fprintln(out, "阶段:")
		for i, sc := range plan.Scenarios {
			fmt.Fprintf(out, "  %d. %s variant=%s workload=%s vus=%d duration=%s offset=%s\n",
				i+1, sc.Name, sc.Variant, sc.Workload, sc.VUs, sc.Duration, sc.StartOffset)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "阈值规则:")
		if len(rules) == 0 {
			fmt.Fprintln(out, "  (无)")
		}
		for _, r := range rules {
			fmt.Fprintf(out, "  %s\n", r)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringArrayVar(&validateVariants, "variant", nil, "被测变体 name=url (可多次指定)")
}
