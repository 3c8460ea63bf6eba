package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// workloadsCmd 列出内置与配置中的工作负载
var workloadsCmd = &cobra.Command{
	Use:   "workloads",
	Short: "列出可用的工作负载及其步骤",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil, nil)
		if err != nil {
			return err
		}
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, w := range catalog.List() {
			kind := "custom"
			if catalog.IsBuiltin(w.Name) {
				kind = "builtin"
			}
			fmt.Fprintf(out, "%s [%s]\n", w.Name, kind)
			if w.Description != "" {
				fmt.Fprintf(out, "  %s\n", w.Description)
			}
			for _, step := range w.Steps {
				line := fmt.Sprintf("  - %-16s %-6s %s", step.Operation, step.Method, step.Path)
				if step.Consumes != "" {
					line += " (each id from " + step.Consumes + ")"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workloadsCmd)
}
