package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"yqhp/variant-bench/pkg/types"
)

// WriteFile 把报告以缩进 JSON 写入文件，必要时创建目录
func WriteFile(path string, r *types.RunReport) error {
	data, err := sonic.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建报告目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入报告失败: %w", err)
	}
	return nil
}

// ReadFile 读取 JSON 报告
func ReadFile(path string) (*types.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取报告失败: %w", err)
	}
	var r types.RunReport
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return &r, nil
}
