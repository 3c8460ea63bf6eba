package runner

import "errors"

var (
	// ErrNilConfig 未提供配置
	ErrNilConfig = errors.New("配置不能为空")
	// ErrPreflight 启动前连通性检查失败
	ErrPreflight = errors.New("预检失败")
	// ErrThresholdsFailed 至少一条阈值规则未通过
	ErrThresholdsFailed = errors.New("阈值检查未通过")
)
