package threshold

import "errors"

var (
	// ErrInvalidCondition 条件表达式无法解析
	ErrInvalidCondition = errors.New("invalid threshold condition")
	// ErrInvalidRule 规则缺少指标或含未知标签
	ErrInvalidRule = errors.New("invalid threshold rule")
	// ErrWindowOpen 规则涉及的变体尚未完成
	ErrWindowOpen = errors.New("measurement window still open")
)
