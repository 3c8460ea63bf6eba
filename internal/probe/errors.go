package probe

import "errors"

var (
	// ErrNilRegistry 未提供指标注册表
	ErrNilRegistry = errors.New("probe: nil metrics registry")
	// ErrEmptyBody 响应体为空，无法解析为 JSON
	ErrEmptyBody = errors.New("empty response body")
	// ErrInvalidVariantURL 变体 URL 无法用于压测
	ErrInvalidVariantURL = errors.New("invalid variant url")
)
