package types

import "strings"

// Variant 表示一个被测系统（名称 + 基础 URL）。
// 配置加载后不可变。
type Variant struct {
	Name    string `yaml:"name" json:"name"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// URL 拼接基础 URL 与请求路径。
func (v Variant) URL(path string) string {
	base := strings.TrimRight(v.BaseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// String 返回变体名称。
func (v Variant) String() string {
	return v.Name
}
