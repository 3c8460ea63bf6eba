// Package workload 定义由依赖步骤组成的工作负载：检查词汇、JSONPath 投影、内置参考负载以及 YAML 自定义负载。
package workload

import (
	"fmt"
	"net/url"
	"regexp"

	"yqhp/variant-bench/pkg/types"
)

// BodyFunc 生成请求体，consumed 为本次消费的上游值
type BodyFunc func(variant types.Variant, consumed string) ([]byte, error)

// Step 工作负载中的一个步骤
type Step struct {
	// Operation 是指标标签，也是步骤在工作负载内的唯一标识
	Operation string
	Method    string
	// Path 可以包含 {name} 占位符，替换为转义后的消费值
	Path string
	Body BodyFunc
	// Consumes 引用之前某个步骤的 Operation，为空表示只执行一次
	Consumes     string
	Checks       []Check
	Project      *Projection
	CountsAsRead bool
}

var placeholderRe = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// RenderPath 用路径转义后的值替换全部占位符
func (s *Step) RenderPath(consumed string) string {
	if consumed == "" && s.Consumes == "" {
		return s.Path
	}
	escaped := url.PathEscape(consumed)
	return placeholderRe.ReplaceAllLiteralString(s.Path, escaped)
}

// needsBody 步骤是否需要解析后的响应体
func (s *Step) needsBody() bool {
	if s.Project != nil {
		return true
	}
	for _, c := range s.Checks {
		if c.NeedsBody() {
			return true
		}
	}
	return false
}

// Workload 有限、有序的步骤列表
type Workload struct {
	Name        string
	Description string
	Steps       []*Step
}

// Operations 返回全部操作名（按步骤顺序）
func (w *Workload) Operations() []string {
	ops := make([]string, 0, len(w.Steps))
	for _, s := range w.Steps {
		ops = append(ops, s.Operation)
	}
	return ops
}

// ReadOperations 返回计入读取次数的操作名
func (w *Workload) ReadOperations() []string {
	var ops []string
	for _, s := range w.Steps {
		if s.CountsAsRead {
			ops = append(ops, s.Operation)
		}
	}
	return ops
}

// Validate 校验步骤只能消费之前步骤的投影
func (w *Workload) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: 工作负载名称不能为空", ErrInvalidStep)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("%s: %w", w.Name, ErrEmptyWorkload)
	}

	index := make(map[string]int, len(w.Steps))
	for i, s := range w.Steps {
		if s == nil || s.Operation == "" {
			return fmt.Errorf("%s 第 %d 步: %w: 缺少 operation", w.Name, i+1, ErrInvalidStep)
		}
		if s.Path == "" {
			return fmt.Errorf("%s.%s: %w: 缺少 path", w.Name, s.Operation, ErrInvalidStep)
		}
		if _, dup := index[s.Operation]; dup {
			return fmt.Errorf("%s.%s: %w", w.Name, s.Operation, ErrDuplicateOperation)
		}
		index[s.Operation] = i
	}

	for i, s := range w.Steps {
		if s.Consumes == "" {
			if placeholderRe.MatchString(s.Path) {
				return fmt.Errorf("%s.%s: %w", w.Name, s.Operation, ErrUnboundPlaceholder)
			}
			continue
		}
		j, ok := index[s.Consumes]
		if !ok {
			return fmt.Errorf("%s.%s consumes %q: %w", w.Name, s.Operation, s.Consumes, ErrUnknownStep)
		}
		if j >= i {
			return fmt.Errorf("%s.%s consumes %q: %w", w.Name, s.Operation, s.Consumes, ErrForwardReference)
		}
		if w.Steps[j].Project == nil {
			return fmt.Errorf("%s.%s consumes %q: %w", w.Name, s.Operation, s.Consumes, ErrNoProjection)
		}
	}
	return nil
}
