package workload

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Input 是检查的输入
type Input struct {
	Status int
	// Body 是解析后的 JSON，解析失败时为 nil
	Body any
	// Consumed 是本次请求消费的上游值，没有时为空
	Consumed string
	// ConsumedValue 是 Consumed 的原始 JSON 值，没有时为 nil
	ConsumedValue any
}

// Check 响应检查。Evaluate 返回 nil 表示通过。
type Check interface {
	Name() string
	// NeedsBody 检查是否依赖已解析的响应体
	NeedsBody() bool
	Evaluate(in *Input) error
}

type funcCheck struct {
	name      string
	needsBody bool
	fn        func(in *Input) error
}

func (c *funcCheck) Name() string             { return c.name }
func (c *funcCheck) NeedsBody() bool          { return c.needsBody }
func (c *funcCheck) Evaluate(in *Input) error { return c.fn(in) }

// StatusIn 状态码必须在给定集合中
func StatusIn(codes ...int) Check {
	allowed := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		allowed[c] = struct{}{}
	}
	return &funcCheck{
		name: fmt.Sprintf("status in %v", codes),
		fn: func(in *Input) error {
			if _, ok := allowed[in.Status]; !ok {
				return fmt.Errorf("unexpected status %d", in.Status)
			}
			return nil
		},
	}
}

// NoErrors errors 字段不存在或为空数组
func NoErrors() Check {
	return &funcCheck{
		name:      "no errors",
		needsBody: true,
		fn: func(in *Input) error {
			obj, ok := in.Body.(map[string]any)
			if !ok {
				return nil
			}
			v, exists := obj["errors"]
			if !exists || v == nil {
				return nil
			}
			if arr, ok := v.([]any); ok && len(arr) == 0 {
				return nil
			}
			return fmt.Errorf("body contains errors: %s", Stringify(v))
		},
	}
}

// ErrorsAbsent errors 键不存在或为 null
func ErrorsAbsent() Check {
	return &funcCheck{
		name:      "errors absent",
		needsBody: true,
		fn: func(in *Input) error {
			obj, ok := in.Body.(map[string]any)
			if !ok {
				return nil
			}
			if v, exists := obj["errors"]; exists && v != nil {
				return fmt.Errorf("body contains errors: %s", Stringify(v))
			}
			return nil
		},
	}
}

// NonEmptyArray 响应体是非空数组
func NonEmptyArray() Check {
	return &funcCheck{
		name:      "non-empty array",
		needsBody: true,
		fn: func(in *Input) error {
			arr, ok := in.Body.([]any)
			if !ok {
				return fmt.Errorf("body is not an array")
			}
			if len(arr) == 0 {
				return fmt.Errorf("body is an empty array")
			}
			return nil
		},
	}
}

// HasField 路径上存在非 null 值
func HasField(path string) (Check, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("无效的 JSONPath %q: %w", path, err)
	}
	return &funcCheck{
		name:      "has " + path,
		needsBody: true,
		fn: func(in *Input) error {
			for _, v := range lookup(expr, in.Body) {
				if v != nil {
					return nil
				}
			}
			return fmt.Errorf("missing field %s", path)
		},
	}, nil
}

// Truthy 路径上的值按 JavaScript 规则为真，0 与空字符串不算
func Truthy(path string) (Check, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("无效的 JSONPath %q: %w", path, err)
	}
	return &funcCheck{
		name:      "truthy " + path,
		needsBody: true,
		fn: func(in *Input) error {
			results := lookup(expr, in.Body)
			if len(results) == 0 || !truthy(results[0]) {
				return fmt.Errorf("%s is missing or falsy", path)
			}
			return nil
		},
	}, nil
}

// NonEmptyAt 路径上的值是非空数组
func NonEmptyAt(path string) (Check, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("无效的 JSONPath %q: %w", path, err)
	}
	return &funcCheck{
		name:      "non-empty " + path,
		needsBody: true,
		fn: func(in *Input) error {
			results := lookup(expr, in.Body)
			if len(results) == 0 {
				return fmt.Errorf("missing field %s", path)
			}
			arr, ok := results[0].([]any)
			if !ok || len(arr) == 0 {
				return fmt.Errorf("%s is not a non-empty array", path)
			}
			return nil
		},
	}, nil
}

// EqualsConsumed 路径上的值严格等于消费的上游值，类型不同视为不等。
// 没有原始值时退回按字符串比较。
func EqualsConsumed(path string) (Check, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("无效的 JSONPath %q: %w", path, err)
	}
	return &funcCheck{
		name:      path + " equals consumed value",
		needsBody: true,
		fn: func(in *Input) error {
			results := lookup(expr, in.Body)
			if len(results) == 0 {
				return fmt.Errorf("missing field %s", path)
			}
			got := results[0]
			if in.ConsumedValue != nil {
				if !jsonEqual(got, in.ConsumedValue) {
					return fmt.Errorf("%s = %s, want %s", path, oj.JSON(got), oj.JSON(in.ConsumedValue))
				}
				return nil
			}
			if s := Stringify(got); s != in.Consumed {
				return fmt.Errorf("%s = %q, want %q", path, s, in.Consumed)
			}
			return nil
		},
	}, nil
}

// scriptCheck 使用 goja 执行 JavaScript 表达式，作用域中有 status、body、value。
type scriptCheck struct {
	source  string
	program *goja.Program
	// goja.Runtime 不是并发安全的，每个 VU 从池中取一个
	pool sync.Pool
}

// Script 编译 JavaScript 检查表达式，结果按 JS 真值判断
func Script(source string) (Check, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: 空脚本", ErrInvalidStep)
	}
	program, err := goja.Compile("check", source, false)
	if err != nil {
		return nil, fmt.Errorf("编译检查脚本失败: %w", err)
	}
	return &scriptCheck{
		source:  source,
		program: program,
		pool: sync.Pool{
			New: func() any { return goja.New() },
		},
	}, nil
}

func (c *scriptCheck) Name() string    { return "script: " + c.source }
func (c *scriptCheck) NeedsBody() bool { return true }

func (c *scriptCheck) Evaluate(in *Input) error {
	vm := c.pool.Get().(*goja.Runtime)
	defer c.pool.Put(vm)

	if err := vm.Set("status", in.Status); err != nil {
		return err
	}
	if err := vm.Set("body", in.Body); err != nil {
		return err
	}
	if err := vm.Set("value", in.Consumed); err != nil {
		return err
	}

	v, err := vm.RunProgram(c.program)
	if err != nil {
		return fmt.Errorf("script error: %w", err)
	}
	if !v.ToBoolean() {
		return fmt.Errorf("script returned %s", v.String())
	}
	return nil
}
