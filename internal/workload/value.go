package workload

import (
	"math"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Stringify 把 JSON 值转换为字符串，数字不使用指数形式
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return oj.JSON(x)
	}
}

// Projection 从响应体中提取值的 JSONPath 表达式
type Projection struct {
	expr string
	path jp.Expr
}

// NewProjection 解析 JSONPath 表达式
func NewProjection(expr string) (*Projection, error) {
	path, err := jp.ParseString(expr)
	if err != nil {
		return nil, err
	}
	return &Projection{expr: expr, path: path}, nil
}

// MustProjection 解析失败时 panic，仅用于内置工作负载
func MustProjection(expr string) *Projection {
	p, err := NewProjection(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String 返回原始表达式
func (p *Projection) String() string {
	return p.expr
}

// Values 返回匹配到的全部非空值（字符串形式）
func (p *Projection) Values(body any) []string {
	raw := p.Raw(body)
	values := make([]string, 0, len(raw))
	for _, r := range raw {
		values = append(values, Stringify(r))
	}
	return values
}

// Raw 返回匹配到的全部非空值，保留 JSON 类型
func (p *Projection) Raw(body any) []any {
	if body == nil {
		return nil
	}
	results := p.path.Get(body)
	raw := make([]any, 0, len(results))
	for _, r := range results {
		if r != nil {
			raw = append(raw, r)
		}
	}
	return raw
}

// jsonEqual 按 JSON 类型比较，数字之间按数值比较，类型不同不相等
func jsonEqual(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		if _, ok := number(b); ok || b == nil {
			return false
		}
		return oj.JSON(a) == oj.JSON(b)
	}
}

// truthy JavaScript 真值：null、false、0、NaN 与空字符串为假
func truthy(v any) bool {
	if f, ok := number(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	default:
		return true
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// lookup 返回路径上的全部结果
func lookup(path jp.Expr, body any) []any {
	if body == nil {
		return nil
	}
	return path.Get(body)
}
