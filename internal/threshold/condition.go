package threshold

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"yqhp/variant-bench/pkg/metrics"
)

// Comparator 比较运算符
type Comparator string

const (
	LT Comparator = "<"
	LE Comparator = "<="
	GT Comparator = ">"
	GE Comparator = ">="
	EQ Comparator = "=="
	NE Comparator = "!="
)

// Compare 返回 observed <op> bound 的结果
func (c Comparator) Compare(observed, bound float64) bool {
	switch c {
	case LT:
		return observed < bound
	case LE:
		return observed <= bound
	case GT:
		return observed > bound
	case GE:
		return observed >= bound
	case EQ:
		return observed == bound
	case NE:
		return observed != bound
	}
	return false
}

// Condition 是形如 "p(95) < 2000" 的条件
type Condition struct {
	Aggregation metrics.Aggregation
	Comparator  Comparator
	Bound       float64
}

// String 规范化的文本形式
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Aggregation, c.Comparator, strconv.FormatFloat(c.Bound, 'f', -1, 64))
}

// ParseCondition 严格解析条件，任何无法识别的部分都返回错误。
func ParseCondition(s string) (Condition, error) {
	expr := strings.TrimSpace(s)
	idx := strings.IndexAny(expr, "<>=!")
	if idx <= 0 {
		return Condition{}, fmt.Errorf("%w: %q 缺少比较运算符或聚合方式", ErrInvalidCondition, s)
	}

	op := Comparator(expr[idx : idx+1])
	if idx+1 < len(expr) && expr[idx+1] == '=' {
		op = Comparator(expr[idx : idx+2])
	}
	switch op {
	case LT, LE, GT, GE, EQ, NE:
	default:
		return Condition{}, fmt.Errorf("%w: %q 运算符 %q 不支持", ErrInvalidCondition, s, op)
	}

	agg, err := metrics.ParseAggregation(expr[:idx])
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	rhs := strings.TrimSpace(expr[idx+len(op):])
	bound, err := strconv.ParseFloat(rhs, 64)
	if err != nil || math.IsNaN(bound) || math.IsInf(bound, 0) {
		return Condition{}, fmt.Errorf("%w: %q 阈值 %q 不是有效数字", ErrInvalidCondition, s, rhs)
	}

	return Condition{Aggregation: agg, Comparator: op, Bound: bound}, nil
}
