package output

import (
	"context"
	"fmt"
)

// Spec 一个输出的类型与参数
type Spec struct {
	Type string
	Arg  string
}

// CreateOutputs 按顺序创建输出，任一失败时返回错误
func CreateOutputs(ctx context.Context, specs []Spec, params Params) ([]Output, error) {
	outputs := make([]Output, 0, len(specs))
	for _, spec := range specs {
		p := params
		p.Arg = spec.Arg

		out, err := Create(ctx, spec.Type, p)
		if err != nil {
			return nil, fmt.Errorf("创建输出 %s 失败: %w", spec.Type, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
