// Package all 导入所有输出插件
// 在 main 包中导入此包以注册所有输出类型
package all

import (
	_ "yqhp/variant-bench/pkg/output/console"
	_ "yqhp/variant-bench/pkg/output/influxdb"
	_ "yqhp/variant-bench/pkg/output/json"
)
