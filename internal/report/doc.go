// Package report 汇总一次运行的结果：阶段、各 (variant, operation) 序列的统计、
// 变体之间的对比、阈值判定与时间线，并负责终端摘要和 JSON 报告文件的输出。
package report
