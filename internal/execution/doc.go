// Package execution 提供执行模式实现。
// constant-vus 模式在固定时长内保持固定数量的 VU 循环执行迭代，时长到达后不再开始新迭代，
// 正在执行的迭代会完整结束。
package execution
