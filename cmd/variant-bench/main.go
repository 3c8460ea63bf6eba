// Package main 是 variant-bench 命令行入口
package main

import "yqhp/variant-bench/cmd"

func main() {
	cmd.Execute()
}
