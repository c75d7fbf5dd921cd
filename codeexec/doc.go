// Package codeexec 在受限环境中执行 python、javascript、bash 与 go 代码片段。
//
// 执行前先按输入格式解析语言，再经过导入/命令黑名单与危险模式检查，
// 最后交给后端运行：
//
//   - process: 本地子进程，独立进程组，超时整组终止，ulimit 限制 CPU 与内存
//   - docker:  一次性容器，无网络，内存/CPU/PID 限制
//   - go:      进程内 yaegi 解释器，仅开放安全的标准库子集
//
// 黑名单检查只能挡住常见误用，并不构成隔离边界。
package codeexec
