// Package config 提供 agentbase 的配置管理功能。
//
// 两层配置模型:
//   - Config / Loader: 强类型配置，按 默认值 → YAML → .env → 环境变量 的顺序加载
//   - Provider: 点分键 (a.b.c) 配置访问，包括 MapProvider、YAMLProvider、
//     EnvProvider 与按优先级组合的 CompositeProvider
//
// Watcher 基于 fsnotify 监听 YAML 目录并触发 YAMLProvider 重载。
package config
