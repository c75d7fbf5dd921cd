// Package telemetry 在 telemetry.enabled 为 true 时初始化 OTLP gRPC 的
// TracerProvider 与 MeterProvider 并注册为全局实例；关闭时保持 otel 默认的 noop。
package telemetry
