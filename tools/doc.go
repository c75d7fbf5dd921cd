/*
Package tools 提供 agent 可调用的工具及其注册表。

内置工具：

  - calculator：安全的算术表达式求值（递归下降解析，不执行任意代码）
  - file_operations：限定目录内的读写、列目录、创建目录、存在性检查与删除
  - web_search：可插拔搜索后端（mock、SearxNG），并发抓取页面、评估质量并缓存
  - code_execution：基于 codeexec 包的沙箱代码执行

所有工具实现 Tool 接口，通过 Registry 统一查找与执行；参数 Schema
由 Go 结构体经 invopop/jsonschema 生成。
*/
package tools
