// Package config 提供 GuardFlow 的配置管理功能。
//
// 支持从 YAML 文件和环境变量加载配置，优先级为
// 默认值 → 文件 → 环境变量。环境变量命名规则为配置键大写
// （ollama_url → OLLAMA_URL），嵌套组拼接组名（redis.addr → REDIS_ADDR）。
package config
