// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
包 audit 提供防护裁定的持久化审计能力。

每次输入/输出裁定生成一条 Entry，经缓冲通道异步写入数据库，
一次裁定一行（audit_records 表）。写入尽力而为：缓冲满即丢弃并
告警，存储故障只计数，绝不阻塞或中断请求处理。

支持 postgres、mysql 与 sqlite（纯 Go 驱动）三种后端，经 GORM 与
internal/database 连接池访问；表结构由 internal/migration 的嵌入
脚本管理。未配置驱动时 Open 返回空实现 Nop。
*/
package audit
