// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
包 migration 提供审计库的 Schema 迁移管理能力，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件。PostgreSQL 与
MySQL 走 golang-migrate 引擎；SQLite 由内置执行器直接应用嵌入脚本，
以便使用纯 Go 驱动。两条路径共用同一套版本表语义。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Version/Status/
    Info/Close 操作集。
  - Config：迁移配置，包含数据库类型、连接 URL、版本表名与锁超时。
  - DatabaseType：数据库类型枚举（postgres/mysql/sqlite）。
  - CLI：命令行交互层，封装 Migrator 提供格式化输出。

# 工厂函数

NewMigratorFromAuditConfig 从审计存储配置创建迁移器；
NewMigratorFromURL 从连接串创建。
*/
package migration
