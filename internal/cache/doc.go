// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供扫描裁定缓存的两个存储层：基于 Redis 的分布式层
与进程内 LRU 本地层。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期管理（初始化、
健康检查、优雅关闭），提供字符串与 JSON 两种读写模式，并附带
单飞锁原语保证同一键的扫描计算跨进程至多并发一次。

LRU 是有界的本地缓存：双向链表 + 哈希表实现，全部操作 O(1)，
条目带 TTL，读取时惰性清理过期项并按未命中处理。

# 核心类型

  - Manager：Redis 缓存管理器，Get/Set/Delete/Exists/Expire 基础操作、
    GetJSON/SetJSON 序列化便捷方法、Deduplicate/ReleaseLock 单飞锁。
  - LRU：本地 LRU 缓存，Get/Set/Delete/Clear 与命中统计。
  - Config：Redis 连接配置（地址、连接池、默认 TTL、健康检查间隔）。

# 错误语义

缓存故障永不致命：未命中返回 ErrCacheMiss 哨兵错误，连接或操作
失败由调用方按未命中降级处理。
*/
package cache
