// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 GuardFlow 代理的全局共享类型定义。

# 概述

types 是代理最底层的公共包，不依赖任何内部包，为 scanner、admission、
upstream、dialect、api 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Message / FlexibleContent — 对话消息的最小解码形态：扫描只读文本，
    其余字段原样透传
  - Error / ErrorCode — 结构化错误体系；错误码取值即线上 JSON 错误体
    "error" 字段的字符串（queue_full、input_blocked 等）
  - Role — 消息角色枚举（system / user / assistant / tool）

# 设计约束

代理不拥有消息语义：FlexibleContent 在解码时保留原始字节，编码时逐字
回放，保证转发路径不改写客户端载荷。文本提取仅服务于策略扫描。
*/
package types
