// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 GuardFlow 服务端程序入口。

# 概述

cmd/guardflow 是安全扫描代理的可执行入口，在一个端口上同时提供
Ollama 原生方言与 OpenAI 兼容方言，并把未扫描的管理端点原样透传给
后端。程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus
指标采集以及审计库迁移。

# 核心类型

  - Server       — 主服务器，管理代理、Metrics 双端口及优雅关闭
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter — 包装 http.ResponseWriter 以捕获状态码并透传 Flush

# 主要能力

  - 子命令：serve（启动代理）、migrate（审计库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、CORS、TrustedHosts（来源地址白名单，本服务唯一的准入
    认证）、RateLimiter（基于来源 IP）、OTelTracing（可选）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭代理端口 → 关闭 Metrics → 释放网关组件
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
