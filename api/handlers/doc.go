// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 GuardFlow HTTP 端点的请求处理器实现。

# 概述

handlers 包实现代理的全部端点：四个受护生成端点（原生与 OpenAI
两种方言）、免扫描透传端点以及诊断端点。受护端点共享同一条编排
流水线：解析 → 语言检测 → 输入防护 → 模型准入 → 上游转发 →
输出防护（流式按窗口、非流式全文）→ 方言转译。

# 核心类型

  - Core                     — 共享依赖与防护编排（扫描、缓存、准入、审计、指标）
  - GenerateHandler          — POST /api/generate，NDJSON 流式
  - ChatHandler              — POST /api/chat，NDJSON 流式
  - OpenAIChatHandler        — POST /v1/chat/completions，SSE 流式
  - OpenAICompletionHandler  — POST /v1/completions，SSE 流式
  - PassthroughHandler       — 模型管理端点的原样转发
  - HealthHandler            — /health /config /stats 与 k8s 探针

# 错误契约

错误响应体固定为 {"error","message","language","details"}；message
按检测到的请求语言本地化。拦截以 451 返回并携带 X-Error-Type、
X-Block-Type、X-Language、X-Failed-Scanners 头；开启内联防护时
改为 200 的方言形态响应，正文为 markdown 拦截说明。
*/
package handlers
