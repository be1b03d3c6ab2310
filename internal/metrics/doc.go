// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的网关指标采集能力，覆盖
HTTP、扫描、准入、缓存与上游五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数与耗时直方图，按 method/path 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 扫描指标：单扫描器调用计数（pass/fail/error）、流水线耗时、
    拦截计数，按 direction/dialect 分组。
  - 准入指标：每模型活跃/等待 Gauge、处理/拒绝计数、排队等待直方图。
  - 缓存指标：命中与未命中计数，按 tier（local/distributed）分组。
  - 上游指标：转发请求计数（按路径与状态码）与传输层重试计数。
*/
package metrics
