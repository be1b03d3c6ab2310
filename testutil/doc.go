// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 GuardFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与端到端测试提供统一的测试基础设施，
避免各包重复实现相似的假后端与桩扫描器。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 假后端: FakeBackend 模拟 Ollama 兼容推理后端，支持非流式与
    NDJSON 流式生成/对话、请求捕获、命中计数、延迟与故障注入
  - 桩扫描器: StubScanner 可编程扫描器，Blocking / Sanitizing /
    Failing 工厂覆盖拦截、改写与出错三类行为
  - 数据工具: MustJSON / MustParseJSON，简化测试数据构造
  - 流式辅助: NDJSONLines / SSEEvents 拆解两种方言的流式响应体

# 使用示例

	backend := testutil.NewFakeBackend(t)
	backend.GenerateText = "hello world"
	probe := testutil.Blocking("secrets", "sk-")
*/
package testutil
