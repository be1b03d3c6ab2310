// Copyright (c) GuardFlow Authors.
// Licensed under the MIT License.

/*
Package scanner 实现策略扫描引擎：扫描器抽象、注册表与流水线。

# 概述

每个扫描器在单一风险维度上为一段文本打分（归一化到 [0,1]），并可选地
改写文本。流水线按确定顺序串联扫描器，前一个的改写结果作为后一个的
输入；输入侧与输出侧各持一条有序列表。

# 执行模式

  - 快速失败（默认）：遇到首个不通过的扫描器立即返回部分裁定，
    未执行的扫描器视为"未评估"而非"通过"
  - 全量扫描：执行全部扫描器后聚合

扫描器自身出错时按 block_on_guard_error 折叠：fail open 记为通过并
附带错误串，fail closed 记为不通过。扫描任务可经由工作池调度，调用方
协程只等待不占用工作线程。

# 内置扫描器

输入侧：ban-substrings、secrets、anonymise、prompt-injection、
toxicity、code；输出侧：ban-substrings、toxicity、malicious-urls、
no-refusal、code。启用判定优先级：环境变量（如
INPUT_SCANNER_SECRETS_ENABLED）> 配置文件 > 内置默认。
*/
package scanner
