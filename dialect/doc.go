// Package dialect 实现 OpenAI 兼容方言与后端原生方言的双向转译。
//
// 两种方言共用同一监听端口，以路径区分：/api/* 走原生协议
// （NDJSON 流），/v1/* 走 OpenAI 兼容协议（SSE 流）。转译是无状态的：
// 请求方向把解码选项收拢进 options 子对象，响应方向合成 OpenAI 风格
// 的 id、时间戳与 usage。上游未报告 token 计数时由 TokenCounter 估算。
package dialect
