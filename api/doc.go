// Package api groups the HTTP surface of the GuardFlow proxy.
//
// The handlers subpackage implements every endpoint. GuardFlow exposes
// two wire dialects on one port:
//
//   - Native: POST /api/generate and POST /api/chat, NDJSON streaming,
//     streaming by default.
//   - OpenAI-compatible: POST /v1/chat/completions and
//     POST /v1/completions, SSE streaming, non-streaming by default.
//
// Model management endpoints (/api/tags, /api/pull, /v1/models, ...)
// are forwarded verbatim without scanning. Diagnostics live at /health,
// /config and /stats; Prometheus metrics are served on a separate port.
//
// # Base URL
//
// The default base URL for the proxy is:
//
//	http://localhost:11435
//
// The only authentication performed is the trusted-hosts source allowlist;
// API keys for the backend are never required nor inspected.
package api
