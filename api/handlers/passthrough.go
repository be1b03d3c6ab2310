// =============================================================================
// 🔁 免扫描透传端点
// =============================================================================
// 模型管理与元数据端点（/api/tags、/api/pull、/v1/models 等）不含
// 生成文本，请求与响应原样转发，不做扫描也不计入模型准入。
// =============================================================================
package handlers

import "net/http"

// PassthroughHandler 免扫描端点的原样转发处理器
type PassthroughHandler struct {
	core    *Core
	methods map[string]struct{}
}

// NewPassthroughHandler 创建透传处理器，只放行列出的 HTTP 方法
func NewPassthroughHandler(core *Core, methods ...string) *PassthroughHandler {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}
	return &PassthroughHandler{core: core, methods: allowed}
}

// ServeHTTP 转发请求到后端
func (h *PassthroughHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.methods[r.Method]; !ok {
		writeJSON(w, http.StatusMethodNotAllowed, wireError{
			Error:   "method_not_allowed",
			Message: "method " + r.Method + " is not allowed on " + r.URL.Path,
		})
		return
	}
	h.core.upstream.Passthrough(w, r)
}
