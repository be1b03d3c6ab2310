package langdetect

// MessageKind 面向用户的错误消息种类
type MessageKind string

const (
	MsgServerBusy    MessageKind = "server_busy"
	MsgTimeout       MessageKind = "timeout"
	MsgInputBlocked  MessageKind = "input_blocked"
	MsgOutputBlocked MessageKind = "output_blocked"
	MsgUpstreamError MessageKind = "upstream_error"
)

// messages 本地化消息表。缺失条目回落 English。
var messages = map[MessageKind]map[Lang]string{
	MsgServerBusy: {
		English:    "Server is busy, please try again later.",
		Chinese:    "服务器繁忙，请稍后再试。",
		Vietnamese: "Máy chủ đang bận, vui lòng thử lại sau.",
		Japanese:   "サーバーが混み合っています。しばらくしてからもう一度お試しください。",
		Korean:     "서버가 혼잡합니다. 잠시 후 다시 시도해 주세요.",
		Russian:    "Сервер перегружен, попробуйте позже.",
		Arabic:     "الخادم مشغول، يرجى المحاولة مرة أخرى لاحقًا.",
	},
	MsgTimeout: {
		English:    "Request timed out, please try again.",
		Chinese:    "请求超时，请重试。",
		Vietnamese: "Yêu cầu đã hết thời gian chờ, vui lòng thử lại.",
		Japanese:   "リクエストがタイムアウトしました。もう一度お試しください。",
		Korean:     "요청 시간이 초과되었습니다. 다시 시도해 주세요.",
		Russian:    "Истекло время ожидания запроса, попробуйте ещё раз.",
		Arabic:     "انتهت مهلة الطلب، يرجى المحاولة مرة أخرى.",
	},
	MsgInputBlocked: {
		English:    "Your request was blocked by the content security policy.",
		Chinese:    "您的请求已被内容安全策略拦截。",
		Vietnamese: "Yêu cầu của bạn đã bị chặn bởi chính sách an toàn nội dung.",
		Japanese:   "リクエストはコンテンツセキュリティポリシーによりブロックされました。",
		Korean:     "요청이 콘텐츠 보안 정책에 의해 차단되었습니다.",
		Russian:    "Ваш запрос заблокирован политикой безопасности контента.",
		Arabic:     "تم حظر طلبك بموجب سياسة أمان المحتوى.",
	},
	MsgOutputBlocked: {
		English:    "The model response was blocked by the content security policy.",
		Chinese:    "模型响应已被内容安全策略拦截。",
		Vietnamese: "Phản hồi của mô hình đã bị chặn bởi chính sách an toàn nội dung.",
		Japanese:   "モデルの応答はコンテンツセキュリティポリシーによりブロックされました。",
		Korean:     "모델 응답이 콘텐츠 보안 정책에 의해 차단되었습니다.",
		Russian:    "Ответ модели заблокирован политикой безопасности контента.",
		Arabic:     "تم حظر استجابة النموذج بموجب سياسة أمان المحتوى.",
	},
	MsgUpstreamError: {
		English:    "Failed to reach the inference backend.",
		Chinese:    "无法连接推理后端。",
		Vietnamese: "Không thể kết nối đến máy chủ suy luận.",
		Japanese:   "推論バックエンドに接続できませんでした。",
		Korean:     "추론 백엔드에 연결하지 못했습니다.",
		Russian:    "Не удалось подключиться к серверу инференса.",
		Arabic:     "تعذر الوصول إلى خادم الاستدلال.",
	},
}

// Message 返回指定语言的本地化消息。未知语言或缺失条目回落 English。
func Message(lang Lang, kind MessageKind) string {
	byLang, ok := messages[kind]
	if !ok {
		return ""
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang[English]
}
