package protocol

// API 错误码（REST 错误信封中的 code 字段）
const (
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeSessionFull     = "SESSION_FULL"
	ErrCodeSessionEnded    = "SESSION_ENDED"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
)

// ErrorEnvelope REST 接口的结构化错误响应
type ErrorEnvelope struct {
	Error *ErrorBody `json:"error"`
}

// ErrorBody 错误详情
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
