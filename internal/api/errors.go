package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/palemoky/aircade/internal/apperrors"
	"github.com/palemoky/aircade/internal/protocol"
)

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.UserMessage())
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.UserMessage())
}

// UserMessage 面向用户的错误信息，服务端未给出时使用兜底文案
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return apperrors.DefaultMessage
}

// IsNotFound 会话码不存在等 404 错误
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// parseError 解析 {error:{code,message,details}}，其它格式只保留状态码
func parseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var env protocol.ErrorEnvelope
	if json.Unmarshal(data, &env) == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}
