// Package response 统一 HTTP 错误输出
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// 业务错误码
const (
	CodeOK             = 0
	CodeValidation     = 40001
	CodeTenantMismatch = 40002
	CodeTenantMissing  = 40003
	CodeNotFound       = 40401
	CodeUpstream       = 50201
	CodeInternal       = 50001
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int            `json:"code"`
	Type    string         `json:"type,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, message string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
	})
}

// FromError 按领域错误类型选择状态码
// 非领域错误视为 500
func FromError(c *gin.Context, err error) {
	httpCode, errCode := classify(err)

	body := ErrorResponse{Code: errCode, Message: err.Error()}
	var de *domainRAG.DomainError
	if errors.As(err, &de) {
		body.Type = string(de.Type)
		body.Details = de.Details
	}
	if httpCode == http.StatusInternalServerError {
		body.Message = "internal error"
		body.Details = nil
		_ = c.Error(err)
	}
	c.JSON(httpCode, body)
}

func classify(err error) (int, int) {
	switch {
	case domainRAG.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case domainRAG.IsTenantMismatch(err):
		return http.StatusBadRequest, CodeTenantMismatch
	case domainRAG.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case domainRAG.IsUpstream(err):
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
