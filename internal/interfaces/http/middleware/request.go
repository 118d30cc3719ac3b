package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/interfaces/http/response"
)

// 请求头与上下文键
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderTenantID    = "tenant-id"
	HeaderXTenantID   = "X-Tenant-ID"
	ContextTenantKey  = "tenantId"
	ContextRequestKey = "requestId"
)

// RequestID 读取或生成请求 ID，写回响应头并注入日志上下文
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextRequestKey, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// TenantHeader 要求 tenant-id 请求头，缺失时返回 400
func TenantHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		if tenant == "" {
			tenant = strings.TrimSpace(c.GetHeader(HeaderXTenantID))
		}
		if tenant == "" {
			response.Error(c, 400, response.CodeTenantMissing, "tenant-id header is required")
			c.Abort()
			return
		}
		c.Set(ContextTenantKey, tenant)
		c.Request = c.Request.WithContext(log.WithTenantID(c.Request.Context(), tenant))
		c.Next()
	}
}

// TenantID 读取 TenantHeader 注入的租户
func TenantID(c *gin.Context) string {
	return c.GetString(ContextTenantKey)
}
