package log

import (
	"context"
	"log/slog"
)

// contextKey 上下文键类型，避免与其他包冲突
type contextKey string

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID contextKey = "request_id"

	// TenantContextID 租户 ID
	TenantContextID contextKey = "tenant_id"

	// ConversationContextID 对话 ID
	ConversationContextID contextKey = "conversation_id"

	// UserContextID 用户 ID
	UserContextID contextKey = "user_id"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithTenantID 在上下文中添加租户 ID
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantContextID, tenantID)
}

// WithConversationID 在上下文中添加对话 ID
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationContextID, conversationID)
}

// WithUserID 在上下文中添加用户 ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserContextID, userID)
}

// RequestIDFromContext 读取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(RequestContextID).(string)
	return v
}

// TenantIDFromContext 读取租户 ID
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(TenantContextID).(string)
	return v
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, key := range []contextKey{RequestContextID, TenantContextID, ConversationContextID, UserContextID} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// ContextHandler 把上下文中的请求字段附加到每条日志
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler 包装已有处理器
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle 处理日志记录
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := LogCtxFromContext(ctx); len(attrs) > 0 {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 返回带有额外属性的处理器
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 返回带有分组的处理器
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
