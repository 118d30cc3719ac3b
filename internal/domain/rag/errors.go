package rag

import (
	"errors"
	"fmt"
)

// ErrorType 领域错误类型
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "VALIDATION"
	ErrorTypeTenantMismatch      ErrorType = "TENANT_MISMATCH"
	ErrorTypeUpstreamUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeProviderNotFound    ErrorType = "PROVIDER_NOT_FOUND"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrValidation          = &DomainError{Type: ErrorTypeValidation}
	ErrTenantMismatch      = &DomainError{Type: ErrorTypeTenantMismatch}
	ErrUpstreamUnavailable = &DomainError{Type: ErrorTypeUpstreamUnavailable}
	ErrNotFound            = &DomainError{Type: ErrorTypeNotFound}
	ErrProviderNotFound    = &DomainError{Type: ErrorTypeProviderNotFound}
	ErrTimeout             = &DomainError{Type: ErrorTypeTimeout}
)

// DomainError 领域错误
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]any
}

// Error 实现 error 接口
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Type)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按错误类型比较
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail 附加详情
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewDomainError 创建领域错误
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// NewValidationError 创建参数校验错误
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewTenantMismatchError 创建租户不一致错误
func NewTenantMismatchError(headerTenant, bodyTenant string) *DomainError {
	return NewDomainError(ErrorTypeTenantMismatch, "tenant id in header does not match request body", nil).
		WithDetail("headerTenant", headerTenant).
		WithDetail("bodyTenant", bodyTenant)
}

// NewUpstreamError 创建上游不可用错误
func NewUpstreamError(collaborator string, err error) *DomainError {
	return NewDomainError(ErrorTypeUpstreamUnavailable, collaborator+" unavailable", err).
		WithDetail("collaborator", collaborator)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(resource, id string) *DomainError {
	return NewDomainError(ErrorTypeNotFound, fmt.Sprintf("%s %s not found", resource, id), nil).
		WithDetail("id", id)
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTenantMismatch 是否为租户不一致错误
func IsTenantMismatch(err error) bool {
	return errors.Is(err, ErrTenantMismatch)
}

// IsNotFound 是否为未找到错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUpstream 是否为上游错误
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
