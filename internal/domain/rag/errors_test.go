package rag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := NewValidationError("tenantId is required")
	wrapped := fmt.Errorf("process: %w", err)

	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, IsValidation(wrapped))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUpstreamError("search", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsUpstream(err))
	assert.Equal(t, "search unavailable: connection refused", err.Error())
	assert.Equal(t, "search", err.Details["collaborator"])
}

func TestNewTenantMismatchError(t *testing.T) {
	err := NewTenantMismatchError("t1", "t2")

	assert.True(t, IsTenantMismatch(err))
	assert.Equal(t, "t1", err.Details["headerTenant"])
	assert.Equal(t, "t2", err.Details["bodyTenant"])
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("conversation", "c-1")

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "conversation c-1 not found", err.Error())
}
