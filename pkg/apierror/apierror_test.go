package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	t.Parallel()

	wrapped := WrapError(ErrInstanceNotFound, "instance i-42 not found", errors.New("record not found"))
	assert.True(t, errors.Is(wrapped, ErrInstanceNotFound))
	assert.False(t, errors.Is(wrapped, ErrIncorrectInstanceState))

	// 经过 fmt.Errorf 包装后仍然可以识别
	deep := fmt.Errorf("bless: %w", wrapped)
	assert.True(t, errors.Is(deep, ErrInstanceNotFound))
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	raw := errors.New("database is locked")
	wrapped := WrapError(ErrInternalError, "update instance", raw)
	require.Equal(t, raw, errors.Unwrap(wrapped))
	assert.Equal(t, ErrInternalError.HTTPStatus, wrapped.HTTPStatus)
	assert.Contains(t, wrapped.Error(), "InternalError")
	assert.Contains(t, wrapped.Error(), "database is locked")
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	resp := NewErrorResponse("req-1", ErrInvalidParameterValue)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "InvalidParameterValue", resp.Errors[0].Code)
	assert.Contains(t, resp.Error(), "req-1")
}
