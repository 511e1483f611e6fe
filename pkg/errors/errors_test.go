package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs_MatchesOnCode(t *testing.T) {
	err := ErrValidation.WithMessage("content or code required").WithDetail("reason", "missing content")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrUpstream))
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
}

func TestWithMethods_DoNotMutateSentinel(t *testing.T) {
	_ = ErrUpstream.WithDetail("status", 500).WithMessage("changed")

	assert.Equal(t, "upstream error", ErrUpstream.Message)
	assert.Empty(t, ErrUpstream.Details)
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(ErrValidation))
	assert.Equal(t, http.StatusTooManyRequests, ToHTTPStatus(ErrRateLimited))
	assert.Equal(t, http.StatusBadGateway, ToHTTPStatus(ErrUpstream.WithDetail("status", 500)))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("plain")))
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrUpstream.WithDetail("status", 500).WithDetail("detail", ""))
	assert.Equal(t, "upstream error", resp["error"])
	assert.Equal(t, "UPSTREAM_ERROR", resp["error_code"])
	assert.Equal(t, 500, resp["status"])
	assert.Contains(t, resp, "detail")

	resp = ToErrorResponse(ErrUnauthorized.WithDetail("reason", "bad_credential"))
	assert.NotContains(t, resp, "reason")
	assert.NotContains(t, resp, "detail")

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
}

func TestIsFatal(t *testing.T) {
	assert.False(t, ErrInternal.IsFatal())
	assert.True(t, ErrInternal.AsFatal().IsFatal())
	assert.True(t, ErrValidation.WithCause(ErrInternal.AsFatal()).IsFatal())
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("boom")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.True(t, err.IsFatal())
	assert.Contains(t, err.Error(), "boom")
	assert.NotEmpty(t, err.Details["stack_trace"])

	var called bool
	RecoverPanicWithCallback(errors.New("bad"), func(*Error) { called = true })
	assert.True(t, called)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, 500, len([]rune(Truncate(strings.Repeat("é", 800), 500))))
}
