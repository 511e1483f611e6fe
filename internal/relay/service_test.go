package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay/internal/access"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	apperrors "hookrelay/pkg/errors"
)

type fakeSink struct {
	resp     SinkResponse
	err      error
	panicMsg string
	calls    []OutboundPayload
	ctxErr   error
}

func (f *fakeSink) Send(ctx context.Context, payload OutboundPayload) (SinkResponse, error) {
	f.calls = append(f.calls, payload)
	f.ctxErr = ctx.Err()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.resp, f.err
}

func newTestService(sink *fakeSink) *Service {
	return NewService(sink, true, logger.NopLogger())
}

func TestDispatch_Sent(t *testing.T) {
	sink := &fakeSink{resp: SinkResponse{StatusCode: 204}}
	svc := newTestService(sink)

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})

	assert.Equal(t, StatusSent, res.Status)
	assert.Nil(t, res.Err)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "hi", sink.calls[0].Content)
}

func TestDispatch_GateDenials(t *testing.T) {
	tests := []struct {
		reason access.Reason
		status int
	}{
		{access.ReasonRateLimited, 429},
		{access.ReasonBadReferer, 403},
		{access.ReasonBadOrigin, 401},
		{access.ReasonBadCredential, 401},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			sink := &fakeSink{resp: SinkResponse{StatusCode: 204}}
			svc := newTestService(sink)

			res := svc.Dispatch(context.Background(), access.Deny(tt.reason), RelayRequest{Message: "hi"})

			assert.Equal(t, StatusRejected, res.Status)
			assert.Equal(t, string(tt.reason), res.Reason)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.status, res.Err.Status)
			assert.Empty(t, sink.calls)
		})
	}
}

func TestDispatch_MissingContent(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sink)

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{})

	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "missing content", res.Reason)
	assert.True(t, apperrors.IsValidation(res.Err))
	assert.Empty(t, sink.calls)
}

func TestDispatch_NotConfigured(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(sink, false, logger.NopLogger())

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})

	assert.Equal(t, StatusInternalError, res.Status)
	assert.Equal(t, apperrors.ErrNotConfigured.Code, res.Reason)
	assert.Equal(t, 500, res.Err.Status)
	assert.Empty(t, sink.calls)
}

func TestDispatch_InvalidBase64(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sink)

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{
		Code:         strPtr("%%%"),
		CodeEncoding: EncodingBase64,
	})

	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, 400, res.Err.Status)
	assert.Contains(t, res.Detail, "base64")
	assert.Empty(t, sink.calls)
}

func TestDispatch_UpstreamError(t *testing.T) {
	body := strings.Repeat("x", 2000)
	sink := &fakeSink{resp: SinkResponse{StatusCode: 500, Body: body}}
	svc := newTestService(sink)

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})

	assert.Equal(t, StatusUpstreamError, res.Status)
	assert.Equal(t, 500, res.UpstreamStatus)
	assert.Equal(t, 502, res.Err.Status)
	assert.Equal(t, constants.MaxDetailLength, utf8.RuneCountInString(res.Detail))
	assert.Equal(t, 500, res.Err.Details["status"])
	require.Len(t, sink.calls, 1)
}

func TestDispatch_NetworkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	svc := newTestService(sink)

	res := svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})

	assert.Equal(t, StatusInternalError, res.Status)
	assert.Equal(t, 500, res.Err.Status)
	assert.Contains(t, res.Detail, "connection refused")
}

func TestDispatch_PanicBecomesInternalError(t *testing.T) {
	sink := &fakeSink{panicMsg: "boom"}
	svc := newTestService(sink)

	var res Result
	require.NotPanics(t, func() {
		res = svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})
	})

	assert.Equal(t, StatusInternalError, res.Status)
	require.NotNil(t, res.Err)
	assert.True(t, res.Err.IsFatal())
}

func TestDispatch_SingleDownstreamCall(t *testing.T) {
	sink := &fakeSink{resp: SinkResponse{StatusCode: 503}}
	svc := newTestService(sink)

	svc.Dispatch(context.Background(), access.Allow(), RelayRequest{Message: "hi"})

	assert.Len(t, sink.calls, 1)
}

func TestDispatch_CallerCancellationDoesNotReachSink(t *testing.T) {
	sink := &fakeSink{resp: SinkResponse{StatusCode: 204}}
	svc := newTestService(sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.Dispatch(ctx, access.Allow(), RelayRequest{Message: "hi"})

	assert.Equal(t, StatusSent, res.Status)
	require.Len(t, sink.calls, 1)
	assert.NoError(t, sink.ctxErr)
}
