package relay

import (
	"context"
	"errors"
	"time"

	"hookrelay/internal/access"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	apperrors "hookrelay/pkg/errors"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/tracing"
)

// Service runs one relay request against the configured sink.
type Service struct {
	sink       Sink
	configured bool
	logger     logger.Logger
}

// NewService builds the dispatcher. configured is false when no webhook URL
// is set, in which case every dispatch ends in internal_error.
func NewService(sink Sink, configured bool, log logger.Logger) *Service {
	return &Service{
		sink:       sink,
		configured: configured,
		logger:     log,
	}
}

// Dispatch never panics and never retries: one request, at most one
// downstream call.
func (s *Service) Dispatch(ctx context.Context, decision access.Decision, req RelayRequest) (res Result) {
	ctx, span := tracing.Start(ctx, "relay.dispatch")

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failure(StatusInternalError, apperrors.RecoverPanicWithCallback(r, func(err *apperrors.Error) {
				s.logger.ErrorwCtx(ctx, "Panic during dispatch", "error", err, "stack_trace", err.Details["stack_trace"])
			}))
		}
		metrics.ObserveRelayDuration(time.Since(start), string(res.Status))

		var spanErr error
		if res.Status == StatusUpstreamError || res.Status == StatusInternalError {
			spanErr = res.Err
		}
		tracing.EndSpan(span, string(res.Status), spanErr)
	}()

	if !decision.Allowed {
		return rejectedByGate(decision.Reason)
	}

	if !req.HasContent() {
		return failure(StatusRejected, apperrors.ErrValidation.WithMessage("content or code required").
			WithDetail("reason", "missing content"))
	}

	if !s.configured {
		return failure(StatusInternalError, apperrors.ErrNotConfigured)
	}

	payload, err := Normalize(req)
	if err != nil {
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			appErr = apperrors.Wrap(err, apperrors.ErrValidation)
		}
		return failure(StatusRejected, appErr)
	}
	if payload.Truncated {
		kind := "message"
		if req.HasCode() {
			kind = "code"
		}
		metrics.IncContentTruncation(kind)
	}

	// Once issued, the call is not cancelled by the caller going away.
	resp, err := s.sink.Send(context.WithoutCancel(ctx), payload)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Webhook call failed", "error", err)
		return failure(StatusInternalError, apperrors.ErrInternal.
			WithMessage("webhook request failed").
			WithCause(err).
			WithDetail("detail", apperrors.Truncate(err.Error(), constants.MaxDetailLength)))
	}

	if !resp.OK() {
		detail := apperrors.Truncate(resp.Body, constants.MaxDetailLength)
		s.logger.WarnwCtx(ctx, "Webhook returned non-success status", "status", resp.StatusCode)
		result := failure(StatusUpstreamError, apperrors.ErrUpstream.
			WithDetail("status", resp.StatusCode).
			WithDetail("detail", detail))
		result.UpstreamStatus = resp.StatusCode
		return result
	}

	return sent()
}

func rejectedByGate(reason access.Reason) Result {
	var appErr *apperrors.Error
	switch reason {
	case access.ReasonRateLimited:
		appErr = apperrors.ErrRateLimited
	case access.ReasonBadReferer:
		appErr = apperrors.ErrForbidden
	default:
		appErr = apperrors.ErrUnauthorized
	}
	return Result{
		Status: StatusRejected,
		Reason: string(reason),
		Err:    appErr.WithDetail("reason", string(reason)),
	}
}

func failure(status Status, err *apperrors.Error) Result {
	reason, _ := err.Details["reason"].(string)
	if reason == "" {
		reason = err.Code
	}
	detail := err.Detail()
	if detail == "" {
		detail = err.Message
	}
	return Result{
		Status: status,
		Reason: reason,
		Detail: apperrors.Truncate(detail, constants.MaxDetailLength),
		Err:    err,
	}
}
