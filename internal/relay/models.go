package relay

import (
	"bytes"
	"encoding/json"

	"hookrelay/internal/access"
	apperrors "hookrelay/pkg/errors"
)

type CodeEncoding int

const (
	EncodingPlain CodeEncoding = iota
	EncodingBase64
)

// RelayRequest is the canonical input extracted by a transport.
// Code is nil when the caller supplied no code field at all; an empty
// string still yields a (minimal) fenced block.
type RelayRequest struct {
	Message      string
	Code         *string
	Language     string
	CodeEncoding CodeEncoding
	Embeds       json.RawMessage
}

func (r RelayRequest) HasMessage() bool {
	return r.Message != ""
}

func (r RelayRequest) HasCode() bool {
	return r.Code != nil
}

func (r RelayRequest) HasEmbeds() bool {
	trimmed := bytes.TrimSpace(r.Embeds)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func (r RelayRequest) HasContent() bool {
	return r.HasMessage() || r.HasCode() || r.HasEmbeds()
}

// OutboundPayload is the JSON body posted to the webhook.
type OutboundPayload struct {
	Content string          `json:"content"`
	Embeds  json.RawMessage `json:"embeds,omitempty"`
	// Truncated reports whether Content was cut to the length limit.
	Truncated bool `json:"-"`
}

type Status string

const (
	StatusSent          Status = "sent"
	StatusRejected      Status = "rejected"
	StatusUpstreamError Status = "upstream_error"
	StatusInternalError Status = "internal_error"
)

// Result is the outcome of one dispatch. Err is nil only when Status is sent.
type Result struct {
	Status         Status
	Reason         string
	Detail         string
	UpstreamStatus int
	Err            *apperrors.Error
}

func sent() Result {
	return Result{Status: StatusSent, Reason: string(access.ReasonOK)}
}

// JSONRequest is the body accepted by the JSON transport.
type JSONRequest struct {
	Content string          `json:"content"`
	Code    *string         `json:"code"`
	CodeB64 *string         `json:"code_b64"`
	Lang    string          `json:"lang"`
	Embeds  json.RawMessage `json:"embeds"`
}

// ToRelayRequest prefers code_b64 over code when both are present.
func (j JSONRequest) ToRelayRequest() RelayRequest {
	req := RelayRequest{
		Message:  j.Content,
		Code:     j.Code,
		Language: j.Lang,
		Embeds:   j.Embeds,
	}
	if j.CodeB64 != nil {
		req.Code = j.CodeB64
		req.CodeEncoding = EncodingBase64
	}
	return req
}

// UpstreamErrorResponse documents the 502 body.
type UpstreamErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
}

// ErrorResponse documents the remaining JSON error bodies.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail,omitempty"`
}
