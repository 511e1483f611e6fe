package relay

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"hookrelay/internal/constants"
	apperrors "hookrelay/pkg/errors"
)

var (
	markerLength = utf8.RuneCountInString(constants.TruncationMarker)

	lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

	base64Encodings = []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
)

// Normalize turns a request into the single outbound payload. It does no I/O
// and returns the same payload for the same request.
//
// A message within the length limit wins over code. Otherwise code, if
// present, is fenced. Embeds are passed through untouched in every case.
func Normalize(req RelayRequest) (OutboundPayload, error) {
	payload := OutboundPayload{Embeds: req.Embeds}
	if !req.HasEmbeds() {
		payload.Embeds = nil
	}

	if req.HasMessage() && utf8.RuneCountInString(req.Message) <= constants.MaxContentLength {
		payload.Content = req.Message
		return payload, nil
	}

	if req.HasCode() {
		code := *req.Code
		if req.CodeEncoding == EncodingBase64 {
			decoded, err := DecodeBase64(code)
			if err != nil {
				return OutboundPayload{}, err
			}
			code = decoded
		}
		payload.Content, payload.Truncated = fenceCode(code, req.Language)
		return payload, nil
	}

	if req.HasMessage() {
		payload.Content, payload.Truncated = truncate(req.Message, constants.MaxContentLength)
	}
	return payload, nil
}

// fenceCode wraps code in a fenced block tagged with the sanitized language,
// cutting the body so the whole block fits the content limit.
func fenceCode(code, language string) (string, bool) {
	lang := SanitizeLanguage(language)
	body := lineEndings.Replace(code)

	open := constants.CodeFence + lang + "\n"
	closing := "\n" + constants.CodeFence
	overhead := utf8.RuneCountInString(open) + utf8.RuneCountInString(closing)

	room := constants.MaxContentLength - overhead
	if room < 0 {
		room = 0
	}

	body, truncated := truncate(body, room)
	return open + body + closing, truncated
}

// SanitizeLanguage keeps ASCII letters, digits and ".+-#", capped at
// MaxLanguageLength code points.
func SanitizeLanguage(language string) string {
	var b strings.Builder
	n := 0
	for _, r := range language {
		if n == constants.MaxLanguageLength {
			break
		}
		if isLanguageRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func isLanguageRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '+', r == '-', r == '#':
		return true
	}
	return false
}

// DecodeBase64 accepts standard and URL-safe alphabets, padded or not.
// Spaces are read as '+', since query-string decoding turns '+' into ' '.
func DecodeBase64(encoded string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return '+'
		case '\n', '\r', '\t':
			return -1
		}
		return r
	}, encoded)

	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(cleaned)
		if err != nil {
			continue
		}
		if !utf8.Valid(raw) {
			return "", apperrors.ErrValidation.WithMessage("decoded code is not valid UTF-8 text")
		}
		return string(raw), nil
	}
	return "", apperrors.ErrValidation.WithMessage("code_b64 is not valid base64")
}

// truncate cuts s to room code points, ending in the truncation marker when
// anything was removed.
func truncate(s string, room int) (string, bool) {
	if utf8.RuneCountInString(s) <= room {
		return s, false
	}
	if room <= markerLength {
		return apperrors.Truncate(constants.TruncationMarker, room), true
	}
	return apperrors.Truncate(s, room-markerLength) + constants.TruncationMarker, true
}
