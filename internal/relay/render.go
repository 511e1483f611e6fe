package relay

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin/render"

	"hookrelay/internal/access"
	apperrors "hookrelay/pkg/errors"
)

const autoCloseAfterMs = 1500

var statusPage = template.Must(template.New("status").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<p>{{.Message}}</p>
{{- if .AutoClose}}
<script>setTimeout(function () { window.close(); }, {{.CloseAfterMs}});</script>
{{- end}}
</body>
</html>
`))

type statusPageData struct {
	Title        string
	Message      string
	AutoClose    bool
	CloseAfterMs int
}

// htmlResponse maps a result onto the status page and its HTTP code.
func htmlResponse(result Result) (int, render.HTML) {
	status, data := describe(result)
	return status, render.HTML{
		Template: statusPage,
		Name:     "status",
		Data:     data,
	}
}

func describe(result Result) (int, statusPageData) {
	if result.Status == StatusSent {
		return http.StatusOK, statusPageData{
			Title:        "Sent",
			Message:      "Message sent. This window will close shortly.",
			AutoClose:    true,
			CloseAfterMs: autoCloseAfterMs,
		}
	}

	status := http.StatusInternalServerError
	if result.Err != nil {
		status = result.Err.Status
	}

	data := statusPageData{Title: "Not sent"}
	switch {
	case result.Reason == string(access.ReasonRateLimited):
		data.Message = "Too many requests. Try again in a minute."
	case result.Reason == string(access.ReasonBadReferer):
		data.Message = "Forbidden: this page is not allowed to post messages."
	case result.Status == StatusUpstreamError:
		data.Message = fmt.Sprintf("The messaging service rejected the message (status %d).", result.UpstreamStatus)
	case result.Reason == apperrors.ErrNotConfigured.Code:
		data.Message = "Relay is not configured."
	case result.Status == StatusInternalError:
		data.Message = "Internal error. The message was not sent."
	default:
		data.Message = "Bad request: " + result.Detail
	}
	return status, data
}
