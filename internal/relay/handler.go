package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hookrelay/internal/access"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	apperrors "hookrelay/pkg/errors"
	"hookrelay/pkg/metrics"
)

const (
	transportJSON  = "json"
	transportQuery = "query"
)

// RoutePaths are the paths both transports are mounted on.
var RoutePaths = []string{"/relay", "/discord"}

type Handler struct {
	service      *Service
	gate         *access.Gate
	maxBodyBytes int64
	logger       logger.Logger
}

func NewHandler(service *Service, gate *access.Gate, maxBodyBytes int64, log logger.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultMaxBodyBytes
	}
	return &Handler{
		service:      service,
		gate:         gate,
		maxBodyBytes: maxBodyBytes,
		logger:       log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	for _, path := range RoutePaths {
		relay := router.Group(path, access.CORSMiddleware(h.gate))
		{
			relay.POST("", h.RelayJSON)
			relay.GET("", h.RelayQuery)
			relay.OPTIONS("", h.Preflight)
		}
	}

	router.GET("/ping", h.Ping)
}

// RelayJSON godoc
// @Summary      Relay a message or code snippet
// @Description  Validates the caller, normalizes the content and posts it to the webhook
// @Tags         relay
// @Accept       json
// @Produce      json
// @Param        x-api-key  header    string       true  "Shared secret"
// @Param        body       body      JSONRequest  true  "content, code/code_b64 + lang, or embeds"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      429  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Failure      502  {object}  UpstreamErrorResponse
// @Router       /relay [post]
func (h *Handler) RelayJSON(c *gin.Context) {
	ctx := c.Request.Context()

	decision := h.gate.Evaluate(ctx, h.requestMeta(c), access.Checks{
		RateLimit:  true,
		Origin:     true,
		Credential: true,
	})
	writeRateLimitHeaders(c, decision)

	if !decision.Allowed {
		h.respondJSON(c, h.service.Dispatch(ctx, decision, RelayRequest{}))
		return
	}

	req, err := h.readJSON(c)
	if err != nil {
		h.respondJSON(c, failure(StatusRejected, err))
		return
	}

	h.respondJSON(c, h.service.Dispatch(ctx, decision, req))
}

// RelayQuery godoc
// @Summary      Relay a message from a URL
// @Description  Query-string variant for browser navigation. Always answers with an HTML status page.
// @Tags         relay
// @Produce      html
// @Param        m         query  string  false  "Plain message"
// @Param        code      query  string  false  "Code snippet"
// @Param        code_b64  query  string  false  "Base64-encoded code snippet"
// @Param        lang      query  string  false  "Language tag for the code fence"
// @Success      200
// @Failure      400
// @Failure      403
// @Failure      429
// @Failure      500
// @Failure      502
// @Router       /relay [get]
func (h *Handler) RelayQuery(c *gin.Context) {
	ctx := c.Request.Context()

	decision := h.gate.Evaluate(ctx, h.requestMeta(c), access.Checks{
		RateLimit: true,
		Referer:   true,
	})
	writeRateLimitHeaders(c, decision)

	var result Result
	if decision.Allowed {
		result = h.service.Dispatch(ctx, decision, queryRequest(c))
	} else {
		result = h.service.Dispatch(ctx, decision, RelayRequest{})
	}

	h.record(c, transportQuery, result)
	c.Header("Cache-Control", "no-store")
	status, page := htmlResponse(result)
	c.Render(status, page)
}

// Preflight answers CORS preflight requests with an empty 204. CORSMiddleware
// has already set the headers.
func (h *Handler) Preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Ping godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /ping [get]
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) respondJSON(c *gin.Context, result Result) {
	h.record(c, transportJSON, result)

	if result.Status == StatusSent {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(apperrors.ToHTTPStatus(result.Err), apperrors.ToErrorResponse(result.Err))
}

func (h *Handler) record(c *gin.Context, transport string, result Result) {
	metrics.IncRelayRequest(transport, string(result.Status))
	if result.Err != nil {
		c.Error(result.Err)
	}

	ctx := c.Request.Context()
	switch result.Status {
	case StatusSent:
		h.logger.DebugwCtx(ctx, "Message relayed", "transport", transport)
	case StatusRejected:
		if apperrors.IsValidation(result.Err) {
			h.logger.DebugwCtx(ctx, "Relay request invalid", "transport", transport, "reason", result.Reason)
			return
		}
		h.logger.InfowCtx(ctx, "Relay request rejected", "transport", transport, "reason", result.Reason)
	default:
		h.logger.WarnwCtx(ctx, "Relay request failed",
			"transport", transport,
			"status", result.Status,
			"reason", result.Reason,
			"upstream_status", result.UpstreamStatus,
		)
	}
}

// readJSON treats an empty body as {}.
func (h *Handler) readJSON(c *gin.Context) (RelayRequest, *apperrors.Error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return RelayRequest{}, apperrors.ErrValidation.WithMessage("request body too large")
		}
		return RelayRequest{}, apperrors.ErrValidation.WithMessage("failed to read request body").WithCause(err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return RelayRequest{}, nil
	}

	var in JSONRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return RelayRequest{}, apperrors.ErrValidation.WithMessage("Invalid JSON: " + err.Error())
	}
	return in.ToRelayRequest(), nil
}

func (h *Handler) requestMeta(c *gin.Context) access.RequestMeta {
	clientKey := c.ClientIP()
	if clientKey == "" {
		clientKey = c.RemoteIP()
	}
	return access.RequestMeta{
		Origin:    c.GetHeader("Origin"),
		Referer:   c.GetHeader("Referer"),
		APIKey:    c.GetHeader(constants.HeaderAPIKey),
		ClientKey: clientKey,
	}
}

// queryRequest reads m, code or code_b64, and lang. code_b64 wins over code.
func queryRequest(c *gin.Context) RelayRequest {
	req := RelayRequest{
		Message:  c.Query("m"),
		Language: c.Query("lang"),
	}
	if encoded, ok := c.GetQuery("code_b64"); ok {
		req.Code = &encoded
		req.CodeEncoding = EncodingBase64
	} else if code, ok := c.GetQuery("code"); ok {
		req.Code = &code
	}
	return req
}

func writeRateLimitHeaders(c *gin.Context, decision access.Decision) {
	if decision.RateLimit != nil {
		decision.RateLimit.WriteHeaders(c.Writer.Header())
	}
}
